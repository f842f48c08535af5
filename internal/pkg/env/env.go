// Package env reads configuration for purchasekit binaries from .env files
// and the process environment.
package env

import (
	"os"

	"github.com/joho/godotenv"
)

var values map[string]string

// Load reads the first .env file that exists among the given paths. A
// missing file is not an error; the process environment still applies.
func Load(paths ...string) {
	for _, p := range paths {
		if v, err := godotenv.Read(p); err == nil {
			values = v
			return
		}
	}
}

// Get returns the value for key from the loaded .env file, falling back to
// the process environment and then to def.
func Get(key, def string) string {
	if v, ok := values[key]; ok {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
