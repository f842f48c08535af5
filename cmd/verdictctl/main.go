// verdictctl inspects and clears purchase verdicts persisted in the Redis
// backend. Intended for support and diagnostics; the library itself never
// needs it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"purchasekit/internal/pkg/env"
	"purchasekit/keyvalue"
	redisstore "purchasekit/keyvalue/redis"
	"purchasekit/pkg/logger"
	"purchasekit/verdict"
)

var (
	redisAddr string
	keyPrefix string
	logLevel  string
	logFile   string

	log *zap.Logger
)

func newStore() *redisstore.Store {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return redisstore.New(client, keyPrefix)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "verdictctl",
		Short:         "Inspect and clear persisted purchase verdicts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logger.New(logLevel, logger.FileConfig{Path: logFile})
		},
	}
	root.PersistentFlags().StringVar(&redisAddr, "redis-addr",
		env.Get("REDIS_ADDR", "localhost:6379"), "redis server address")
	root.PersistentFlags().StringVar(&keyPrefix, "prefix",
		env.Get("VERDICT_KEY_PREFIX", ""), "key prefix shared with the application")
	root.PersistentFlags().StringVar(&logLevel, "log-level",
		env.Get("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFile, "log-file",
		env.Get("LOG_FILE", ""), "optional rotating log file")
	root.AddCommand(newShowCmd(), newClearCmd())
	return root
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <product-id>...",
		Short: "Print the cached verdict for each product",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			kv := newStore()
			for _, id := range args {
				log.Debug("reading verdict", zap.String("product", id),
					zap.String("key", verdict.StorageKey(id)))
				data, err := kv.Get(ctx, verdict.StorageKey(id))
				if errors.Is(err, keyvalue.ErrNotFound) {
					fmt.Printf("%s: no verdict on file\n", id)
					continue
				}
				if err != nil {
					return fmt.Errorf("read %s: %w", id, err)
				}
				v, err := verdict.Decode(data)
				if err != nil {
					fmt.Printf("%s: corrupt entry (%v)\n", id, err)
					continue
				}
				expiry := "none"
				if v.HardExpiresAt != nil {
					expiry = v.HardExpiresAt.Format(time.RFC3339)
				}
				fmt.Printf("%s: active=%t computed_at=%s hard_expires_at=%s\n",
					id, v.Active, v.ComputedAt.Format(time.RFC3339), expiry)
			}
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <product-id>...",
		Short: "Delete the cached verdict for each product",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			kv := newStore()
			for _, id := range args {
				if err := kv.Delete(ctx, verdict.StorageKey(id)); err != nil {
					return fmt.Errorf("clear %s: %w", id, err)
				}
				log.Info("verdict cleared", zap.String("product", id))
				fmt.Printf("%s: cleared\n", id)
			}
			return nil
		},
	}
}

func main() {
	env.Load(".env")
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
