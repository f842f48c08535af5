// Package keyvalue defines the durable key-value collaborator purchasekit
// uses to persist entitlement verdicts across process restarts.
package keyvalue

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("keyvalue: key not found")

// Store is a minimal byte-oriented key-value store. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
