package vault

import (
	"context"
	"errors"

	"github.com/MrEthical07/goVerify/autherr"
)

// ErrNotFound is returned by Retrieve when no value is stored under the key.
var ErrNotFound = errors.New("vault: key not found")

// ErrBackend wraps failures of the underlying storage engine. It carries
// [autherr.KindProvider] through any fmt.Errorf wrapping.
var ErrBackend = autherr.New(autherr.KindProvider, "vault: backend unavailable")

// Vault is the durable owner of secrets and per-user verification state.
// Values are opaque bytes; callers own their encoding.
type Vault interface {
	// Store writes value under key, replacing any previous value.
	Store(ctx context.Context, key string, value []byte) error
	// Retrieve returns the value under key or ErrNotFound.
	Retrieve(ctx context.Context, key string) ([]byte, error)
	// Remove deletes key and reports whether it existed.
	Remove(ctx context.Context, key string) (bool, error)
}

// Swapper is implemented by vaults that can replace a value atomically.
//
// CompareAndSwap writes next under key only if the current value equals old.
// A nil old means the key must be absent; a nil next removes the key.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error)
}
