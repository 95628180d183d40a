package sqlvault

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goVerify/vault"
	"github.com/stretchr/testify/require"
)

func openTestVault(t *testing.T) *Vault {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "vault.db")
	v, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestSQLVaultRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	_, err := v.Retrieve(ctx, "k")
	require.ErrorIs(t, err, vault.ErrNotFound)

	require.NoError(t, v.Store(ctx, "k", []byte("one")))
	require.NoError(t, v.Store(ctx, "k", []byte("two")))
	got, err := v.Retrieve(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)

	removed, err := v.Remove(ctx, "k")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = v.Remove(ctx, "k")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestSQLVaultMigrationsAreIdempotent(t *testing.T) {
	v := openTestVault(t)
	require.NoError(t, v.ApplyMigrations())
}

func TestSQLVaultCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	ok, err := v.CompareAndSwap(ctx, "k", nil, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = v.CompareAndSwap(ctx, "k", nil, []byte("b"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = v.CompareAndSwap(ctx, "k", []byte("x"), []byte("b"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = v.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = v.CompareAndSwap(ctx, "k", []byte("b"), nil)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = v.Retrieve(ctx, "k")
	require.ErrorIs(t, err, vault.ErrNotFound)
}

func TestSQLVaultConcurrentSwapHasOneWinner(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)
	require.NoError(t, v.Store(ctx, "codes", []byte("abc")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := v.CompareAndSwap(ctx, "codes", []byte("abc"), []byte("bc")); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}
