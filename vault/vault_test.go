package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goVerify/autherr"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRetrieveRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Retrieve(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Store(ctx, "k", []byte("v1")))
	got, err := m.Retrieve(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	got[0] = 'X'
	again, _ := m.Retrieve(ctx, "k")
	require.Equal(t, []byte("v1"), again, "retrieved slices must not alias storage")

	removed, err := m.Remove(ctx, "k")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = m.Remove(ctx, "k")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestMemoryCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.CompareAndSwap(ctx, "k", nil, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok, "create when absent")

	ok, _ = m.CompareAndSwap(ctx, "k", nil, []byte("b"))
	require.False(t, ok, "create must fail when present")

	ok, _ = m.CompareAndSwap(ctx, "k", []byte("zzz"), []byte("b"))
	require.False(t, ok)

	ok, _ = m.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"))
	require.True(t, ok)

	ok, _ = m.CompareAndSwap(ctx, "k", []byte("b"), nil)
	require.True(t, ok, "nil next deletes")
	require.Equal(t, 0, m.Len())
}

func TestMemoryCompareAndSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Store(ctx, "k", []byte("v0")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.CompareAndSwap(ctx, "k", []byte("v0"), []byte("v1")); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestMemoryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	require.ErrorIs(t, m.Store(ctx, "k", []byte("v")), context.Canceled)
	require.Equal(t, 0, m.Len())
}

func TestSealedEncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	key := bytes.Repeat([]byte{7}, 32)

	v, err := NewSealed(inner, key)
	require.NoError(t, err)
	require.NoError(t, v.Store(ctx, "totp_settings_u1", []byte("JBSWY3DPEHPK3PXP")))

	raw, err := inner.Retrieve(ctx, "totp_settings_u1")
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, []byte("JBSWY3DPEHPK3PXP")))

	plain, err := v.Retrieve(ctx, "totp_settings_u1")
	require.NoError(t, err)
	require.Equal(t, []byte("JBSWY3DPEHPK3PXP"), plain)

	// A ciphertext moved under another key must not open.
	require.NoError(t, inner.Store(ctx, "totp_settings_u2", raw))
	_, err = v.Retrieve(ctx, "totp_settings_u2")
	require.ErrorIs(t, err, ErrSealedValue)
	require.ErrorIs(t, err, autherr.ErrConfiguration)
	require.Equal(t, autherr.KindConfiguration, autherr.KindOf(err))
}

func TestSealedSwapperComparesPlaintext(t *testing.T) {
	ctx := context.Background()
	v, err := NewSealed(NewMemory(), bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	sw, ok := v.(Swapper)
	require.True(t, ok, "sealed memory vault should support swaps")

	ok, err = sw.CompareAndSwap(ctx, "k", nil, []byte("one"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = sw.CompareAndSwap(ctx, "k", []byte("one"), []byte("two"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = sw.CompareAndSwap(ctx, "k", []byte("one"), []byte("three"))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := v.Retrieve(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)
}

func TestSealedRejectsShortKey(t *testing.T) {
	_, err := NewSealed(NewMemory(), []byte("short"))
	require.Error(t, err)
}

func TestKeyBuilders(t *testing.T) {
	require.Equal(t, "totp_settings_u1", TOTPSettingsKey("u1"))
	require.Equal(t, "mfa_enrollments_u1", EnrollmentsKey("u1"))
	require.Equal(t, "backup_codes_u1", BackupCodesKey("u1"))
	require.Equal(t, "sms_session_u1", SMSSessionKey("u1"))
	require.Equal(t, "linked_identities_u1", LinkedIdentitiesKey("u1"))
	require.Equal(t, "linked_index_github_42", LinkedIndexKey("github", "42"))
}

func TestBackendErrorKeepsProviderKind(t *testing.T) {
	err := fmt.Errorf("%w: %v", ErrBackend, errors.New("connection refused"))
	require.ErrorIs(t, err, ErrBackend)
	require.ErrorIs(t, err, autherr.ErrProvider)
	require.Equal(t, autherr.KindProvider, autherr.KindOf(err))
	require.Equal(t, "provider", autherr.Code(err))
}
