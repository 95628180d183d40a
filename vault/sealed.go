package vault

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/MrEthical07/goVerify/autherr"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedValue is returned when a stored value fails authentication.
// A wrong sealing key is the usual cause, so it is a configuration failure.
var ErrSealedValue = autherr.New(autherr.KindConfiguration, "vault: sealed value failed authentication")

// Sealed encrypts values with XChaCha20-Poly1305 before handing them to the
// wrapped Vault. The storage key is bound as additional data so a value
// cannot be replayed under a different key.
type Sealed struct {
	inner Vault
	aead  cipher.AEAD
}

type sealedSwapper struct {
	*Sealed
	swap Swapper
}

// NewSealed wraps inner with at-rest encryption under a 32-byte key. The
// returned Vault implements Swapper when inner does.
func NewSealed(inner Vault, key []byte) (Vault, error) {
	if inner == nil {
		return nil, errors.New("vault: sealed vault requires an inner vault")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: sealed key: %w", err)
	}
	s := &Sealed{inner: inner, aead: aead}
	if sw, ok := inner.(Swapper); ok {
		return &sealedSwapper{Sealed: s, swap: sw}, nil
	}
	return s, nil
}

func (s *Sealed) Store(ctx context.Context, key string, value []byte) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Store(ctx, key, sealed)
}

func (s *Sealed) Retrieve(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Retrieve(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.open(key, data)
}

func (s *Sealed) Remove(ctx context.Context, key string) (bool, error) {
	return s.inner.Remove(ctx, key)
}

// CompareAndSwap compares plaintexts. Since every seal uses a fresh nonce the
// swap is issued against the ciphertext currently stored, which the inner
// vault re-checks atomically.
func (s *sealedSwapper) CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error) {
	var current []byte
	if old != nil {
		data, err := s.inner.Retrieve(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		plain, err := s.open(key, data)
		if err != nil {
			return false, err
		}
		if !bytes.Equal(plain, old) {
			return false, nil
		}
		current = data
	}

	var sealed []byte
	if next != nil {
		var err error
		if sealed, err = s.seal(key, next); err != nil {
			return false, err
		}
	}
	return s.swap.CompareAndSwap(ctx, key, current, sealed)
}

func (s *Sealed) seal(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(key)), nil
}

func (s *Sealed) open(key string, data []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(data) < ns+s.aead.Overhead() {
		return nil, ErrSealedValue
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], []byte(key))
	if err != nil {
		return nil, ErrSealedValue
	}
	return plain, nil
}
