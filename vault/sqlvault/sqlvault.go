// Package sqlvault stores vault values in a SQL table. The schema is applied
// with golang-migrate from embedded files; the default driver is the pure-Go
// modernc SQLite.
package sqlvault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goVerify/vault"
	"github.com/MrEthical07/goVerify/vault/sqlvault/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

// Vault is a database/sql backed vault.Vault and vault.Swapper.
type Vault struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the SQLite database at dsn and applies pending migrations.
// SQLite serialises writers, so the pool is limited to one connection.
func Open(dsn string) (*Vault, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	v := New(db)
	if err := v.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return v, nil
}

// New wraps an already opened database. The caller is responsible for the schema.
func New(db *sql.DB) *Vault {
	return &Vault{db: db, now: time.Now}
}

// ApplyMigrations brings the vault_entries table up to date.
func (v *Vault) ApplyMigrations() error {
	driver, err := sqlite.WithInstance(v.db, &sqlite.Config{})
	if err != nil {
		return err
	}
	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}
	instance, err := migrate.NewWithInstance("iofs", source, "", driver)
	if err != nil {
		return err
	}
	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (v *Vault) Close() error { return v.db.Close() }

func (v *Vault) Store(ctx context.Context, key string, value []byte) error {
	_, err := v.db.ExecContext(ctx,
		`INSERT INTO vault_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, v.now().Unix())
	if err != nil {
		return backendErr(err)
	}
	return nil
}

func (v *Vault) Retrieve(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := v.db.QueryRowContext(ctx, `SELECT value FROM vault_entries WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vault.ErrNotFound
		}
		return nil, backendErr(err)
	}
	return value, nil
}

func (v *Vault) Remove(ctx context.Context, key string) (bool, error) {
	res, err := v.db.ExecContext(ctx, `DELETE FROM vault_entries WHERE key = ?`, key)
	if err != nil {
		return false, backendErr(err)
	}
	return affected(res)
}

// CompareAndSwap issues a single conditional statement so the check and
// the write cannot interleave with another writer.
func (v *Vault) CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	switch {
	case old == nil && next == nil:
		_, err := v.Retrieve(ctx, key)
		if errors.Is(err, vault.ErrNotFound) {
			return true, nil
		}
		return false, err
	case old == nil:
		res, err = v.db.ExecContext(ctx,
			`INSERT INTO vault_entries (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
			key, next, v.now().Unix())
	case next == nil:
		res, err = v.db.ExecContext(ctx,
			`DELETE FROM vault_entries WHERE key = ? AND value = ?`, key, old)
	default:
		res, err = v.db.ExecContext(ctx,
			`UPDATE vault_entries SET value = ?, updated_at = ? WHERE key = ? AND value = ?`,
			next, v.now().Unix(), key, old)
	}
	if err != nil {
		return false, backendErr(err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, backendErr(err)
	}
	return n > 0, nil
}

func backendErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", vault.ErrBackend, err)
}

var _ vault.Swapper = (*Vault)(nil)
