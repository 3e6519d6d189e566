// Package localstore is the device-local persistent key/value store of the
// client. It keeps the identity session blob, the last known user id, the
// per-user profile completion marker and the transient reload flag in one
// SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/haulage/internal/client/localstore/migrations"
	"github.com/dmitrijs2005/haulage/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Well-known keys.
const (
	// SessionKey holds the identity adapter's persisted session JSON.
	SessionKey = "auth.session"

	lastUserKey         = "last_user_id"
	reloadingKey        = "reloading"
	completionKeyPrefix = "profile_complete:"
)

var markerValue = []byte("1")

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

// RunMigrations applies the embedded migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Store is the typed facade over the kv table.
type Store struct {
	db *sql.DB
	kv *KV
}

// Open opens (creating if needed) the SQLite file at dsn and migrates it.
// SQLite allows one writer, so the pool is capped at one connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, kv: NewKV(db)}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.kv.Get(ctx, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.kv.Set(ctx, key, value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

func (s *Store) List(ctx context.Context) (map[string][]byte, error) {
	return s.kv.List(ctx)
}

// Clear wipes every key, including the persisted session.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Clear(ctx)
}

func completionKey(userID string) string {
	return completionKeyPrefix + userID
}

// CompletionMarker reports whether userID was once observed with a complete
// profile on this device.
func (s *Store) CompletionMarker(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	v, err := s.kv.Get(ctx, completionKey(userID))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (s *Store) SetCompletionMarker(ctx context.Context, userID string) error {
	return s.kv.Set(ctx, completionKey(userID), markerValue)
}

func (s *Store) ClearCompletionMarker(ctx context.Context, userID string) error {
	return s.kv.Delete(ctx, completionKey(userID))
}

// LastUserID returns the identifier stored by the previous sign-in, or "".
func (s *Store) LastUserID(ctx context.Context) (string, error) {
	v, err := s.kv.Get(ctx, lastUserKey)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *Store) SetLastUserID(ctx context.Context, userID string) error {
	return s.kv.Set(ctx, lastUserKey, []byte(userID))
}

func (s *Store) ClearLastUserID(ctx context.Context) error {
	return s.kv.Delete(ctx, lastUserKey)
}

// SetReloading records that the process is about to restart on purpose.
func (s *Store) SetReloading(ctx context.Context) error {
	return s.kv.Set(ctx, reloadingKey, markerValue)
}

// ConsumeReloading returns whether the reload flag was set and clears it in
// the same transaction.
func (s *Store) ConsumeReloading(ctx context.Context) (bool, error) {
	var was bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		kv := NewKV(tx)
		v, err := kv.Get(ctx, reloadingKey)
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		was = true
		return kv.Delete(ctx, reloadingKey)
	})
	if err != nil {
		return false, err
	}
	return was, nil
}

// RawToken returns the identity session blob exactly as persisted, or nil.
func (s *Store) RawToken(ctx context.Context) ([]byte, error) {
	return s.kv.Get(ctx, SessionKey)
}

// ForgetUser drops the last known user id and the completion marker of
// userID atomically. Called on explicit sign-out.
func (s *Store) ForgetUser(ctx context.Context, userID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		kv := NewKV(tx)
		if err := kv.Delete(ctx, lastUserKey); err != nil {
			return err
		}
		if userID == "" {
			return nil
		}
		return kv.Delete(ctx, completionKey(userID))
	})
}
