// Package sqlite persists accounts in SQLite through the pure-Go modernc
// driver. The schema is applied from embedded migrations on Open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/accountstore"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var _ accountstore.Store = (*Store)(nil)

const accountColumns = `id, email, password_hash, provider, provider_user_id,
	first_name, last_name, avatar, created_at, updated_at`

// Store is an accountstore.Store backed by a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies
// migrations. Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*accountstore.Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`,
		accountstore.NormalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, id string) (*accountstore.Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

func (s *Store) FindByProvider(ctx context.Context, provider, providerUserID string) (*accountstore.Account, error) {
	if provider == "" || providerUserID == "" {
		return nil, accountstore.ErrNotFound
	}
	return s.queryOne(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE provider = ? AND provider_user_id = ?`,
		provider, providerUserID)
}

func (s *Store) Create(ctx context.Context, a *accountstore.Account) error {
	now := s.now().UTC()
	if a.ID == "" {
		a.ID = accountstore.NewID(now)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	a.Email = accountstore.NormalizeEmail(a.Email)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.Provider, a.ProviderUserID,
		a.FirstName, a.LastName, a.Avatar, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return accountstore.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, a *accountstore.Account) error {
	a.Email = accountstore.NormalizeEmail(a.Email)
	a.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET email = ?, password_hash = ?, provider = ?, provider_user_id = ?,
		   first_name = ?, last_name = ?, avatar = ?, updated_at = ?
		 WHERE id = ?`,
		a.Email, a.PasswordHash, a.Provider, a.ProviderUserID,
		a.FirstName, a.LastName, a.Avatar, toMillis(a.UpdatedAt), a.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return accountstore.ErrDuplicate
		}
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		return accountstore.ErrNotFound
	}
	return nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*accountstore.Account, error) {
	var (
		a                accountstore.Account
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Provider, &a.ProviderUserID,
		&a.FirstName, &a.LastName, &a.Avatar, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accountstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
