// Package auth holds the session credential and its presence signal.
package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "modernc.org/sqlite"
)

const credentialKey = "default"

// Store is the session token cell. Reads are safe from any goroutine;
// subscribers are invoked synchronously after the change, outside the lock.
type Store struct {
	mu     sync.Mutex
	token  string
	db     *sql.DB
	subs   map[int]func(bool)
	nextID int
	now    func() time.Time
}

// DefaultDBPath returns the default credential database path.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "docqa", "docqa.sqlite")
}

// NewMemoryStore returns a store that does not persist.
func NewMemoryStore() *Store {
	return &Store{subs: make(map[int]func(bool)), now: time.Now}
}

// Open opens (creating if needed) the credential database at path and
// loads any persisted token.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s, err := openDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			key TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			savedAt REAL NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := NewMemoryStore()
	s.db = db

	var tok string
	err := db.QueryRow(`SELECT token FROM credentials WHERE key = ?`, credentialKey).Scan(&tok)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load credential: %w", err)
	default:
		s.token = tok
	}
	return s, nil
}

// Close closes the database connection, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Token returns the current credential, or "" if none is held or the held
// JWT has expired.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || expired(s.token, s.now()) {
		return ""
	}
	return s.token
}

// Authenticated reports whether a usable credential is held.
func (s *Store) Authenticated() bool {
	return s.Token() != ""
}

// Set stores and persists a credential and notifies subscribers.
func (s *Store) Set(token string) error {
	if token == "" {
		return s.Clear()
	}
	s.mu.Lock()
	if s.db != nil {
		if _, err := s.db.Exec(`
			INSERT INTO credentials (key, token, savedAt) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET token = excluded.token, savedAt = excluded.savedAt
		`, credentialKey, token, unixFromTime(s.now())); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("save credential: %w", err)
		}
	}
	s.token = token
	subs := s.snapshot()
	s.mu.Unlock()

	notify(subs, true)
	return nil
}

// Clear removes the credential and notifies subscribers.
func (s *Store) Clear() error {
	s.mu.Lock()
	if s.db != nil {
		if _, err := s.db.Exec(`DELETE FROM credentials WHERE key = ?`, credentialKey); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("delete credential: %w", err)
		}
	}
	s.token = ""
	subs := s.snapshot()
	s.mu.Unlock()

	notify(subs, false)
	return nil
}

// Subscribe registers fn to receive the presence flag after every Set or
// Clear. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(authenticated bool)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) snapshot() []func(bool) {
	out := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(bool), v bool) {
	for _, fn := range subs {
		fn(v)
	}
}

// expired reports whether token is a JWT whose exp claim is at or before now.
// Opaque tokens and JWTs without exp never expire locally.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
