// Package store persists credentials and session bookkeeping in SQLite.
//
// The Store is the single owner of the TokenSet and of the flags that
// describe whether the user is authenticated and whether a playback
// session may be resumed. Other components receive it explicitly and
// observe token changes through Watch.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"
)

// TokenSet holds the OAuth credentials issued by the provider
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is zero when the provider did not report an expiry
	ExpiresAt time.Time
}

// Empty reports whether no access token is held
func (t TokenSet) Empty() bool {
	return t.AccessToken == ""
}

// ExpiresWithin reports whether the token expires within d of now.
// A token without a recorded expiry never expires.
func (t TokenSet) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt.Add(-d))
}

// OAuth2 converts the set into an oauth2 token for HTTP clients
func (t TokenSet) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       t.ExpiresAt,
	}
}

// SessionRecord is the persisted session bookkeeping
type SessionRecord struct {
	Authenticated bool
	// Connected is set while a session is open and kept after a
	// background suspend so the session can be resumed later
	Connected       bool
	LastConnectedAt time.Time
	// PendingState is the OAuth state parameter of an authorization in flight
	PendingState string
}

// Watcher is called after the stored access token changes
type Watcher func(old, updated TokenSet)

// Store manages persisted credentials using SQLite
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	watchers map[int]Watcher
	nextID   int
}

// Open opens (or creates) the store at dbPath. Use ":memory:" in tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases consistent
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tokens (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			authenticated BOOLEAN NOT NULL DEFAULT 0,
			connected BOOLEAN NOT NULL DEFAULT 0,
			last_connected_at INTEGER NOT NULL DEFAULT 0,
			pending_state TEXT NOT NULL DEFAULT ''
		);

		INSERT OR IGNORE INTO tokens (id) VALUES (1);
		INSERT OR IGNORE INTO session (id) VALUES (1);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, watchers: make(map[int]Watcher)}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Tokens returns the stored token set
func (s *Store) Tokens(ctx context.Context) (TokenSet, error) {
	var (
		tok       TokenSet
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at FROM tokens WHERE id = 1`,
	).Scan(&tok.AccessToken, &tok.RefreshToken, &expiresAt)
	if err != nil {
		return TokenSet{}, fmt.Errorf("failed to read tokens: %w", err)
	}
	if expiresAt > 0 {
		tok.ExpiresAt = time.UnixMilli(expiresAt)
	}
	return tok, nil
}

// SaveTokens replaces the stored token set and notifies watchers when
// the access token changed
func (s *Store) SaveTokens(ctx context.Context, tok TokenSet) error {
	return s.replaceTokens(ctx, tok)
}

// ClearTokens removes every token field
func (s *Store) ClearTokens(ctx context.Context) error {
	return s.replaceTokens(ctx, TokenSet{})
}

func (s *Store) replaceTokens(ctx context.Context, tok TokenSet) error {
	s.mu.Lock()
	old, err := s.Tokens(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	var expiresAt int64
	if !tok.ExpiresAt.IsZero() {
		expiresAt = tok.ExpiresAt.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tokens
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = strftime('%s', 'now')
		WHERE id = 1
	`, tok.AccessToken, tok.RefreshToken, expiresAt)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	var watchers []Watcher
	if old.AccessToken != tok.AccessToken {
		watchers = s.snapshotWatchers()
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w(old, tok)
	}
	return nil
}

// Watch registers fn to be called after every access token change.
// The returned function unregisters it.
func (s *Store) Watch(fn Watcher) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.watchers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Store) snapshotWatchers() []Watcher {
	out := make([]Watcher, 0, len(s.watchers))
	for i := 0; i < s.nextID; i++ {
		if w, ok := s.watchers[i]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Session returns the persisted session record
func (s *Store) Session(ctx context.Context) (SessionRecord, error) {
	var (
		rec           SessionRecord
		lastConnected int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT authenticated, connected, last_connected_at, pending_state FROM session WHERE id = 1`,
	).Scan(&rec.Authenticated, &rec.Connected, &lastConnected, &rec.PendingState)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to read session: %w", err)
	}
	if lastConnected > 0 {
		rec.LastConnectedAt = time.UnixMilli(lastConnected)
	}
	return rec, nil
}

// SetAuthenticated records whether the user holds valid credentials
func (s *Store) SetAuthenticated(ctx context.Context, authenticated bool) error {
	return s.exec(ctx, "set authenticated",
		`UPDATE session SET authenticated = ? WHERE id = 1`, authenticated)
}

// SetPendingState records the state parameter of an authorization in flight
func (s *Store) SetPendingState(ctx context.Context, state string) error {
	return s.exec(ctx, "set pending state",
		`UPDATE session SET pending_state = ? WHERE id = 1`, state)
}

// MarkConnected records an open session at t
func (s *Store) MarkConnected(ctx context.Context, t time.Time) error {
	return s.exec(ctx, "mark connected",
		`UPDATE session SET connected = 1, last_connected_at = ? WHERE id = 1`, t.UnixMilli())
}

// MarkDisconnected records a closed session. With resumable set the
// connected flag is kept so the session can be reopened later.
func (s *Store) MarkDisconnected(ctx context.Context, resumable bool) error {
	if resumable {
		return nil
	}
	return s.exec(ctx, "mark disconnected",
		`UPDATE session SET connected = 0 WHERE id = 1`)
}

// Reset clears credentials and all session bookkeeping
func (s *Store) Reset(ctx context.Context) error {
	if err := s.exec(ctx, "reset session", `
		UPDATE session
		SET authenticated = 0, connected = 0, last_connected_at = 0, pending_state = ''
		WHERE id = 1
	`); err != nil {
		return err
	}
	return s.ClearTokens(ctx)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}
