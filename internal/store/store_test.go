package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates an in-memory store for testing
func createTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func TestOpen(t *testing.T) {
	t.Run("in-memory database", func(t *testing.T) {
		s, err := Open(":memory:")
		if err != nil {
			t.Fatalf("failed to open in-memory store: %v", err)
		}
		defer func() { _ = s.Close() }()

		tok, err := s.Tokens(context.Background())
		if err != nil {
			t.Fatalf("Tokens() error: %v", err)
		}
		if !tok.Empty() {
			t.Errorf("expected empty token set, got %+v", tok)
		}
	})

	t.Run("file-based database survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "desky.db")
		ctx := context.Background()

		s, err := Open(path)
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		if err := s.SaveTokens(ctx, TokenSet{AccessToken: "abc", RefreshToken: "def"}); err != nil {
			t.Fatalf("SaveTokens() error: %v", err)
		}
		_ = s.Close()

		s, err = Open(path)
		if err != nil {
			t.Fatalf("failed to reopen store: %v", err)
		}
		defer func() { _ = s.Close() }()

		tok, err := s.Tokens(ctx)
		if err != nil {
			t.Fatalf("Tokens() error: %v", err)
		}
		if tok.AccessToken != "abc" || tok.RefreshToken != "def" {
			t.Errorf("unexpected tokens after reopen: %+v", tok)
		}
	})
}

func TestSaveTokens(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := TokenSet{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: expires}

	if err := s.SaveTokens(ctx, want); err != nil {
		t.Fatalf("SaveTokens() error: %v", err)
	}

	got, err := s.Tokens(ctx)
	if err != nil {
		t.Fatalf("Tokens() error: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("Tokens() = %+v, want %+v", got, want)
	}
	if !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
}

func TestClearTokens(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_ = s.SaveTokens(ctx, TokenSet{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now()})
	if err := s.ClearTokens(ctx); err != nil {
		t.Fatalf("ClearTokens() error: %v", err)
	}

	got, _ := s.Tokens(ctx)
	if got.AccessToken != "" || got.RefreshToken != "" || !got.ExpiresAt.IsZero() {
		t.Errorf("expected all fields cleared, got %+v", got)
	}
}

func TestWatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var calls []string
	cancel := s.Watch(func(old, updated TokenSet) {
		calls = append(calls, old.AccessToken+"->"+updated.AccessToken)
	})

	_ = s.SaveTokens(ctx, TokenSet{AccessToken: "one"})
	// Same access token with a new refresh token is not a change
	_ = s.SaveTokens(ctx, TokenSet{AccessToken: "one", RefreshToken: "r"})
	_ = s.SaveTokens(ctx, TokenSet{AccessToken: "two"})

	cancel()
	_ = s.SaveTokens(ctx, TokenSet{AccessToken: "three"})

	want := []string{"->one", "one->two"}
	if len(calls) != len(want) {
		t.Fatalf("watcher calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestSessionRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := s.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if rec.Authenticated || rec.Connected || !rec.LastConnectedAt.IsZero() {
		t.Errorf("expected zero session record, got %+v", rec)
	}

	connectedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = s.SetAuthenticated(ctx, true)
	_ = s.MarkConnected(ctx, connectedAt)
	_ = s.SetPendingState(ctx, "xyz")

	rec, _ = s.Session(ctx)
	if !rec.Authenticated || !rec.Connected {
		t.Errorf("expected authenticated and connected, got %+v", rec)
	}
	if !rec.LastConnectedAt.Equal(connectedAt) {
		t.Errorf("LastConnectedAt = %v, want %v", rec.LastConnectedAt, connectedAt)
	}
	if rec.PendingState != "xyz" {
		t.Errorf("PendingState = %q, want xyz", rec.PendingState)
	}

	// A resumable disconnect keeps the connected flag
	_ = s.MarkDisconnected(ctx, true)
	rec, _ = s.Session(ctx)
	if !rec.Connected {
		t.Error("resumable disconnect should keep connected flag")
	}

	_ = s.MarkDisconnected(ctx, false)
	rec, _ = s.Session(ctx)
	if rec.Connected {
		t.Error("explicit disconnect should clear connected flag")
	}
	if !rec.LastConnectedAt.Equal(connectedAt) {
		t.Error("disconnect should not clear last connection time")
	}
}

func TestReset(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_ = s.SaveTokens(ctx, TokenSet{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now()})
	_ = s.SetAuthenticated(ctx, true)
	_ = s.MarkConnected(ctx, time.Now())

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	tok, _ := s.Tokens(ctx)
	rec, _ := s.Session(ctx)
	if !tok.Empty() || tok.RefreshToken != "" || !tok.ExpiresAt.IsZero() {
		t.Errorf("expected tokens cleared, got %+v", tok)
	}
	if rec.Authenticated || rec.Connected || !rec.LastConnectedAt.IsZero() {
		t.Errorf("expected session cleared, got %+v", rec)
	}
}

func TestExpiresWithin(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"no expiry recorded", time.Time{}, false},
		{"well in the future", now.Add(time.Hour), false},
		{"inside skew", now.Add(4 * time.Minute), true},
		{"exactly at skew", now.Add(5 * time.Minute), true},
		{"already expired", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := TokenSet{AccessToken: "a", ExpiresAt: tt.expiresAt}
			if got := tok.ExpiresWithin(now, 5*time.Minute); got != tt.want {
				t.Errorf("ExpiresWithin() = %v, want %v", got, tt.want)
			}
		})
	}
}
