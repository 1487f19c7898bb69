package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/openrts/masterserver/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddAndGetPlayer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddPlayer(ctx, "alice", "hashed-secret"); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}

	p, err := s.GetPlayer(ctx, "alice")
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if p.Username != "alice" || p.PasswordHash != "hashed-secret" {
		t.Fatalf("unexpected player: %+v", p)
	}
}

func TestGetPlayer_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetPlayer(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddPlayer_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddPlayer(ctx, "bob", "hash1"); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}

	if _, err := s.AddPlayer(ctx, "bob", "hash2"); !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}
