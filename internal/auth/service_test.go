package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/openrts/masterserver/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return NewService(st)
}

func TestRegisterThenAuthenticate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Authenticate(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("expected authentication success, got %v", err)
	}
}

func TestRegister_DuplicateName(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Register(ctx, "alice", "other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if err := svc.Authenticate(ctx, "ghost", "whatever"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}
