package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/openrts/masterserver/internal/store"
)

// ErrPlayerNotFound is returned when authenticating a username with no
// stored player record. The session layer treats this differently from a
// wrong password: the protocol stays silent rather than erroring out
// (spec.md §4.E phase 2), so callers must not conflate the two.
var ErrPlayerNotFound = errors.New("player not found")

// ErrWrongPassword is returned when a stored player's password hash does
// not verify against the submitted plaintext.
var ErrWrongPassword = errors.New("wrong password")

// ErrUserExists is returned when registering with a username already in
// the credential store.
var ErrUserExists = errors.New("player already exists")

// Service wraps the credential store with password hashing. It has no
// notion of sessions or tokens: the wire protocol re-authenticates on
// every Login message (spec.md §4.E), so there is nothing to issue.
type Service struct {
	store store.Store
}

// NewService builds an authentication service over st.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Register hashes password and inserts a new player.
func (s *Service) Register(ctx context.Context, username, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.store.AddPlayer(ctx, username, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			return ErrUserExists
		}
		return fmt.Errorf("add player: %w", err)
	}
	return nil
}

// Authenticate verifies username/password against the credential store.
// It distinguishes an unknown username (ErrPlayerNotFound) from a known
// username with the wrong password (ErrWrongPassword): the two drive
// different session behavior on failure.
func (s *Service) Authenticate(ctx context.Context, username, password string) error {
	p, err := s.store.GetPlayer(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPlayerNotFound
		}
		return fmt.Errorf("get player: %w", err)
	}
	if err := ComparePassword(p.PasswordHash, password); err != nil {
		return ErrWrongPassword
	}
	return nil
}
