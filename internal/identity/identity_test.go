package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/example/anime-tracker/internal/platform/apperr"
)

func TestCreateAndGetByUsername(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, User{Username: "miyu", Email: "miyu@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("expected an id to be assigned")
	}
	if created.Role != "user" {
		t.Fatalf("expected default role 'user', got %q", created.Role)
	}
	if !created.IsActive {
		t.Fatal("expected new user to be active")
	}

	got, err := store.GetByUsername(ctx, "miyu")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected id %s, got %s", created.ID, got.ID)
	}
}

func TestCreate_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Create(ctx, User{Username: "miyu"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := store.Create(ctx, User{Username: "miyu"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGetByUsername_Missing(t *testing.T) {
	_, err := NewMemoryStore().GetByUsername(context.Background(), "nobody")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUsernames_SkipsUnknownIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	u, err := store.Create(ctx, User{Username: "rei"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names, err := store.Usernames(ctx, []uuid.UUID{u.ID, uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 1 || names[u.ID] != "rei" {
		t.Fatalf("expected only %s=rei, got %v", u.ID, names)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Fatal("expected password to verify")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Fatal("expected mismatch to fail")
	}
}
