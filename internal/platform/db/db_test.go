package db

import (
	"context"
	"testing"
)

func TestOpen_MissingDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "")
	if got := envInt("DB_MAX_CONNS", 16); got != 16 {
		t.Fatalf("empty var: expected fallback 16, got %d", got)
	}

	t.Setenv("DB_MAX_CONNS", "32")
	if got := envInt("DB_MAX_CONNS", 16); got != 32 {
		t.Fatalf("expected 32, got %d", got)
	}

	t.Setenv("DB_MAX_CONNS", "not-a-number")
	if got := envInt("DB_MAX_CONNS", 16); got != 16 {
		t.Fatalf("garbage var: expected fallback 16, got %d", got)
	}

	t.Setenv("DB_MAX_CONNS", "-3")
	if got := envInt("DB_MAX_CONNS", 16); got != 16 {
		t.Fatalf("negative var: expected fallback 16, got %d", got)
	}
}
