package postgres

import (
	"context"
	"testing"
)

func TestNewPool_InvalidDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), "://bad"); err == nil {
		t.Fatalf("expected error for invalid dsn")
	}
}

func TestPgx5URLRewrite(t *testing.T) {
	got := pgx5URL("postgres://u:p@localhost:5432/showpulse?sslmode=disable")
	want := "pgx5://u:p@localhost:5432/showpulse?sslmode=disable"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if pgx5URL("pgx5://already") != "pgx5://already" {
		t.Fatalf("rewrite should be idempotent")
	}
}
