package state

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/hamdam/internal/store/sqlite"
)

func newMachine(t *testing.T) *Machine {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMachine(db)
}

func TestMachineTransitions(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()

	s, err := m.Current(ctx, "telegram:1")
	if err != nil || s.Kind != Idle {
		t.Fatalf("new user = %v, %v; want idle", s, err)
	}

	if err := m.Await(ctx, "telegram:1", "mood"); err != nil {
		t.Fatal(err)
	}
	s, _ = m.Current(ctx, "telegram:1")
	if s.String() != "awaiting:mood" {
		t.Fatalf("got %s", s)
	}

	if err := m.Await(ctx, "telegram:1", "song"); err != nil {
		t.Fatal(err)
	}
	s, _ = m.Current(ctx, "telegram:1")
	if s.Context != "song" {
		t.Fatalf("await should replace context, got %s", s)
	}

	if err := m.Consume(ctx, "telegram:1"); err != nil {
		t.Fatal(err)
	}
	s, _ = m.Current(ctx, "telegram:1")
	if s.Kind != Idle {
		t.Fatalf("got %s after consume", s)
	}
	if err := m.Consume(ctx, "telegram:1"); err != nil {
		t.Fatalf("consume on idle: %v", err)
	}
}

func TestAwaitRejectsEmptyContext(t *testing.T) {
	m := newMachine(t)
	if err := m.Await(context.Background(), "u", ""); err == nil {
		t.Fatal("expected error")
	}
}
