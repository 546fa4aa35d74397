// Package state models the per-user pending-context slot as a two-state machine.
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

// Kind is the machine state.
type Kind int

const (
	Idle Kind = iota
	Awaiting
)

func (k Kind) String() string {
	if k == Awaiting {
		return "awaiting"
	}
	return "idle"
}

// State is a user's current position. Context is set only when Kind is Awaiting.
type State struct {
	Kind    Kind
	Context string
}

func (s State) String() string {
	if s.Kind == Awaiting {
		return "awaiting:" + s.Context
	}
	return "idle"
}

// Machine drives transitions over a durable StateStore.
//
//	idle     --Await(c)--> awaiting:c
//	awaiting --Await(c)--> awaiting:c
//	awaiting --Consume---> idle
type Machine struct {
	store store.StateStore
}

func NewMachine(s store.StateStore) *Machine {
	return &Machine{store: s}
}

// Current reads the user's state.
func (m *Machine) Current(ctx context.Context, userID string) (State, error) {
	c, err := m.store.GetState(ctx, userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && c == "") {
		return State{Kind: Idle}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get state: %w", err)
	}
	return State{Kind: Awaiting, Context: c}, nil
}

// Await moves the user to awaiting:contextName, replacing any pending context.
func (m *Machine) Await(ctx context.Context, userID, contextName string) error {
	if contextName == "" {
		return errors.New("await needs a context name")
	}
	if err := m.store.SetState(ctx, userID, contextName); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// Consume returns the user to idle. Consuming an idle user is a no-op.
func (m *Machine) Consume(ctx context.Context, userID string) error {
	if err := m.store.ClearState(ctx, userID); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}
