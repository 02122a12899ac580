// Package state owns the review lifecycle of feedback records: validated
// transitions, the append-only audit trail and user comments.
package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/feedlens/feedlens/pkg/domain"
)

// Store is the persistence interface the manager needs
type Store interface {
	GetRecord(ctx context.Context, identity string) (*domain.FeedbackRecord, error)
	UpdateState(ctx context.Context, identity string, newState domain.RecordState, user string) (*domain.FeedbackRecord, error)
	AddComment(ctx context.Context, identity, text, user string) (*domain.Comment, error)
	GetComments(ctx context.Context, identity string) ([]domain.Comment, error)
	GetHistory(ctx context.Context, identity string) ([]domain.StateTransition, error)
}

// Manager validates lifecycle operations before they hit storage
type Manager struct {
	store Store
}

// NewManager creates a lifecycle manager over the given store
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Get retrieves a single record by identity
func (m *Manager) Get(ctx context.Context, identity string) (*domain.FeedbackRecord, error) {
	return m.store.GetRecord(ctx, identity)
}

// Transition moves a record to newState on behalf of user. Only value
// validation is applied: any defined state may follow any other, including
// reopening a closed record to NEW. The transition and its audit entry are
// written atomically by the store.
func (m *Manager) Transition(ctx context.Context, identity string, newState domain.RecordState, user string) (*domain.FeedbackRecord, error) {
	if !domain.ValidState(newState) {
		return nil, fmt.Errorf("state %q: %w", newState, domain.ErrInvalidState)
	}

	rec, err := m.store.UpdateState(ctx, identity, newState, user)
	if err != nil {
		return nil, err
	}
	lgr.Printf("[INFO] record %s moved to %s by %q", identity, newState, user)
	return rec, nil
}

// Comment appends a note to a record without touching its state
func (m *Manager) Comment(ctx context.Context, identity, text, user string) (*domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty comment text")
	}
	return m.store.AddComment(ctx, identity, text, user)
}

// Comments returns all comments for a record, oldest first
func (m *Manager) Comments(ctx context.Context, identity string) ([]domain.Comment, error) {
	return m.store.GetComments(ctx, identity)
}

// History returns the audit trail for a record, oldest first
func (m *Manager) History(ctx context.Context, identity string) ([]domain.StateTransition, error) {
	return m.store.GetHistory(ctx, identity)
}
