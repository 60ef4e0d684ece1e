// Package service holds the contracts the relay services use to reach each
// other. Implementations live in the subpackages.
package service

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks e2e_relay/internal/service Notifier,ContactGate,InboxHints

import (
	"context"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

type (
	// Notifier delivers an event to a present user. It never blocks and
	// reports false when the user is offline or the push was dropped.
	Notifier interface {
		Notify(user uuid.UUID, ev model.Event) bool
	}

	// ContactGate answers whether two users hold an accepted relationship.
	ContactGate interface {
		Accepted(ctx context.Context, a, b uuid.UUID) (bool, error)
	}

	// InboxHints is a best-effort per-sender unread counter used for the
	// connect-time summary. Storage stays the source of truth.
	InboxHints interface {
		Bump(ctx context.Context, recipient, sender uuid.UUID) error
		// Drop takes one envelope off the counter, removing the field once
		// it reaches zero.
		Drop(ctx context.Context, recipient, sender uuid.UUID) error
		Clear(ctx context.Context, recipient, sender uuid.UUID) error
		Pending(ctx context.Context, recipient uuid.UUID) (map[uuid.UUID]int64, error)
	}
)
