package board

import (
	"context"
	"time"

	"boardsync/domain"
)

// TaskFetcher retrieves the full task snapshot for a board. Fetches must be
// idempotent and safe to call repeatedly.
type TaskFetcher interface {
	FetchTasks(ctx context.Context, boardID string) ([]domain.Task, error)
}

// StatusFetcher retrieves the board's column configuration.
type StatusFetcher interface {
	FetchStatuses(ctx context.Context, boardID string) ([]domain.Status, error)
}

// TaskMover persists a committed drag. The transport does not guarantee
// exactly-once delivery, so the idempotency key travels with the request
// and confirmations must be tolerated more than once.
type TaskMover interface {
	MoveTask(ctx context.Context, taskID string, move MoveRequest) error
}

// TransitionGate decides whether moving a task from its current column to a
// proposed one is a legal workflow transition.
type TransitionGate interface {
	Allowed(ctx context.Context, task domain.Task, current, dest domain.Status) error
}

// MoveRequest is the persist payload for a committed drag.
type MoveRequest struct {
	StatusID       string `json:"statusId"`
	Order          int    `json:"order"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

const (
	// DefaultConfirmTimeout bounds how long a pending entry may wait for a
	// push confirmation before a forced refetch clears it. The value is a
	// tunable, not a guarantee; deployments should check it against real
	// push latency.
	DefaultConfirmTimeout = 3 * time.Second
	DefaultMutateTimeout  = 30 * time.Second
	DefaultFetchTimeout   = 15 * time.Second
)

// Config carries engine tunables.
type Config struct {
	BoardID        string
	ConfirmTimeout time.Duration
	MutateTimeout  time.Duration
	FetchTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.MutateTimeout <= 0 {
		c.MutateTimeout = DefaultMutateTimeout
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}
