// Package spool provides the durable hook for unsent batches. The pipeline
// core only drains a spool at startup; it never depends on spool writes
// succeeding.
package spool

import (
	"context"

	"github.com/tracklight-systems/tracklight/internal/models"
)

// Spool stores batch envelopes that could not be delivered, for replay on
// the next startup.
type Spool interface {
	Push(ctx context.Context, envelope *models.BatchEnvelope) error
	Drain(ctx context.Context) ([]*models.BatchEnvelope, error)
	Close() error
}

// Noop discards pushes and drains nothing (spooling disabled).
type Noop struct{}

func (Noop) Push(ctx context.Context, envelope *models.BatchEnvelope) error { return nil }

func (Noop) Drain(ctx context.Context) ([]*models.BatchEnvelope, error) { return nil, nil }

func (Noop) Close() error { return nil }
