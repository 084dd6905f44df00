// Package transport delivers batch envelopes to an ingestion backend.
package transport

import (
	"context"

	"github.com/tracklight-systems/tracklight/internal/models"
)

// Gate is the single delivery operation invoked by the batching manager.
// Any returned error is treated uniformly as a delivery failure; the
// manager re-queues the batch and retries on the next qualifying event.
// Timeouts, if any, are the gate's own responsibility.
type Gate interface {
	Send(ctx context.Context, envelope *models.BatchEnvelope) error
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, envelope *models.BatchEnvelope) error

func (f GateFunc) Send(ctx context.Context, envelope *models.BatchEnvelope) error {
	return f(ctx, envelope)
}
