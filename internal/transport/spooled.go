package transport

import (
	"context"

	"github.com/tracklight-systems/tracklight/internal/logging"
	"github.com/tracklight-systems/tracklight/internal/models"
	"github.com/tracklight-systems/tracklight/internal/spool"
)

// SpooledGate decorates a gate with durable capture of failed deliveries.
// When the inner gate fails and the envelope is spooled successfully, Send
// reports success: delivery is deferred to the next startup drain instead of
// the in-memory retry path. If spooling also fails, the original delivery
// error is returned and the manager's re-queue semantics apply unchanged.
type SpooledGate struct {
	inner  Gate
	spool  spool.Spool
	logger *logging.Logger
}

// NewSpooledGate wraps inner with spool capture.
func NewSpooledGate(inner Gate, s spool.Spool, logger *logging.Logger) *SpooledGate {
	if logger == nil {
		logger = logging.Default()
	}
	return &SpooledGate{inner: inner, spool: s, logger: logger}
}

// Send implements Gate.
func (g *SpooledGate) Send(ctx context.Context, envelope *models.BatchEnvelope) error {
	err := g.inner.Send(ctx, envelope)
	if err == nil {
		return nil
	}

	if spoolErr := g.spool.Push(ctx, envelope); spoolErr != nil {
		g.logger.WarnContext(ctx, "failed to spool undelivered batch",
			logging.BatchSize(len(envelope.Events)),
			logging.Error(spoolErr),
		)
		return err
	}

	g.logger.InfoContext(ctx, "spooled undelivered batch for startup replay",
		logging.BatchSize(len(envelope.Events)),
	)
	return nil
}
