package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tracklight-systems/tracklight/internal/models"
)

// DefaultSubjectPrefix is the subject root for published batches; the
// tenant identifier is appended as the final token.
const DefaultSubjectPrefix = "tracklight.batches"

// NATSGate publishes envelopes to a per-tenant NATS subject, for
// deployments that ship batches through a broker instead of HTTP.
type NATSGate struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NATSConfig holds NATS gate connection settings.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns a NATSConfig with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "tracklight-gate",
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSGate connects to NATS and returns a gate publishing to
// subjectPrefix.<tenant>.
func NewNATSGate(cfg NATSConfig) (*NATSGate, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSGate{
		conn:          conn,
		subjectPrefix: cfg.SubjectPrefix,
	}, nil
}

// Send publishes the envelope as JSON to the tenant's subject.
func (g *NATSGate) Send(ctx context.Context, envelope *models.BatchEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := g.subjectPrefix + "." + envelope.TenantID
	if err := g.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (g *NATSGate) Close() error {
	if g.conn != nil {
		return g.conn.Drain()
	}
	return nil
}
