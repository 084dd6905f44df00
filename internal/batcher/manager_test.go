package batcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklight-systems/tracklight/internal/logging"
	"github.com/tracklight-systems/tracklight/internal/models"
	"github.com/tracklight-systems/tracklight/internal/tenant"
)

// mockGate records sent envelopes and supports per-call failure injection.
type mockGate struct {
	mu       sync.Mutex
	sends    []*models.BatchEnvelope
	sendFunc func(ctx context.Context, envelope *models.BatchEnvelope) error
}

func (g *mockGate) Send(ctx context.Context, envelope *models.BatchEnvelope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendFunc != nil {
		if err := g.sendFunc(ctx, envelope); err != nil {
			return err
		}
	}
	g.sends = append(g.sends, envelope)
	return nil
}

func (g *mockGate) sent() []*models.BatchEnvelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*models.BatchEnvelope, len(g.sends))
	copy(out, g.sends)
	return out
}

func newTestManager(t *testing.T, gate *mockGate, cfg Config) *Manager {
	t.Helper()

	resolver := tenant.NewResolver(tenant.StaticSource("t1"))
	m := NewManager(resolver, gate, cfg, logging.Default())
	m.sample = func() float64 { return 0 } // always pass sampling
	t.Cleanup(func() { m.Close() })
	return m
}

func TestTrackEvent_TruncationInvariant(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	long := "this-is-a-very-long-identifier-well-past-every-limit"
	m.TrackEvent(context.Background(), Submission{
		Event:    long,
		Category: long,
		Action:   long,
		Label:    long + long,
		Page:     "/some/very/long/route/that/keeps/going",
	})

	m.FlushAll(context.Background())

	sends := gate.sent()
	require.Len(t, sends, 1)
	require.Len(t, sends[0].Events, 1)

	ev := sends[0].Events[0]
	assert.LessOrEqual(t, len(ev.EventName), models.MaxEventNameLen)
	assert.LessOrEqual(t, len(ev.Category), models.MaxCategoryLen)
	assert.LessOrEqual(t, len(ev.Action), models.MaxActionLen)
	assert.LessOrEqual(t, len(ev.Label), models.MaxLabelLen)
	assert.LessOrEqual(t, len(ev.Page), models.MaxPageLen)
}

func TestTrackEvent_DebounceInvariant(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	base := time.Now()
	m.now = func() time.Time { return base }

	sub := Submission{Event: "click", Category: "interaction", Action: "click"}
	m.TrackEvent(context.Background(), sub)

	// Second identical signature 200ms later, inside the 1s window.
	m.now = func() time.Time { return base.Add(200 * time.Millisecond) }
	m.TrackEvent(context.Background(), sub)

	assert.Equal(t, 1, m.QueueLen("t1"), "duplicate inside debounce window must be dropped")

	// Outside the window the signature is accepted again.
	m.now = func() time.Time { return base.Add(1500 * time.Millisecond) }
	m.TrackEvent(context.Background(), sub)
	assert.Equal(t, 2, m.QueueLen("t1"))
}

func TestTrackEvent_CriticalFlushesImmediately(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	value := 5000.0
	m.TrackEvent(context.Background(), Submission{
		Event:    "purchase",
		Category: "ecommerce",
		Action:   "purchase",
		Label:    "order_123",
		Value:    &value,
	})

	// Flush must have been initiated before TrackEvent returned, no timer
	// involved.
	sends := gate.sent()
	require.Len(t, sends, 1)
	require.Len(t, sends[0].Events, 1)
	assert.Equal(t, "purchase", sends[0].Events[0].EventName)
	assert.Equal(t, "t1", sends[0].TenantID)
	assert.Equal(t, 0, m.QueueLen("t1"))
}

func TestTrackEvent_ThresholdFlush(t *testing.T) {
	gate := &mockGate{}
	cfg := DefaultConfig()
	cfg.BatchSize = 3
	m := newTestManager(t, gate, cfg)

	for _, name := range []string{"view_a", "view_b", "view_c"} {
		m.TrackEvent(context.Background(), Submission{
			Event: name, Category: "navigation", Action: "view",
		})
	}

	sends := gate.sent()
	require.Len(t, sends, 1, "exactly one flush at the threshold")
	assert.Len(t, sends[0].Events, 3)
	assert.Equal(t, 0, m.QueueLen("t1"), "queue starts a fresh accumulation cycle")

	// The next event begins a new cycle without flushing.
	m.TrackEvent(context.Background(), Submission{
		Event: "view_d", Category: "navigation", Action: "view",
	})
	assert.Len(t, gate.sent(), 1)
	assert.Equal(t, 1, m.QueueLen("t1"))
}

func TestTrackEvent_RetryOrderAfterFailure(t *testing.T) {
	gate := &mockGate{}
	fail := true
	gate.sendFunc = func(ctx context.Context, envelope *models.BatchEnvelope) error {
		if fail {
			fail = false
			return errors.New("ingest unavailable")
		}
		return nil
	}
	m := newTestManager(t, gate, DefaultConfig())

	// First critical event: flush fails, batch re-queued at the front.
	m.TrackEvent(context.Background(), Submission{
		Event: "purchase", Category: "ecommerce", Action: "purchase",
	})
	require.Empty(t, gate.sent())
	require.Equal(t, 1, m.QueueLen("t1"))

	// Second critical event triggers the retry; the batch must contain the
	// failed event before the new one, in original order.
	m.TrackEvent(context.Background(), Submission{
		Event: "checkout", Category: "ecommerce", Action: "checkout",
	})

	sends := gate.sent()
	require.Len(t, sends, 1)
	require.Len(t, sends[0].Events, 2)
	assert.Equal(t, "purchase", sends[0].Events[0].EventName)
	assert.Equal(t, "checkout", sends[0].Events[1].EventName)
	assert.Equal(t, 0, m.QueueLen("t1"))
}

func TestTrackEvent_SamplingDropsEverything(t *testing.T) {
	gate := &mockGate{}
	cfg := DefaultConfig()
	cfg.SamplingRate = 0
	m := newTestManager(t, gate, cfg)
	m.sample = func() float64 { return 0.5 }

	m.TrackEvent(context.Background(), Submission{
		Event: "purchase", Category: "ecommerce", Action: "purchase",
	})

	assert.Empty(t, gate.sent())
	assert.Equal(t, 0, m.QueueLen("t1"))
}

func TestTrackEvent_DisabledDropsEverything(t *testing.T) {
	gate := &mockGate{}
	cfg := DefaultConfig()
	cfg.Enabled = false
	m := newTestManager(t, gate, cfg)

	m.TrackEvent(context.Background(), Submission{
		Event: "purchase", Category: "ecommerce", Action: "purchase",
	})
	assert.Empty(t, gate.sent())

	m.SetEnabled(true)
	m.TrackEvent(context.Background(), Submission{
		Event: "purchase", Category: "ecommerce", Action: "purchase",
	})
	assert.Len(t, gate.sent(), 1)
}

func TestTrackEvent_TenantIsolation(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	m.TrackEvent(context.Background(), Submission{
		Event: "view", Category: "navigation", Action: "view", TenantID: "acme",
	})
	m.TrackEvent(context.Background(), Submission{
		Event: "view", Category: "navigation", Action: "view", TenantID: "globex",
	})

	// Same signature but different tenants: both accepted.
	assert.Equal(t, 1, m.QueueLen("acme"))
	assert.Equal(t, 1, m.QueueLen("globex"))
}

func TestScheduledFlushFires(t *testing.T) {
	gate := &mockGate{}
	cfg := DefaultConfig()
	cfg.FlushInterval = 30 * time.Millisecond
	m := newTestManager(t, gate, cfg)

	m.TrackEvent(context.Background(), Submission{
		Event: "view", Category: "navigation", Action: "view",
	})
	require.Empty(t, gate.sent())

	// Wait for the deferred flush timer.
	deadline := time.Now().Add(2 * time.Second)
	for len(gate.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sends := gate.sent()
	require.Len(t, sends, 1)
	assert.Len(t, sends[0].Events, 1)
	assert.Equal(t, 0, m.QueueLen("t1"))
}

func TestFlushAll_FlushesEveryTenant(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	for _, id := range []string{"acme", "globex", "initech"} {
		m.TrackEvent(context.Background(), Submission{
			Event: "view", Category: "navigation", Action: "view", TenantID: id,
		})
	}

	m.FlushAll(context.Background())

	sends := gate.sent()
	require.Len(t, sends, 3)
	seen := make(map[string]bool)
	for _, envelope := range sends {
		seen[envelope.TenantID] = true
	}
	assert.True(t, seen["acme"] && seen["globex"] && seen["initech"])
}

func TestFlushTenant_EmptyQueueIsNoop(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	m.FlushTenant(context.Background(), "t1")
	m.FlushTenant(context.Background(), "never-seen")
	assert.Empty(t, gate.sent())
}

func TestTrackEvent_UnknownTenantSentinel(t *testing.T) {
	gate := &mockGate{}
	resolver := tenant.NewResolver() // no sources resolve
	m := NewManager(resolver, gate, DefaultConfig(), logging.Default())
	m.sample = func() float64 { return 0 }
	t.Cleanup(func() { m.Close() })

	m.TrackEvent(context.Background(), Submission{
		Event: "view", Category: "navigation", Action: "view",
	})
	assert.Equal(t, 1, m.QueueLen(tenant.Unknown))
}

func TestNormalize_PageMappingAndUserAgentClass(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	tests := []struct {
		name     string
		page     string
		ua       string
		wantPage string
		wantUA   string
	}{
		{"mapped route", "/checkout", "Mozilla/5.0 Chrome/120", "checkout", "chrome"},
		{"root route", "/", "Mozilla/5.0 Firefox/121", "home", "firefox"},
		{"unmapped route truncated", "/very/long/unmapped/route/path", "", "/very/long/unmapped/", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := m.normalize(Submission{
				Event: "view", Category: "navigation", Action: "view",
				Page: tt.page, UserAgent: tt.ua,
			}, "t1")

			assert.Equal(t, tt.wantPage, ev.Page)
			assert.Equal(t, tt.wantUA, ev.UserAgent)
			assert.Equal(t, "t1", ev.TenantID)
			assert.NotEmpty(t, ev.SessionID)
		})
	}
}

func TestIsCritical(t *testing.T) {
	tests := []struct {
		event  string
		action string
		want   bool
	}{
		{"purchase", "click", true},
		{"click", "payment", true},
		{"order-complete", "", true},
		{"page_view", "view", false},
		{"", "", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsCritical(tt.event, tt.action), "event=%q action=%q", tt.event, tt.action)
	}
}

func TestSetters_ClampAndIgnoreInvalid(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	m.SetSamplingRate(2.5)
	assert.Equal(t, 1.0, m.cfg.SamplingRate)
	m.SetSamplingRate(-1)
	assert.Equal(t, 0.0, m.cfg.SamplingRate)

	m.SetBatchSize(0)
	assert.Equal(t, DefaultBatchSize, m.cfg.BatchSize)
	m.SetBatchSize(25)
	assert.Equal(t, 25, m.cfg.BatchSize)

	m.SetFlushIntervals(time.Second, 2*time.Second)
	assert.Equal(t, time.Second, m.cfg.CriticalFlushInterval)
	assert.Equal(t, 2*time.Second, m.cfg.FlushInterval)

	m.SetDebounceWindow(0)
	assert.Equal(t, DefaultDebounceWindow, m.cfg.DebounceWindow)
	m.SetDebounceWindow(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, m.cfg.DebounceWindow)
}

func TestSweepLedger_RemovesStaleEntries(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	base := time.Now()
	m.now = func() time.Time { return base }
	m.TrackEvent(context.Background(), Submission{
		Event: "view", Category: "navigation", Action: "view",
	})
	require.Len(t, m.ledger, 1)

	// Fresh entries survive a sweep.
	m.sweepLedger()
	assert.Len(t, m.ledger, 1)

	// Entries older than 5x the window are removed.
	m.now = func() time.Time { return base.Add(10 * time.Second) }
	m.sweepLedger()
	assert.Empty(t, m.ledger)
}

func TestDrainSpool_ReplaysAndRequeuesFailures(t *testing.T) {
	gate := &mockGate{}
	m := newTestManager(t, gate, DefaultConfig())

	spooled := &fakeSpool{envelopes: []*models.BatchEnvelope{
		{
			TenantID: "acme",
			Events: []models.NormalizedEvent{
				{EventName: "purchase", TenantID: "acme"},
			},
		},
	}}

	require.NoError(t, m.DrainSpool(context.Background(), spooled))

	sends := gate.sent()
	require.Len(t, sends, 1)
	assert.Equal(t, "acme", sends[0].TenantID)

	// A failed replay lands back in the tenant queue.
	gate2 := &mockGate{sendFunc: func(ctx context.Context, envelope *models.BatchEnvelope) error {
		return errors.New("still down")
	}}
	m2 := newTestManager(t, gate2, DefaultConfig())
	spooled.envelopes[0].Events[0].EventName = "view"
	require.NoError(t, m2.DrainSpool(context.Background(), &fakeSpool{envelopes: spooled.envelopes}))
	assert.Equal(t, 1, m2.QueueLen("acme"))
	// Release the failure so the deferred Close flush can drain cleanly.
	gate2.mu.Lock()
	gate2.sendFunc = nil
	gate2.mu.Unlock()
}

type fakeSpool struct {
	envelopes []*models.BatchEnvelope
}

func (s *fakeSpool) Push(ctx context.Context, envelope *models.BatchEnvelope) error {
	s.envelopes = append(s.envelopes, envelope)
	return nil
}

func (s *fakeSpool) Drain(ctx context.Context) ([]*models.BatchEnvelope, error) {
	return s.envelopes, nil
}

func (s *fakeSpool) Close() error { return nil }

func TestClose_IsIdempotentAndFlushes(t *testing.T) {
	gate := &mockGate{}
	resolver := tenant.NewResolver(tenant.StaticSource("t1"))
	m := NewManager(resolver, gate, DefaultConfig(), logging.Default())
	m.sample = func() float64 { return 0 }

	m.TrackEvent(context.Background(), Submission{
		Event: "view", Category: "navigation", Action: "view",
	})

	m.Close()
	m.Close()

	sends := gate.sent()
	require.Len(t, sends, 1)
	assert.Len(t, sends[0].Events, 1)

	// Events after Close are dropped.
	m.TrackEvent(context.Background(), Submission{
		Event: "late", Category: "navigation", Action: "view",
	})
	assert.Len(t, gate.sent(), 1)
}
