// Package batcher implements the per-tenant event batching and flush
// scheduling core of the pipeline.
package batcher

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tracklight-systems/tracklight/internal/describe"
	"github.com/tracklight-systems/tracklight/internal/logging"
	"github.com/tracklight-systems/tracklight/internal/metrics"
	"github.com/tracklight-systems/tracklight/internal/models"
	"github.com/tracklight-systems/tracklight/internal/spool"
	"github.com/tracklight-systems/tracklight/internal/tenant"
	"github.com/tracklight-systems/tracklight/internal/transport"
)

const (
	// DefaultBatchSize is the queue length that forces an immediate flush.
	DefaultBatchSize = 100

	// DefaultCriticalFlushInterval is the deferred-flush deadline after a
	// critical event.
	DefaultCriticalFlushInterval = 10 * time.Second

	// DefaultFlushInterval is the deferred-flush deadline after a
	// non-critical event.
	DefaultFlushInterval = 30 * time.Second

	// DefaultDebounceWindow suppresses duplicate event signatures arriving
	// within this interval.
	DefaultDebounceWindow = 1000 * time.Millisecond

	// ledgerSweepMultiple controls how stale a debounce entry must be,
	// relative to the window, before the sweep removes it.
	ledgerSweepMultiple = 5
)

// criticalEvents are event names and actions that require low-latency
// delivery. A matching event bypasses the deferred flush timer.
var criticalEvents = map[string]struct{}{
	"purchase":       {},
	"checkout":       {},
	"payment":        {},
	"order-complete": {},
}

// defaultPageMap maps raw routes to short page identifiers. Unmapped routes
// fall back to the truncated raw path.
var defaultPageMap = map[string]string{
	"/":           "home",
	"/cart":       "cart",
	"/checkout":   "checkout",
	"/products":   "products",
	"/search":     "search",
	"/account":    "account",
	"/orders":     "orders",
	"/order/done": "order-complete",
}

// Submission describes one event as submitted by application code or the
// interaction tracker, before normalization.
type Submission struct {
	Event    string   `json:"event"`
	Category string   `json:"category"`
	Action   string   `json:"action"`
	Label    string   `json:"label,omitempty"`
	Value    *float64 `json:"value,omitempty"`

	// Page is the raw route; it is mapped to a short identifier during
	// normalization.
	Page string `json:"page,omitempty"`

	// UserAgent is the raw user-agent string; only its coarse browser
	// class reaches the wire.
	UserAgent string `json:"userAgent,omitempty"`

	// TenantID, when set by a trusted producer such as the collect
	// receiver, bypasses the resolver chain for this event.
	TenantID string `json:"tenantId,omitempty"`
}

// Config holds the runtime-adjustable knobs of the manager.
type Config struct {
	SamplingRate          float64
	Enabled               bool
	BatchSize             int
	CriticalFlushInterval time.Duration
	FlushInterval         time.Duration
	DebounceWindow        time.Duration
}

// DefaultConfig returns a fully-enabled configuration with default limits.
func DefaultConfig() Config {
	return Config{
		SamplingRate:          1.0,
		Enabled:               true,
		BatchSize:             DefaultBatchSize,
		CriticalFlushInterval: DefaultCriticalFlushInterval,
		FlushInterval:         DefaultFlushInterval,
		DebounceWindow:        DefaultDebounceWindow,
	}
}

// tenantQueue is the per-tenant mutable state. Created lazily on the first
// event for a tenant and kept for the life of the manager.
type tenantQueue struct {
	events    []models.NormalizedEvent
	lastFlush time.Time
	timer     *time.Timer
}

// Manager accepts submissions, resolves tenant identity, deduplicates,
// samples, enqueues per tenant, and guarantees timely delivery with
// differentiated urgency. It never returns an error to event producers:
// transport failures are logged and absorbed by re-queuing.
type Manager struct {
	resolver *tenant.Resolver
	gate     transport.Gate
	logger   *logging.Logger
	pageMap  map[string]string

	mu      sync.Mutex
	cfg     Config
	queues  map[string]*tenantQueue
	ledger  map[string]time.Time
	closed  bool
	stopCh  chan struct{}
	sweepWG sync.WaitGroup

	// Test seams.
	now      func() time.Time
	sample   func() float64
	sweepIvl time.Duration
}

// NewManager creates a manager and starts the debounce ledger sweep loop.
func NewManager(resolver *tenant.Resolver, gate transport.Gate, cfg Config, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	cfg = clamp(cfg)

	m := &Manager{
		resolver: resolver,
		gate:     gate,
		logger:   logger,
		pageMap:  defaultPageMap,
		cfg:      cfg,
		queues:   make(map[string]*tenantQueue),
		ledger:   make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		now:      time.Now,
		sample:   rand.Float64,
		sweepIvl: time.Minute,
	}

	m.sweepWG.Add(1)
	go m.sweepLoop()

	return m
}

func clamp(cfg Config) Config {
	if cfg.SamplingRate < 0 {
		cfg.SamplingRate = 0
	}
	if cfg.SamplingRate > 1 {
		cfg.SamplingRate = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CriticalFlushInterval <= 0 {
		cfg.CriticalFlushInterval = DefaultCriticalFlushInterval
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	return cfg
}

// SetSamplingRate adjusts the sampling rate at runtime, clamped to [0,1].
func (m *Manager) SetSamplingRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	m.cfg.SamplingRate = rate
}

// SetEnabled toggles event intake at runtime.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Enabled = enabled
}

// SetBatchSize adjusts the flush threshold at runtime. Non-positive values
// are ignored.
func (m *Manager) SetBatchSize(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.BatchSize = n
}

// SetFlushIntervals adjusts the deferred-flush deadlines at runtime.
// Non-positive values leave the corresponding interval unchanged.
func (m *Manager) SetFlushIntervals(critical, normal time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if critical > 0 {
		m.cfg.CriticalFlushInterval = critical
	}
	if normal > 0 {
		m.cfg.FlushInterval = normal
	}
}

// SetDebounceWindow adjusts the duplicate-suppression window at runtime.
func (m *Manager) SetDebounceWindow(w time.Duration) {
	if w <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.DebounceWindow = w
}

// IsCritical reports whether an event name or action belongs to the
// critical set.
func IsCritical(eventName, action string) bool {
	if _, ok := criticalEvents[eventName]; ok {
		return true
	}
	_, ok := criticalEvents[action]
	return ok
}

// TrackEvent processes one submission: sampling, tenant resolution,
// debounce, normalization, enqueue, and flush scheduling. A critical event
// or a full queue flushes before this call returns. TrackEvent never
// returns an error to the producer.
func (m *Manager) TrackEvent(ctx context.Context, sub Submission) {
	metrics.EventsReceived.Inc()

	m.mu.Lock()
	if m.closed || !m.cfg.Enabled {
		m.mu.Unlock()
		metrics.EventsDropped.WithLabelValues(metrics.DropDisabled).Inc()
		return
	}
	if m.cfg.SamplingRate < 1 && m.sample() >= m.cfg.SamplingRate {
		m.mu.Unlock()
		metrics.EventsDropped.WithLabelValues(metrics.DropSampled).Inc()
		return
	}
	m.mu.Unlock()

	tenantID := sub.TenantID
	if tenantID == "" {
		tenantID = m.resolver.TenantID()
	}

	m.mu.Lock()
	now := m.now()

	key := fmt.Sprintf("%s:%s:%s:%s", tenantID, sub.Event, sub.Category, sub.Action)
	if last, ok := m.ledger[key]; ok && now.Sub(last) < m.cfg.DebounceWindow {
		m.mu.Unlock()
		metrics.EventsDropped.WithLabelValues(metrics.DropDebounced).Inc()
		return
	}
	m.ledger[key] = now

	ev := m.normalize(sub, tenantID)

	q, ok := m.queues[tenantID]
	if !ok {
		q = &tenantQueue{}
		m.queues[tenantID] = q
	}
	q.events = append(q.events, ev)
	metrics.EventsQueued.Inc()
	metrics.QueueDepth.WithLabelValues(tenantID).Set(float64(len(q.events)))

	critical := IsCritical(ev.EventName, ev.Action)

	if len(q.events) >= m.cfg.BatchSize || critical {
		batch := m.snapshotLocked(tenantID, q)
		m.mu.Unlock()
		m.send(ctx, tenantID, batch)
		return
	}

	m.scheduleLocked(tenantID, q, critical)
	m.mu.Unlock()
}

// normalize builds the wire event with all fields bounded. Callers must
// hold m.mu (the session lookup itself is lock-free).
func (m *Manager) normalize(sub Submission, tenantID string) models.NormalizedEvent {
	return models.NormalizedEvent{
		EventName: models.Truncate(sub.Event, models.MaxEventNameLen),
		Category:  models.Truncate(sub.Category, models.MaxCategoryLen),
		Action:    models.Truncate(sub.Action, models.MaxActionLen),
		Label:     models.Truncate(sub.Label, models.MaxLabelLen),
		Value:     sub.Value,
		SessionID: m.resolver.SessionID(),
		TenantID:  tenantID,
		Page:      m.mapPage(sub.Page),
		UserAgent: describe.BrowserClass(sub.UserAgent),
	}
}

// mapPage converts a raw route into a short page identifier.
func (m *Manager) mapPage(rawPath string) string {
	if mapped, ok := m.pageMap[rawPath]; ok {
		return mapped
	}
	return models.Truncate(rawPath, models.MaxPageLen)
}

// scheduleLocked (re)schedules a deferred flush for the tenant, cancelling
// any previously scheduled timer. Callers must hold m.mu.
func (m *Manager) scheduleLocked(tenantID string, q *tenantQueue, critical bool) {
	interval := m.cfg.FlushInterval
	if critical {
		interval = m.cfg.CriticalFlushInterval
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(interval, func() {
		m.FlushTenant(context.Background(), tenantID)
	})
}

// snapshotLocked swaps the queue's events out in one synchronous step and
// cancels any pending timer. Callers must hold m.mu.
func (m *Manager) snapshotLocked(tenantID string, q *tenantQueue) []models.NormalizedEvent {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	batch := q.events
	q.events = nil
	metrics.QueueDepth.WithLabelValues(tenantID).Set(0)
	return batch
}

// FlushTenant flushes the tenant's queue if non-empty.
func (m *Manager) FlushTenant(ctx context.Context, tenantID string) {
	m.mu.Lock()
	q, ok := m.queues[tenantID]
	if !ok || len(q.events) == 0 {
		m.mu.Unlock()
		return
	}
	batch := m.snapshotLocked(tenantID, q)
	m.mu.Unlock()

	m.send(ctx, tenantID, batch)
}

// send delivers a batch through the transport gate. On failure the batch is
// re-inserted at the front of the tenant's queue, ahead of events enqueued
// during the attempt, and no retry is scheduled; the next qualifying
// TrackEvent or an explicit flush retries.
func (m *Manager) send(ctx context.Context, tenantID string, batch []models.NormalizedEvent) {
	if len(batch) == 0 {
		return
	}

	envelope := &models.BatchEnvelope{
		Events:     batch,
		Timestamp:  m.now().UnixMilli(),
		Compressed: false,
		TenantID:   tenantID,
	}

	ctx = logging.ContextWithTenant(ctx, tenantID)

	if err := m.gate.Send(ctx, envelope); err != nil {
		metrics.FlushesTotal.WithLabelValues("failure").Inc()
		m.logger.WarnContext(ctx, "batch delivery failed, re-queuing events",
			logging.BatchSize(len(batch)),
			logging.Error(err),
		)

		m.mu.Lock()
		q, ok := m.queues[tenantID]
		if !ok {
			q = &tenantQueue{}
			m.queues[tenantID] = q
		}
		q.events = append(batch, q.events...)
		metrics.QueueDepth.WithLabelValues(tenantID).Set(float64(len(q.events)))
		m.mu.Unlock()
		return
	}

	metrics.FlushesTotal.WithLabelValues("success").Inc()
	metrics.FlushBatchSize.Observe(float64(len(batch)))

	m.mu.Lock()
	if q, ok := m.queues[tenantID]; ok {
		q.lastFlush = m.now()
	}
	m.mu.Unlock()
}

// FlushAll flushes every known tenant queue concurrently and awaits
// completion. Used at teardown.
func (m *Manager) FlushAll(ctx context.Context) {
	m.mu.Lock()
	tenants := make([]string, 0, len(m.queues))
	for id := range m.queues {
		tenants = append(tenants, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range tenants {
		wg.Add(1)
		go func(tenantID string) {
			defer wg.Done()
			m.FlushTenant(ctx, tenantID)
		}(id)
	}
	wg.Wait()
}

// DrainSpool replays batches recovered from a durable spool through the
// transport gate. Batches that still fail delivery are re-queued into their
// tenant queues for the normal retry path.
func (m *Manager) DrainSpool(ctx context.Context, s spool.Spool) error {
	envelopes, err := s.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain spool: %w", err)
	}

	for _, envelope := range envelopes {
		metrics.SpoolDrained.Inc()
		m.send(ctx, envelope.TenantID, envelope.Events)
	}
	return nil
}

// QueueLen returns the current queue depth for a tenant.
func (m *Manager) QueueLen(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[tenantID]; ok {
		return len(q.events)
	}
	return 0
}

// sweepLoop periodically removes debounce ledger entries old enough to be
// irrelevant, keeping the ledger bounded over long sessions.
func (m *Manager) sweepLoop() {
	defer m.sweepWG.Done()

	ticker := time.NewTicker(m.sweepIvl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepLedger()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweepLedger() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-time.Duration(ledgerSweepMultiple) * m.cfg.DebounceWindow)
	for key, last := range m.ledger {
		if last.Before(cutoff) {
			delete(m.ledger, key)
		}
	}
}

// Close stops the sweep loop and all pending flush timers, then performs a
// final best-effort flush of all tenants with a bounded deadline. Safe to
// call once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stopCh)
	for _, q := range m.queues {
		if q.timer != nil {
			q.timer.Stop()
			q.timer = nil
		}
	}
	m.mu.Unlock()

	m.sweepWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.FlushAll(ctx)
}
