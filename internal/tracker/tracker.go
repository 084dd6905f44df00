// Package tracker converts raw page interaction signals into normalized
// interaction records, with built-in noise suppression for hover and scroll.
package tracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tracklight-systems/tracklight/internal/describe"
	"github.com/tracklight-systems/tracklight/internal/logging"
	"github.com/tracklight-systems/tracklight/internal/metrics"
	"github.com/tracklight-systems/tracklight/internal/models"
)

const (
	// DefaultHoverDelay is the confirmation delay before a hover is
	// considered intentional.
	DefaultHoverDelay = 500 * time.Millisecond

	// DefaultScrollThrottle is the minimum interval between processed
	// scroll signals in global mode.
	DefaultScrollThrottle = 1000 * time.Millisecond

	// DefaultScrollMinDelta is the minimum vertical movement in pixels for
	// a scroll signal to be processed in global mode.
	DefaultScrollMinDelta = 50.0
)

// EmitFunc receives completed interaction records.
type EmitFunc func(*models.InteractionRecord)

// Listener receives raw interaction signals from an installed Source.
type Listener interface {
	RawClick(el *models.Element, page string)
	RawHover(el *models.Element, page string)
	RawScroll(state models.ScrollState, page string)
	RawFocus(el *models.Element, page string)
	RawInput(el *models.Element, page string)
}

// Source installs global capture of raw interaction signals and delivers
// them to a Listener. It is the stand-in for attaching capturing listeners
// to a document.
type Source interface {
	Install(l Listener) error
	Uninstall() error
}

// Config holds tracker tuning knobs.
type Config struct {
	HoverDelay     time.Duration
	ScrollThrottle time.Duration
	ScrollMinDelta float64
	UserAgent      string
}

func (c Config) withDefaults() Config {
	if c.HoverDelay <= 0 {
		c.HoverDelay = DefaultHoverDelay
	}
	if c.ScrollThrottle <= 0 {
		c.ScrollThrottle = DefaultScrollThrottle
	}
	if c.ScrollMinDelta <= 0 {
		c.ScrollMinDelta = DefaultScrollMinDelta
	}
	return c
}

// Tracker owns per-element hover debounce timers and a global scroll
// throttle. It never propagates failures to callers; any bad element
// snapshot is logged and yields a nil record.
type Tracker struct {
	cfg    Config
	device models.DeviceType
	source Source
	logger *logging.Logger

	mu          sync.Mutex
	emit        EmitFunc
	enabled     bool
	hoverTimers map[string]*time.Timer
	lastScroll  time.Time
	lastScrollY float64
	hasScrolled bool
	scrollX     float64
	scrollY     float64

	now func() time.Time
}

// New creates a tracker. source may be nil when the tracker is driven
// exclusively through the explicit Track* API.
func New(cfg Config, source Source, logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()

	return &Tracker{
		cfg:         cfg,
		device:      describe.DetectDeviceType(cfg.UserAgent),
		source:      source,
		logger:      logger,
		hoverTimers: make(map[string]*time.Timer),
		now:         time.Now,
	}
}

// Enable installs the global source and routes its signals through emit.
// Calling Enable while already enabled is a no-op.
func (t *Tracker) Enable(emit EmitFunc) error {
	t.mu.Lock()
	if t.enabled {
		t.mu.Unlock()
		return nil
	}
	t.enabled = true
	t.emit = emit
	t.mu.Unlock()

	if t.source != nil {
		if err := t.source.Install(t); err != nil {
			t.mu.Lock()
			t.enabled = false
			t.mu.Unlock()
			return err
		}
	}
	return nil
}

// Disable uninstalls the global source. Calling Disable while already
// disabled is a no-op.
func (t *Tracker) Disable() {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return
	}
	t.enabled = false
	t.mu.Unlock()

	if t.source != nil {
		if err := t.source.Uninstall(); err != nil {
			t.logger.Warn("failed to uninstall interaction source", logging.Error(err))
		}
	}
}

// TrackClick records a click synchronously. Returns nil for an invalid
// element.
func (t *Tracker) TrackClick(el *models.Element, page string) *models.InteractionRecord {
	return t.record(el, page, models.InteractionClick)
}

// TrackFocus records a focus synchronously, same contract as TrackClick.
func (t *Tracker) TrackFocus(el *models.Element, page string) *models.InteractionRecord {
	return t.record(el, page, models.InteractionFocus)
}

// TrackInput records an input synchronously, same contract as TrackClick.
func (t *Tracker) TrackInput(el *models.Element, page string) *models.InteractionRecord {
	return t.record(el, page, models.InteractionInput)
}

// HoverHandle allows cancelling a pending hover confirmation.
type HoverHandle struct {
	cancel func()
}

// Cancel stops the pending hover timer. Safe to call after the timer fired.
func (h *HoverHandle) Cancel() {
	if h != nil && h.cancel != nil {
		h.cancel()
	}
}

// TrackHover arms a hover confirmation timer for the element. The record is
// delivered through fn only if the delay elapses without a newer hover on
// the same element. Arming a pending element replaces its timer
// (last hover wins within the window). A nil fn falls back to the emit
// callback registered via Enable. A zero delay uses the configured default.
func (t *Tracker) TrackHover(el *models.Element, page string, delay time.Duration, fn EmitFunc) *HoverHandle {
	if el == nil {
		t.logger.Warn("hover on invalid element", slog.String(logging.FieldPage, page))
		return nil
	}
	if delay <= 0 {
		delay = t.cfg.HoverDelay
	}

	key := describe.ElementSelector(el)

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.hoverTimers[key]; ok {
		prev.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.hoverTimers[key] == timer {
			delete(t.hoverTimers, key)
		}
		if fn == nil {
			fn = t.emit
		}
		t.mu.Unlock()

		rec := t.record(el, page, models.InteractionHover)
		if rec != nil && fn != nil {
			fn(rec)
		}
	})
	t.hoverTimers[key] = timer

	return &HoverHandle{cancel: func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.hoverTimers[key] == timer {
			timer.Stop()
			delete(t.hoverTimers, key)
		}
	}}
}

// TrackScroll records a scroll position. The explicit API applies no
// throttle of its own; callers throttle externally if desired.
func (t *Tracker) TrackScroll(state models.ScrollState, page string) *models.InteractionRecord {
	t.mu.Lock()
	t.scrollX = state.ScrollX
	t.scrollY = state.ScrollY
	t.mu.Unlock()

	rec := &models.InteractionRecord{
		ElementSelector: "window",
		ElementPosition: models.Point{X: int(state.ScrollX), Y: int(state.ScrollY)},
		InteractionType: models.InteractionScroll,
		DeviceType:      t.device,
		Page:            page,
		Timestamp:       t.now(),
	}
	metrics.InteractionsTracked.WithLabelValues(string(models.InteractionScroll)).Inc()
	return rec
}

// Cleanup cancels all pending hover timers. Safe to call multiple times.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.hoverTimers {
		timer.Stop()
		delete(t.hoverTimers, key)
	}
}

// PendingHovers returns the number of armed hover timers.
func (t *Tracker) PendingHovers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hoverTimers)
}

// RawClick implements Listener for the global source.
func (t *Tracker) RawClick(el *models.Element, page string) {
	if rec := t.TrackClick(el, page); rec != nil {
		t.deliver(rec)
	}
}

// RawHover implements Listener; the record is delivered after the hover
// delay through the emit callback.
func (t *Tracker) RawHover(el *models.Element, page string) {
	t.TrackHover(el, page, 0, nil)
}

// RawScroll implements Listener. A scroll signal is processed only when the
// throttle window has elapsed and the vertical delta exceeds the minimum.
func (t *Tracker) RawScroll(state models.ScrollState, page string) {
	t.mu.Lock()
	now := t.now()
	if t.hasScrolled {
		delta := state.ScrollY - t.lastScrollY
		if delta < 0 {
			delta = -delta
		}
		if now.Sub(t.lastScroll) < t.cfg.ScrollThrottle || delta < t.cfg.ScrollMinDelta {
			t.mu.Unlock()
			metrics.InteractionsThrottled.Inc()
			return
		}
	}
	t.hasScrolled = true
	t.lastScroll = now
	t.lastScrollY = state.ScrollY
	t.mu.Unlock()

	if rec := t.TrackScroll(state, page); rec != nil {
		t.deliver(rec)
	}
}

// RawFocus implements Listener.
func (t *Tracker) RawFocus(el *models.Element, page string) {
	if rec := t.TrackFocus(el, page); rec != nil {
		t.deliver(rec)
	}
}

// RawInput implements Listener.
func (t *Tracker) RawInput(el *models.Element, page string) {
	if rec := t.TrackInput(el, page); rec != nil {
		t.deliver(rec)
	}
}

func (t *Tracker) deliver(rec *models.InteractionRecord) {
	t.mu.Lock()
	emit := t.emit
	enabled := t.enabled
	t.mu.Unlock()

	if enabled && emit != nil {
		emit(rec)
	}
}

// record builds an interaction record from an element snapshot. Any failure
// reading the snapshot is absorbed and yields nil.
func (t *Tracker) record(el *models.Element, page string, typ models.InteractionType) (rec *models.InteractionRecord) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("failed to read element snapshot",
				slog.String(logging.FieldPage, page),
				"interaction", string(typ),
				"panic", r,
			)
			rec = nil
		}
	}()

	if el == nil {
		t.logger.Warn("interaction on invalid element",
			slog.String(logging.FieldPage, page),
			"interaction", string(typ),
		)
		return nil
	}

	t.mu.Lock()
	scrollX, scrollY := t.scrollX, t.scrollY
	t.mu.Unlock()

	rect := describe.ElementRect(el, scrollX, scrollY)
	rec = &models.InteractionRecord{
		ElementSelector:   describe.ElementSelector(el),
		ElementPosition:   models.Point{X: rect.X, Y: rect.Y},
		ElementDimensions: models.Dimensions{Width: rect.Width, Height: rect.Height},
		InteractionType:   typ,
		DeviceType:        t.device,
		Page:              page,
		Timestamp:         t.now(),
	}
	metrics.InteractionsTracked.WithLabelValues(string(typ)).Inc()
	return rec
}

