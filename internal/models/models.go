package models

import "time"

// Maximum lengths for wire-bound string fields. Every field that reaches
// the ingestion endpoint is truncated to these limits.
const (
	MaxEventNameLen = 20
	MaxCategoryLen  = 15
	MaxActionLen    = 15
	MaxLabelLen     = 50
	MaxPageLen      = 20
)

// DeviceType is a coarse device classification derived from the user agent.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// InteractionType identifies the raw interaction that produced a record.
type InteractionType string

const (
	InteractionClick  InteractionType = "click"
	InteractionHover  InteractionType = "hover"
	InteractionScroll InteractionType = "scroll"
	InteractionFocus  InteractionType = "focus"
	InteractionInput  InteractionType = "input"
)

// NormalizedEvent is a single user or application action ready for
// transmission. All string fields are length-bounded before they are
// appended to a tenant queue.
type NormalizedEvent struct {
	EventName string   `json:"eventName"`
	Category  string   `json:"category"`
	Action    string   `json:"action"`
	Label     string   `json:"label,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	SessionID string   `json:"sessionId"`
	TenantID  string   `json:"tenantId"`
	Page      string   `json:"page"`
	UserAgent string   `json:"userAgent"`
}

// BatchEnvelope is the wire shape delivered to the transport gate.
type BatchEnvelope struct {
	Events     []NormalizedEvent `json:"events"`
	Timestamp  int64             `json:"timestamp"`
	Compressed bool              `json:"compressed"`
	TenantID   string            `json:"tenantId"`
}

// Point is a page-absolute pixel position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Dimensions is an integer-rounded element size.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect combines page-absolute position and size.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// InteractionRecord is the output of the interaction tracker. It is consumed
// immediately by the caller and never persisted.
type InteractionRecord struct {
	ElementSelector   string          `json:"element_selector"`
	ElementPosition   Point           `json:"element_position"`
	ElementDimensions Dimensions      `json:"element_dimensions"`
	InteractionType   InteractionType `json:"interaction_type"`
	DeviceType        DeviceType      `json:"device_type"`
	Page              string          `json:"page"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Element is a transport-neutral snapshot of a page element, captured at the
// moment of interaction by whatever produced the raw signal. The describer
// operates on this snapshot rather than a live node.
type Element struct {
	Tag          string            `json:"tag"`
	ID           string            `json:"id,omitempty"`
	AnalyticsID  string            `json:"analytics_id,omitempty"`
	TestID       string            `json:"test_id,omitempty"`
	Classes      []string          `json:"classes,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	SiblingIndex int               `json:"sibling_index,omitempty"` // 1-based nth-child position, 0 when unknown
	ViewportX    float64           `json:"viewport_x"`
	ViewportY    float64           `json:"viewport_y"`
	Width        float64           `json:"width"`
	Height       float64           `json:"height"`
}

// ScrollState is the raw input to scroll tracking.
type ScrollState struct {
	ScrollX       float64 `json:"scroll_x"`
	ScrollY       float64 `json:"scroll_y"`
	ScrollPercent float64 `json:"scroll_percent"`
}

// Truncate bounds s to at most max bytes. Limits are chosen so that
// truncation never splits a multi-byte rune in practice; inputs here are
// event names and route identifiers, not free text.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
