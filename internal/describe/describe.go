// Package describe derives stable, human-readable identifiers for page
// elements and browsing context. All functions are pure and never panic.
package describe

import (
	"fmt"
	"math"
	"strings"

	"github.com/tracklight-systems/tracklight/internal/models"
)

// maxMeaningfulClasses caps how many CSS classes contribute to a selector.
const maxMeaningfulClasses = 3

// ElementSelector produces a deterministic selector for the element.
// Strategies are tried in priority order: analytics attribute, id, test
// attribute, tag plus meaningful classes, tag:nth-child, bare tag. The
// result is always non-empty.
func ElementSelector(el *models.Element) string {
	if el == nil {
		return "unknown"
	}

	if el.AnalyticsID != "" {
		return fmt.Sprintf("[data-analytics-id=%q]", el.AnalyticsID)
	}

	if el.ID != "" {
		return "#" + el.ID
	}

	if el.TestID != "" {
		return fmt.Sprintf("[data-testid=%q]", el.TestID)
	}

	tag := strings.ToLower(el.Tag)
	if tag == "" {
		tag = "unknown"
	}

	if classes := meaningfulClasses(el.Classes); len(classes) > 0 {
		return tag + "." + strings.Join(classes, ".")
	}

	if el.SiblingIndex > 0 {
		return fmt.Sprintf("%s:nth-child(%d)", tag, el.SiblingIndex)
	}

	return tag
}

// meaningfulClasses filters out generated or hashed class names and returns
// at most maxMeaningfulClasses entries in their original order.
func meaningfulClasses(classes []string) []string {
	var out []string
	for _, c := range classes {
		if c == "" || isGeneratedClass(c) {
			continue
		}
		out = append(out, c)
		if len(out) == maxMeaningfulClasses {
			break
		}
	}
	return out
}

func isGeneratedClass(c string) bool {
	return strings.HasPrefix(c, "css-") || strings.HasPrefix(c, "_")
}

// DetectDeviceType classifies a user-agent string into a coarse device
// class. Tablet markers are checked before mobile markers because tablet
// agents commonly carry both. Ambiguous or empty agents default to desktop.
func DetectDeviceType(userAgent string) models.DeviceType {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return models.DeviceDesktop
	}

	for _, marker := range []string{"ipad", "tablet", "kindle", "silk"} {
		if strings.Contains(ua, marker) {
			return models.DeviceTablet
		}
	}

	for _, marker := range []string{"mobi", "iphone", "android", "ipod", "windows phone"} {
		if strings.Contains(ua, marker) {
			return models.DeviceMobile
		}
	}

	return models.DeviceDesktop
}

// BrowserClass maps a raw user-agent string to one of a fixed small set of
// coarse browser classes. The raw string never reaches the wire.
func BrowserClass(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "safari"):
		return "safari"
	case strings.Contains(ua, "bot") || strings.Contains(ua, "crawler") || strings.Contains(ua, "spider"):
		return "bot"
	default:
		return "other"
	}
}

// ElementRect returns the page-absolute position of the element (viewport
// coordinates plus current scroll offsets) and its integer-rounded size.
func ElementRect(el *models.Element, scrollX, scrollY float64) models.Rect {
	if el == nil {
		return models.Rect{}
	}
	return models.Rect{
		X:      int(math.Round(el.ViewportX + scrollX)),
		Y:      int(math.Round(el.ViewportY + scrollY)),
		Width:  int(math.Round(el.Width)),
		Height: int(math.Round(el.Height)),
	}
}
