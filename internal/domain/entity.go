// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProtectionConfig selects which suppression rules a session installs.
// It is supplied once at activation and never mutated afterward.
type ProtectionConfig struct {
	DisableRightClick        bool
	DisableKeyboardShortcuts bool
	DisableDevTools          bool
	DisablePrint             bool
	ShowWarnings             bool
}

// DefaultProtectionConfig returns the config used when none is supplied:
// every suppression on, warnings on.
func DefaultProtectionConfig() ProtectionConfig {
	return ProtectionConfig{
		DisableRightClick:        true,
		DisableKeyboardShortcuts: true,
		DisableDevTools:          true,
		DisablePrint:             true,
		ShowWarnings:             true,
	}
}

// SuppressionKind identifies which rule suppressed a default browser action.
type SuppressionKind string

const (
	SuppressContextMenu SuppressionKind = "contextmenu"
	SuppressKeyCombo    SuppressionKind = "keycombo"
	SuppressPrint       SuppressionKind = "print"
)

// KeyCombo is a modifier+key combination matched by the keyboard rule.
// Key is the KeyboardEvent.key value, compared case-insensitively.
type KeyCombo struct {
	Key   string
	Ctrl  bool
	Meta  bool
	Shift bool
	Alt   bool
}

// Matches reports whether a key event matches this combo exactly.
// Modifier state must match bit-for-bit so that, e.g., Ctrl+S does not
// swallow plain "s" or Ctrl+Shift+S.
func (c KeyCombo) Matches(key string, ctrl, meta, shift, alt bool) bool {
	return strings.EqualFold(key, c.Key) &&
		ctrl == c.Ctrl && meta == c.Meta && shift == c.Shift && alt == c.Alt
}

// String renders the combo in Ctrl+Shift+I notation, used for logs,
// journal entries and warning toasts.
func (c KeyCombo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if c.Meta {
		parts = append(parts, "Meta")
	}
	if c.Alt {
		parts = append(parts, "Alt")
	}
	if c.Shift {
		parts = append(parts, "Shift")
	}
	parts = append(parts, strings.ToUpper(c.Key))
	return strings.Join(parts, "+")
}

// WatermarkSpec describes the provenance overlay rendered above page content.
type WatermarkSpec struct {
	Text    string
	Enabled bool
	Opacity float64 // [0,1], clamped by Normalize
}

// Normalize clamps Opacity into [0,1] and returns the adjusted spec.
func (s WatermarkSpec) Normalize() WatermarkSpec {
	if s.Opacity < 0 {
		s.Opacity = 0
	}
	if s.Opacity > 1 {
		s.Opacity = 1
	}
	return s
}

// DetectionState is the inferred devtools panel state.
type DetectionState int

const (
	DevToolsClosed DetectionState = iota
	DevToolsOpen
)

// String returns "closed" or "open".
func (s DetectionState) String() string {
	if s == DevToolsOpen {
		return "open"
	}
	return "closed"
}

// DetectionSignal is a transient edge event emitted by the devtools
// heuristic on a state transition. It is not persisted by the heuristic
// itself; the journal may record it as a ProtectionEvent.
type DetectionSignal struct {
	State DetectionState
	At    time.Time
}

// WindowMetrics is one probe sample of the guarded page's window geometry
// plus its current title. The devtools heuristic consumes the geometry;
// the watermark refresher consumes the title.
type WindowMetrics struct {
	InnerWidth  int    `json:"innerWidth"`
	InnerHeight int    `json:"innerHeight"`
	OuterWidth  int    `json:"outerWidth"`
	OuterHeight int    `json:"outerHeight"`
	Title       string `json:"title"`
}

// EventKind classifies journal entries.
type EventKind string

const (
	EventSuppression EventKind = "suppression"
	EventDetection   EventKind = "detection"
	EventWatermark   EventKind = "watermark"
	EventLifecycle   EventKind = "lifecycle"
)

// ProtectionEvent is one auditable occurrence within a guard session:
// a suppressed action, a detection transition, a watermark refresh, or a
// session lifecycle step.
type ProtectionEvent struct {
	ID        int64
	SessionID string
	PageURL   string
	Kind      EventKind
	Detail    string
	At        time.Time
}

// String is the journal dump line format used by the events command.
func (e ProtectionEvent) String() string {
	return fmt.Sprintf("%s  %-11s  %s", e.At.Format(time.RFC3339), e.Kind, e.Detail)
}

// TargetInfo describes one debuggable page exposed by the browser's
// DevTools endpoint.
type TargetInfo struct {
	ID           string
	Type         string
	Title        string
	URL          string
	WebSocketURL string
}

// BrowserVersion is the identity reported by the DevTools /json/version
// endpoint.
type BrowserVersion struct {
	Browser         string
	ProtocolVersion string
	UserAgent       string
}
