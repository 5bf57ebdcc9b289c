// Package detect implements the devtools-open heuristic: a polled
// window-geometry probe folded through an explicit Closed/Open state
// machine with fire-once edge transitions.
package detect

import (
	"time"

	"github.com/pageguard/pageguard/internal/domain"
)

// DefaultThresholdPx is the outer-minus-inner window delta (either axis)
// above which an inspection panel is assumed docked. 160px clears normal
// browser chrome (toolbars, scrollbars) on desktop Chrome and Firefox
// while catching the smallest usable devtools dock.
const DefaultThresholdPx = 160

// Heuristic infers whether a debugging panel is open from window geometry.
// It is probabilistic: detached devtools windows are invisible to it and
// unusual chrome can misfire. Callers must treat signals as advisory.
//
// Not safe for concurrent use; the poller owns it for its lifetime.
type Heuristic struct {
	threshold int
	state     domain.DetectionState
}

// NewHeuristic creates a heuristic in the Closed state. A threshold <= 0
// selects DefaultThresholdPx.
func NewHeuristic(thresholdPx int) *Heuristic {
	if thresholdPx <= 0 {
		thresholdPx = DefaultThresholdPx
	}
	return &Heuristic{threshold: thresholdPx, state: domain.DevToolsClosed}
}

// State returns the current inferred state.
func (h *Heuristic) State() domain.DetectionState {
	return h.state
}

// Observe folds one probe sample into the state machine. It returns a
// signal and true only on a state transition, so a sustained open panel
// yields exactly one signal. Fullscreen windows can legitimately report
// zero delta; that simply reads as closed.
func (h *Heuristic) Observe(m domain.WindowMetrics) (domain.DetectionSignal, bool) {
	next := domain.DevToolsClosed
	if m.OuterWidth-m.InnerWidth > h.threshold || m.OuterHeight-m.InnerHeight > h.threshold {
		next = domain.DevToolsOpen
	}

	if next == h.state {
		return domain.DetectionSignal{}, false
	}
	h.state = next
	return domain.DetectionSignal{State: next, At: time.Now()}, true
}

// Reset forces the heuristic back to Closed without emitting a signal.
// Used at session teardown so a replacement session starts from a known
// state.
func (h *Heuristic) Reset() {
	h.state = domain.DevToolsClosed
}
