// Package watermark renders the provenance overlay: a low-opacity,
// repeating, click-through text layer above page content. It is
// traceability tooling, not a security control; its guarantee is that
// under normal rendering the overlay is present and reflects the current
// spec.
package watermark

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pageguard/pageguard/internal/domain"
)

// OverlayID is the DOM id of the overlay container node.
const OverlayID = "pageguard-watermark"

// DefaultOpacity keeps the overlay legible on screenshots without
// obscuring content.
const DefaultOpacity = 0.08

// tileCount is enough repetitions to cover a 4K viewport at the tile
// padding used by Markup.
const tileCount = 120

// Renderer applies a WatermarkSpec to one page and keeps it applied.
//
// Render and Refresh are safe for concurrent use; the guard calls them
// from its re-assert loop while the CLI may trigger a config reload.
type Renderer struct {
	page   domain.Page
	logger *zap.Logger

	mu   sync.Mutex
	last domain.WatermarkSpec
}

// NewRenderer creates a renderer for a page.
func NewRenderer(page domain.Page, logger *zap.Logger) *Renderer {
	return &Renderer{page: page, logger: logger}
}

// Render applies the spec: disabled removes any prior overlay, enabled
// installs (or updates) exactly one overlay node. A rendering failure is
// returned for logging but leaves the page otherwise untouched.
func (r *Renderer) Render(ctx context.Context, spec domain.WatermarkSpec) error {
	spec = spec.Normalize()

	r.mu.Lock()
	r.last = spec
	r.mu.Unlock()

	if !spec.Enabled {
		return r.page.Evaluate(ctx, removeScript(), nil)
	}
	return r.page.Evaluate(ctx, applyScript(spec), nil)
}

// Refresh re-renders only when text differs from the current spec, e.g.
// after a language switch changed the page title. Stale text must not
// outlive the content it describes.
func (r *Renderer) Refresh(ctx context.Context, text string) (changed bool, err error) {
	r.mu.Lock()
	spec := r.last
	r.mu.Unlock()

	if !spec.Enabled || spec.Text == text {
		return false, nil
	}
	spec.Text = text
	r.logger.Debug("watermark text regenerated", zap.String("text", text))
	return true, r.Render(ctx, spec)
}

// EnsurePresent re-asserts the overlay. The apply script is idempotent:
// a present, untampered overlay is left alone; a removed or hidden one is
// rebuilt.
func (r *Renderer) EnsurePresent(ctx context.Context) error {
	r.mu.Lock()
	spec := r.last
	r.mu.Unlock()

	if !spec.Enabled {
		return nil
	}
	return r.page.Evaluate(ctx, applyScript(spec), nil)
}

// Remove deletes the overlay node if present.
func (r *Renderer) Remove(ctx context.Context) error {
	r.mu.Lock()
	r.last.Enabled = false
	r.mu.Unlock()
	return r.page.Evaluate(ctx, removeScript(), nil)
}

// Markup returns the overlay HTML for a spec: one fixed, full-viewport,
// pointer-event-transparent container tiling the text diagonally.
// Pure so the layer description is recomputed from the spec alone.
func Markup(spec domain.WatermarkSpec) string {
	spec = spec.Normalize()
	escaped := html.EscapeString(spec.Text)

	var b strings.Builder
	fmt.Fprintf(&b,
		`<div id="%s" data-text="%s" style="position:fixed;inset:0;z-index:2147483647;`+
			`pointer-events:none;overflow:hidden;opacity:%.3f;user-select:none" aria-hidden="true">`,
		OverlayID, escaped, spec.Opacity)
	b.WriteString(`<div style="position:absolute;top:-50%;left:-50%;width:200%;height:200%;` +
		`display:flex;flex-wrap:wrap;align-content:space-around;transform:rotate(-30deg)">`)
	for i := 0; i < tileCount; i++ {
		fmt.Fprintf(&b,
			`<span style="padding:48px 64px;white-space:nowrap;font:14px/1 system-ui,sans-serif;color:#000">%s</span>`,
			escaped)
	}
	b.WriteString(`</div></div>`)
	return b.String()
}

// applyScript installs or repairs the overlay. It compares the marker
// attribute so an unchanged overlay is not churned every re-assert tick,
// and rebuilds when the node is missing, retextured, or hidden.
func applyScript(spec domain.WatermarkSpec) string {
	markup, _ := json.Marshal(Markup(spec))
	text, _ := json.Marshal(spec.Text)

	return fmt.Sprintf(`(() => {
  const host = document.body || document.documentElement;
  if (!host) return;
  const existing = document.getElementById(%q);
  if (existing &&
      existing.getAttribute('data-text') === %s &&
      existing.style.display !== 'none' &&
      existing.style.visibility !== 'hidden') {
    return;
  }
  if (existing) existing.remove();
  host.insertAdjacentHTML('beforeend', %s);
})();`, OverlayID, text, markup)
}

func removeScript() string {
	return fmt.Sprintf(`(() => {
  const el = document.getElementById(%q);
  if (el) el.remove();
})();`, OverlayID)
}
