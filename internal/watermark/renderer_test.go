package watermark

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageguard/pageguard/internal/domain"
)

// recordingPage captures evaluated expressions.
type recordingPage struct {
	mu    sync.Mutex
	evals []string
}

func (p *recordingPage) Evaluate(_ context.Context, expr string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals = append(p.evals, expr)
	return nil
}

func (p *recordingPage) InstallScript(context.Context, string) (domain.ScriptID, error) {
	return "", nil
}
func (p *recordingPage) RemoveScript(context.Context, domain.ScriptID) error { return nil }
func (p *recordingPage) Subscribe(context.Context, string, func(string)) (func(), error) {
	return func() {}, nil
}
func (p *recordingPage) Title(context.Context) (string, error) { return "", nil }
func (p *recordingPage) URL() string                           { return "https://example.test/" }
func (p *recordingPage) Close() error                          { return nil }

func (p *recordingPage) count(substr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.evals {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

var _ domain.Page = (*recordingPage)(nil)

func spec(text string) domain.WatermarkSpec {
	return domain.WatermarkSpec{Text: text, Enabled: true, Opacity: 0.08}
}

func parseMarkup(t *testing.T, s domain.WatermarkSpec) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(Markup(s)))
	require.NoError(t, err)
	return doc
}

func TestMarkup_SingleClickThroughOverlay(t *testing.T) {
	doc := parseMarkup(t, spec("Acme GmbH · pageguard"))

	overlay := doc.Find("#" + OverlayID)
	require.Equal(t, 1, overlay.Length(), "exactly one overlay node")

	style, _ := overlay.Attr("style")
	assert.Contains(t, style, "pointer-events:none", "overlay must not intercept interaction")
	assert.Contains(t, style, "position:fixed")
	assert.Contains(t, style, "opacity:0.080")

	text, _ := overlay.Attr("data-text")
	assert.Equal(t, "Acme GmbH · pageguard", text)
}

func TestMarkup_TilesText(t *testing.T) {
	doc := parseMarkup(t, spec("Acme"))

	tiles := doc.Find("#" + OverlayID + " span")
	assert.Equal(t, tileCount, tiles.Length())
	tiles.Each(func(_ int, sel *goquery.Selection) {
		assert.Equal(t, "Acme", sel.Text())
	})
}

func TestMarkup_EscapesText(t *testing.T) {
	s := spec(`<img src=x onerror=alert(1)>`)
	markup := Markup(s)

	assert.NotContains(t, markup, "<img", "text must be HTML-escaped")

	doc := parseMarkup(t, s)
	text, _ := doc.Find("#" + OverlayID).Attr("data-text")
	assert.Equal(t, `<img src=x onerror=alert(1)>`, text, "escaping round-trips")
}

func TestMarkup_ClampsOpacity(t *testing.T) {
	doc := parseMarkup(t, domain.WatermarkSpec{Text: "x", Enabled: true, Opacity: 4.2})
	style, _ := doc.Find("#" + OverlayID).Attr("style")
	assert.Contains(t, style, "opacity:1.000")

	doc = parseMarkup(t, domain.WatermarkSpec{Text: "x", Enabled: true, Opacity: -1})
	style, _ = doc.Find("#" + OverlayID).Attr("style")
	assert.Contains(t, style, "opacity:0.000")
}

func TestRender_DisabledRemovesOverlay(t *testing.T) {
	page := &recordingPage{}
	r := NewRenderer(page, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Render(ctx, spec("Acme")))
	assert.Equal(t, 1, page.count("insertAdjacentHTML"))

	require.NoError(t, r.Render(ctx, domain.WatermarkSpec{Enabled: false}))
	assert.Equal(t, 1, page.count("if (el) el.remove()"), "disabled spec removes any prior overlay")
}

func TestRefresh_RegeneratesOnlyOnTextChange(t *testing.T) {
	page := &recordingPage{}
	r := NewRenderer(page, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Render(ctx, spec("Acme GmbH · pageguard")))

	changed, err := r.Refresh(ctx, "Acme GmbH · pageguard")
	require.NoError(t, err)
	assert.False(t, changed, "same text is not re-rendered")
	assert.Equal(t, 1, page.count("insertAdjacentHTML"))

	// A language switch changed the title.
	changed, err = r.Refresh(ctx, "Acme S.A. · pageguard")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, page.count("insertAdjacentHTML"))
	assert.Equal(t, 1, page.count("Acme S.A."), "overlay carries the new caption")
}

func TestRefresh_DisabledSpecIsInert(t *testing.T) {
	page := &recordingPage{}
	r := NewRenderer(page, zap.NewNop())

	changed, err := r.Refresh(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, page.count("insertAdjacentHTML"))
}

func TestEnsurePresent_ReassertsWhileEnabled(t *testing.T) {
	page := &recordingPage{}
	r := NewRenderer(page, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Render(ctx, spec("Acme")))
	require.NoError(t, r.EnsurePresent(ctx))
	assert.Equal(t, 2, page.count("insertAdjacentHTML"), "apply script is idempotent, re-asserting is safe")

	require.NoError(t, r.Remove(ctx))
	require.NoError(t, r.EnsurePresent(ctx))
	assert.Equal(t, 2, page.count("insertAdjacentHTML"), "nothing re-asserted after removal")
}

func TestApplyScript_RepairsHiddenOverlay(t *testing.T) {
	src := applyScript(spec("Acme"))

	assert.Contains(t, src, "display !== 'none'")
	assert.Contains(t, src, "visibility !== 'hidden'")
	assert.Contains(t, src, "data-text")
}
