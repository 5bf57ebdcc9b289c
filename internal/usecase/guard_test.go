package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageguard/pageguard/internal/domain"
	"github.com/pageguard/pageguard/internal/metrics"
	"github.com/pageguard/pageguard/internal/protection"
	"github.com/pageguard/pageguard/test/fixtures"
)

// memoryJournal implements domain.Journal for tests.
type memoryJournal struct {
	mu     sync.Mutex
	events []domain.ProtectionEvent
}

func (j *memoryJournal) Record(_ context.Context, ev domain.ProtectionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

func (j *memoryJournal) Recent(_ context.Context, limit int) ([]domain.ProtectionEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.ProtectionEvent{}, j.events...), nil
}

func (j *memoryJournal) Close() error { return nil }

func (j *memoryJournal) byKind(kind domain.EventKind) []domain.ProtectionEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.ProtectionEvent
	for _, ev := range j.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

var _ domain.Journal = (*memoryJournal)(nil)

func fastOptions(cfg domain.ProtectionConfig) GuardOptions {
	return GuardOptions{
		Protection:       cfg,
		Watermark:        domain.WatermarkSpec{Enabled: true, Opacity: 0.08},
		Origin:           "pageguard",
		Locale:           "en",
		PollInterval:     5 * time.Millisecond,
		ReassertInterval: 5 * time.Millisecond,
	}
}

func startGuard(t *testing.T, g *Guard) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	return func() {
		cancel()
		require.NoError(t, <-done, "clean cancellation returns nil")
	}
}

func TestGuard_RendersWatermarkWithCaption(t *testing.T) {
	page := fixtures.NewFakePage("https://example.test/", "Acme GmbH")
	g := NewGuard(page, nil, nil, nil, fastOptions(domain.DefaultProtectionConfig()), zap.NewNop())

	stop := startGuard(t, g)
	defer stop()

	require.Eventually(t, func() bool {
		return page.EvalsContaining("Acme GmbH · pageguard") > 0
	}, time.Second, 5*time.Millisecond, "overlay caption is title + origin")
}

func TestGuard_TeardownRemovesEverything(t *testing.T) {
	page := fixtures.NewFakePage("https://example.test/", "Acme GmbH")
	journal := &memoryJournal{}
	g := NewGuard(page, journal, nil, nil, fastOptions(domain.DefaultProtectionConfig()), zap.NewNop())

	stop := startGuard(t, g)

	require.Eventually(t, func() bool {
		return page.ScriptCount() == 3
	}, time.Second, 5*time.Millisecond)

	stop()

	assert.Equal(t, 0, page.ScriptCount(), "zero residual scripts")
	assert.Equal(t, 0, page.BindingCount(), "zero residual bindings")

	lifecycle := journal.byKind(domain.EventLifecycle)
	require.Len(t, lifecycle, 2)
	assert.Equal(t, "session activated", lifecycle[0].Detail)
	assert.Equal(t, "session deactivated", lifecycle[1].Detail)
}

func TestGuard_TitleChangeRegeneratesWatermark(t *testing.T) {
	page := fixtures.NewFakePage("https://example.test/", "Acme GmbH")
	journal := &memoryJournal{}
	g := NewGuard(page, journal, nil, nil, fastOptions(domain.DefaultProtectionConfig()), zap.NewNop())

	stop := startGuard(t, g)
	defer stop()

	require.Eventually(t, func() bool {
		return page.EvalsContaining("Acme GmbH · pageguard") > 0
	}, time.Second, 5*time.Millisecond)

	// Language switch: the displayed title changes, the overlay must follow.
	page.SetTitle("Acme S.A.")

	require.Eventually(t, func() bool {
		return page.EvalsContaining("Acme S.A. · pageguard") > 0
	}, time.Second, 5*time.Millisecond, "stale caption must not persist")

	require.Eventually(t, func() bool {
		return len(journal.byKind(domain.EventWatermark)) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestGuard_SuppressionsJournaledAndCounted(t *testing.T) {
	page := fixtures.NewFakePage("https://example.test/", "Acme GmbH")
	journal := &memoryJournal{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	g := NewGuard(page, journal, m, nil, fastOptions(domain.DefaultProtectionConfig()), zap.NewNop())

	stop := startGuard(t, g)

	require.Eventually(t, func() bool {
		return page.BindingCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.True(t, page.Report(protection.ReportBinding, `{"kind":"keycombo","detail":"Ctrl+S"}`))

	require.Eventually(t, func() bool {
		return len(journal.byKind(domain.EventSuppression)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "keycombo Ctrl+S", journal.byKind(domain.EventSuppression)[0].Detail)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.SuppressionsTotal.WithLabelValues("keycombo")))

	// ShowWarnings=true renders a toast carrying the combo.
	require.Eventually(t, func() bool {
		return page.EvalsContaining("The shortcut Ctrl+S is disabled") > 0
	}, time.Second, 5*time.Millisecond)

	stop()
}

func TestGuard_SilentWhenWarningsOff(t *testing.T) {
	cfg := domain.DefaultProtectionConfig()
	cfg.ShowWarnings = false

	page := fixtures.NewFakePage("https://example.test/", "Acme GmbH")
	journal := &memoryJournal{}
	g := NewGuard(page, journal, nil, nil, fastOptions(cfg), zap.NewNop())

	stop := startGuard(t, g)

	require.Eventually(t, func() bool {
		return page.BindingCount() == 1
	}, time.Second, 5*time.Millisecond)

	page.Report(protection.ReportBinding, `{"kind":"contextmenu","detail":""}`)
	page.Report(protection.ReportBinding, `{"kind":"keycombo","detail":"F12"}`)
	page.Report(protection.ReportBinding, `{"kind":"print","detail":""}`)

	require.Eventually(t, func() bool {
		return len(journal.byKind(domain.EventSuppression)) == 3
	}, time.Second, 5*time.Millisecond, "suppressions are still journaled")

	stop()

	assert.Equal(t, 0, page.EvalsContaining("position:fixed;top:16px"),
		"no toast for any suppression kind when warnings are off")
}

func TestGuard_DevToolsReactionAndReversal(t *testing.T) {
	page := fixtures.NewFakePage("https://example.test/", "Acme GmbH")
	journal := &memoryJournal{}
	g := NewGuard(page, journal, nil, nil, fastOptions(domain.DefaultProtectionConfig()), zap.NewNop())

	stop := startGuard(t, g)
	defer stop()

	require.Eventually(t, func() bool {
		return page.ScriptCount() == 3
	}, time.Second, 5*time.Millisecond)

	page.SetWindowDelta(400)
	require.Eventually(t, func() bool {
		return page.EvalsContaining("blur(8px)") == 1
	}, time.Second, 5*time.Millisecond, "open reaction fires exactly once")

	page.SetWindowDelta(0)
	require.Eventually(t, func() bool {
		return len(journal.byKind(domain.EventDetection)) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, page.EvalsContaining("blur(8px)"), "sustained open never refires")

	events := journal.byKind(domain.EventDetection)
	assert.Equal(t, "devtools open", events[0].Detail)
	assert.Equal(t, "devtools closed", events[1].Detail)
}

func TestGuard_SetWatermarkDisablesOverlay(t *testing.T) {
	page := fixtures.NewFakePage("https://example.test/", "Acme GmbH")
	g := NewGuard(page, nil, nil, nil, fastOptions(domain.DefaultProtectionConfig()), zap.NewNop())

	stop := startGuard(t, g)
	defer stop()

	require.Eventually(t, func() bool {
		return page.EvalsContaining("insertAdjacentHTML") > 0
	}, time.Second, 5*time.Millisecond)

	g.SetWatermark(context.Background(), false, 0)

	require.Eventually(t, func() bool {
		return page.EvalsContaining("if (el) el.remove()") > 0
	}, time.Second, 5*time.Millisecond)
}

func TestGuard_CaptionFallsBackToOrigin(t *testing.T) {
	page := fixtures.NewFakePage("https://example.test/", "")
	g := NewGuard(page, nil, nil, nil, fastOptions(domain.DefaultProtectionConfig()), zap.NewNop())

	assert.Equal(t, "pageguard", g.captionFor(""))
	assert.Equal(t, "Acme · pageguard", g.captionFor("Acme"))

	g.opts.Origin = ""
	assert.Equal(t, "Acme", g.captionFor("Acme"))
}
