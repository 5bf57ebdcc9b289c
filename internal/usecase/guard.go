// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pageguard/pageguard/internal/domain"
	"github.com/pageguard/pageguard/internal/i18n"
	"github.com/pageguard/pageguard/internal/metrics"
	"github.com/pageguard/pageguard/internal/protection"
	"github.com/pageguard/pageguard/internal/watermark"
)

// DefaultReassertInterval is how often the overlay is re-asserted and the
// title checked for a language switch.
const DefaultReassertInterval = 2 * time.Second

// teardownTimeout bounds the detach work after the run context is gone.
const teardownTimeout = 5 * time.Second

// GuardOptions configure one guarded page view.
type GuardOptions struct {
	Protection       domain.ProtectionConfig
	Combos           []domain.KeyCombo // nil selects protection.DefaultBlockedCombos
	Watermark        domain.WatermarkSpec
	Origin           string // fixed suffix appended to the page title in the caption
	Locale           string
	PollInterval     time.Duration
	ReassertInterval time.Duration
	WarnDuration     time.Duration
	ThresholdPx      int
}

// Guard owns one page view end to end: it activates protection and the
// watermark on start and guarantees both are torn down on every exit
// path, including abnormal ones.
type Guard struct {
	page       domain.Page
	controller *protection.Controller
	renderer   *watermark.Renderer
	journal    domain.Journal
	metrics    *metrics.Metrics
	translator domain.Translator
	opts       GuardOptions
	logger     *zap.Logger

	mu        sync.Mutex
	caption   string
	sessionID string
}

// NewGuard wires a guard for one page. journal may be nil to disable the
// audit log; translator may be nil to fall back to the built-in catalog.
func NewGuard(
	page domain.Page,
	journal domain.Journal,
	m *metrics.Metrics,
	translator domain.Translator,
	opts GuardOptions,
	logger *zap.Logger,
) *Guard {
	if translator == nil {
		translator = i18n.NewCatalog()
	}
	if opts.ReassertInterval <= 0 {
		opts.ReassertInterval = DefaultReassertInterval
	}

	controller := protection.NewController(page, protection.Options{
		Combos:       opts.Combos,
		PollInterval: opts.PollInterval,
		ThresholdPx:  opts.ThresholdPx,
		WarnDuration: opts.WarnDuration,
	}, logger)

	return &Guard{
		page:       page,
		controller: controller,
		renderer:   watermark.NewRenderer(page, logger),
		journal:    journal,
		metrics:    m,
		translator: translator,
		opts:       opts,
		logger:     logger,
	}
}

// Run guards the page until ctx is canceled, then deactivates everything.
// Returns nil on clean cancellation.
func (g *Guard) Run(ctx context.Context) error {
	caption := g.captionFor(g.currentTitle(ctx))
	g.setCaption(caption)

	hooks := protection.Hooks{
		OnSuppressed: func(kind domain.SuppressionKind, detail string) {
			g.onSuppressed(ctx, kind, detail)
		},
		OnDevTools: func(sig domain.DetectionSignal) {
			g.onDevTools(ctx, sig)
		},
	}

	session, err := g.controller.Activate(ctx, g.opts.Protection, hooks)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.sessionID = session.ID
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.SessionsActive.Inc()
	}
	g.record(ctx, domain.EventLifecycle, "session activated")

	// Scoped acquisition: everything installed above is released here on
	// every exit path. A fresh context bounds the work because ctx is
	// already canceled by the time this runs.
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		if err := g.controller.Deactivate(tctx, session); err != nil {
			g.logger.Warn("session teardown incomplete", zap.Error(err))
		}
		if err := g.renderer.Remove(tctx); err != nil {
			g.logger.Debug("overlay removal failed", zap.Error(err))
		}
		if g.metrics != nil {
			g.metrics.SessionsActive.Dec()
		}
		g.record(tctx, domain.EventLifecycle, "session deactivated")
	}()

	spec := g.opts.Watermark
	spec.Text = caption
	if err := g.renderer.Render(ctx, spec); err != nil {
		// Watermark failure degrades to "no overlay"; protection stays up.
		g.logger.Warn("watermark render failed", zap.Error(err))
	}

	g.logger.Info("guarding page",
		zap.String("url", g.page.URL()),
		zap.String("session_id", session.ID))

	return g.reassertLoop(ctx)
}

// SetWatermark re-renders the overlay with a new enabled/opacity setting
// while keeping the current caption. Used by config hot-reload.
func (g *Guard) SetWatermark(ctx context.Context, enabled bool, opacity float64) {
	g.mu.Lock()
	spec := domain.WatermarkSpec{Text: g.caption, Enabled: enabled, Opacity: opacity}
	g.opts.Watermark.Enabled = enabled
	g.opts.Watermark.Opacity = opacity
	g.mu.Unlock()

	if err := g.renderer.Render(ctx, spec); err != nil {
		g.logger.Warn("watermark update failed", zap.Error(err))
	}
}

// reassertLoop keeps the overlay present and its caption current. The
// title is reread every tick: a language switch changes it, and the
// overlay must not keep describing content that is gone.
func (g *Guard) reassertLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.opts.ReassertInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			g.reassert(ctx)
		}
	}
}

func (g *Guard) reassert(ctx context.Context) {
	title, err := g.page.Title(ctx)
	if err != nil {
		if g.metrics != nil {
			g.metrics.ProbeFailures.Inc()
		}
		g.logger.Debug("title probe failed", zap.Error(err))
		return
	}

	caption := g.captionFor(title)
	g.setCaption(caption)

	changed, err := g.renderer.Refresh(ctx, caption)
	if err != nil {
		g.logger.Debug("watermark refresh failed", zap.Error(err))
		return
	}
	if changed {
		if g.metrics != nil {
			g.metrics.WatermarkRefreshes.Inc()
		}
		g.record(ctx, domain.EventWatermark, "caption regenerated: "+caption)
		return
	}

	if err := g.renderer.EnsurePresent(ctx); err != nil {
		g.logger.Debug("watermark re-assert failed", zap.Error(err))
	}
}

func (g *Guard) onSuppressed(ctx context.Context, kind domain.SuppressionKind, detail string) {
	if g.metrics != nil {
		g.metrics.ObserveSuppression(kind)
	}
	g.record(ctx, domain.EventSuppression, suppressionDetail(kind, detail))

	if !g.opts.Protection.ShowWarnings {
		return
	}

	var key string
	data := map[string]any{}
	switch kind {
	case domain.SuppressContextMenu:
		key = i18n.KeyContextMenu
	case domain.SuppressKeyCombo:
		key = i18n.KeyShortcut
		data["combo"] = detail
	case domain.SuppressPrint:
		key = i18n.KeyPrint
	default:
		return
	}

	message := g.translator.T(g.opts.Locale, key, data)
	if err := g.controller.ShowWarning(ctx, message); err != nil {
		g.logger.Debug("warning toast failed", zap.Error(err))
	}
}

func (g *Guard) onDevTools(ctx context.Context, sig domain.DetectionSignal) {
	if g.metrics != nil {
		g.metrics.ObserveDetection(sig)
	}
	g.record(ctx, domain.EventDetection, "devtools "+sig.State.String())

	switch sig.State {
	case domain.DevToolsOpen:
		if g.opts.Protection.ShowWarnings {
			message := g.translator.T(g.opts.Locale, i18n.KeyDevTools, nil)
			if err := g.controller.ShowWarning(ctx, message); err != nil {
				g.logger.Debug("warning toast failed", zap.Error(err))
			}
		}
		if err := g.controller.Obfuscate(ctx); err != nil {
			g.logger.Debug("obfuscation failed", zap.Error(err))
		}

	case domain.DevToolsClosed:
		if err := g.controller.Restore(ctx); err != nil {
			g.logger.Debug("restore failed", zap.Error(err))
		}
	}
}

func (g *Guard) record(ctx context.Context, kind domain.EventKind, detail string) {
	if g.journal == nil {
		return
	}

	g.mu.Lock()
	sessionID := g.sessionID
	g.mu.Unlock()

	ev := domain.ProtectionEvent{
		SessionID: sessionID,
		PageURL:   g.page.URL(),
		Kind:      kind,
		Detail:    detail,
		At:        time.Now().UTC(),
	}
	if err := g.journal.Record(ctx, ev); err != nil {
		g.logger.Debug("journal write failed", zap.Error(err))
	}
}

func (g *Guard) currentTitle(ctx context.Context) string {
	title, err := g.page.Title(ctx)
	if err != nil {
		g.logger.Debug("initial title probe failed", zap.Error(err))
		return ""
	}
	return title
}

func (g *Guard) captionFor(title string) string {
	if title == "" {
		return g.opts.Origin
	}
	if g.opts.Origin == "" {
		return title
	}
	return title + " · " + g.opts.Origin
}

func (g *Guard) setCaption(caption string) {
	g.mu.Lock()
	g.caption = caption
	g.mu.Unlock()
}

func suppressionDetail(kind domain.SuppressionKind, detail string) string {
	if detail == "" {
		return string(kind)
	}
	return string(kind) + " " + detail
}
