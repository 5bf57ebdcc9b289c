package protection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageguard/pageguard/internal/detect"
	"github.com/pageguard/pageguard/internal/domain"
)

// DefaultWarnDuration is how long a warning toast stays visible.
const DefaultWarnDuration = 2500 * time.Millisecond

// windowMetricsExpr samples the geometry the devtools heuristic needs,
// plus the title for observers that piggyback on the poll.
const windowMetricsExpr = `({
  innerWidth: window.innerWidth,
  innerHeight: window.innerHeight,
  outerWidth: window.outerWidth,
  outerHeight: window.outerHeight,
  title: document.title
})`

// Hooks are the reactions a session invokes. All hooks are optional and
// are called from the session's own goroutines; after Deactivate returns,
// no hook fires again.
type Hooks struct {
	// OnSuppressed fires once per suppressed action reported by an
	// injected listener.
	OnSuppressed func(kind domain.SuppressionKind, detail string)

	// OnDevTools fires exactly once per detection state transition.
	OnDevTools func(sig domain.DetectionSignal)
}

// Options tune a controller. Zero values select defaults.
type Options struct {
	Combos       []domain.KeyCombo // keyboard set; nil means DefaultBlockedCombos
	PollInterval time.Duration     // devtools probe interval
	ThresholdPx  int               // devtools dimension-delta threshold
	WarnDuration time.Duration     // toast visibility
}

// Controller installs and removes suppression rules on one page.
// At most one session is live at a time; Activate while a session is live
// replaces it atomically.
type Controller struct {
	page   domain.Page
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	current *Session
}

// NewController creates a controller for a page.
func NewController(page domain.Page, opts Options, logger *zap.Logger) *Controller {
	if opts.WarnDuration <= 0 {
		opts.WarnDuration = DefaultWarnDuration
	}
	return &Controller{page: page, opts: opts, logger: logger}
}

// Session holds every handle a single activation acquired, so teardown
// can release all of them on any exit path.
type Session struct {
	ID     string
	Config domain.ProtectionConfig

	page     domain.Page
	active   atomic.Bool
	removers []func(context.Context) error
	cancel   context.CancelFunc // stops the devtools poller; nil if not started
	done     chan struct{}      // closed when the poller goroutine exits
	teardown sync.Once
	logger   *zap.Logger
}

// Active reports whether the session has not been deactivated.
func (s *Session) Active() bool {
	return s.active.Load()
}

// Activate installs one listener or poller per enabled config flag and
// returns the session handle used for deactivation.
//
// A rule that fails to install degrades to inert: the failure is logged
// and the remaining rules still install. Activate only returns an error
// when nothing could be attached at all (the page itself is gone).
func (c *Controller) Activate(ctx context.Context, cfg domain.ProtectionConfig, hooks Hooks) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace-atomically: a live prior session is torn down first so no
	// handler is ever installed twice.
	if c.current != nil && c.current.Active() {
		c.logger.Warn("activate called with live session, replacing",
			zap.String("session_id", c.current.ID))
		if err := c.current.deactivate(ctx); err != nil {
			c.logger.Warn("prior session teardown incomplete", zap.Error(err))
		}
	}

	s := &Session{
		ID:     uuid.NewString(),
		Config: cfg,
		page:   c.page,
		logger: c.logger,
	}
	s.active.Store(true)

	installed := 0

	// Report channel from injected listeners to host-side hooks. Installed
	// first so no early suppression goes unreported.
	unsubscribe, err := c.page.Subscribe(ctx, ReportBinding, func(payload string) {
		// Session-validity marker: a stray callback after teardown is a no-op.
		if !s.Active() {
			return
		}
		s.dispatch(payload, hooks)
	})
	if err != nil {
		c.logger.Warn("suppression reporting unavailable", zap.Error(err))
	} else {
		installed++
		s.removers = append(s.removers, func(context.Context) error {
			unsubscribe()
			return nil
		})
	}

	for _, r := range rulesFor(cfg, c.opts.Combos) {
		id, err := c.page.InstallScript(ctx, r.source())
		if err != nil {
			// Degrade this single rule; the others still install.
			c.logger.Warn("rule install failed, degrading to no-op",
				zap.String("rule", r.name), zap.Error(err))
			continue
		}
		installed++
		scriptID := id
		s.removers = append(s.removers, func(rctx context.Context) error {
			return c.page.RemoveScript(rctx, scriptID)
		})
		c.logger.Debug("rule installed", zap.String("rule", r.name))
	}

	if anyRuleInstalled := len(s.removers) > 0; anyRuleInstalled {
		// Listeners already attached to the live document are detached via
		// the page-side uninstall registry at teardown.
		s.removers = append(s.removers, func(rctx context.Context) error {
			return c.page.Evaluate(rctx, uninstallScript(), nil)
		})
	}

	if cfg.DisableDevTools {
		s.startPoller(c, hooks)
		installed++
	}

	if installed == 0 && configWantsAnything(cfg) {
		s.active.Store(false)
		return nil, errors.New("no protection rule could be installed")
	}

	c.current = s
	c.logger.Info("protection session activated",
		zap.String("session_id", s.ID),
		zap.Bool("rightclick", cfg.DisableRightClick),
		zap.Bool("keyboard", cfg.DisableKeyboardShortcuts),
		zap.Bool("devtools", cfg.DisableDevTools),
		zap.Bool("print", cfg.DisablePrint))
	return s, nil
}

// Deactivate removes every listener and poller the session registered.
// Safe to call more than once; the second call is a no-op. After it
// returns, no session callback fires again.
func (c *Controller) Deactivate(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	err := s.deactivate(ctx)

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
	return err
}

// ShowWarning renders a transient, auto-dismissing toast on the page.
func (c *Controller) ShowWarning(ctx context.Context, message string) error {
	return c.page.Evaluate(ctx, toastScript(message, c.opts.WarnDuration), nil)
}

// Obfuscate blurs page content; Restore reverses it. Used as the devtools
// open/close reaction pair.
func (c *Controller) Obfuscate(ctx context.Context) error {
	return c.page.Evaluate(ctx, obfuscateScript(), nil)
}

// Restore removes the obfuscation applied by Obfuscate.
func (c *Controller) Restore(ctx context.Context) error {
	return c.page.Evaluate(ctx, restoreScript(), nil)
}

func (s *Session) startPoller(c *Controller, hooks Hooks) {
	// The poller must outlive the activation ctx: it runs until Deactivate.
	pctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	heuristic := detect.NewHeuristic(c.opts.ThresholdPx)
	probe := func(ctx context.Context) (domain.WindowMetrics, error) {
		var m domain.WindowMetrics
		err := s.page.Evaluate(ctx, windowMetricsExpr, &m)
		return m, err
	}
	onSignal := func(sig domain.DetectionSignal) {
		if !s.Active() || hooks.OnDevTools == nil {
			return
		}
		hooks.OnDevTools(sig)
	}

	poller := detect.NewPoller(c.opts.PollInterval, heuristic, probe, onSignal, nil, c.logger)
	go func() {
		defer close(s.done)
		_ = poller.Run(pctx)
	}()
}

func (s *Session) dispatch(payload string, hooks Hooks) {
	var r report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		s.logger.Debug("malformed suppression report", zap.Error(err))
		return
	}
	if hooks.OnSuppressed != nil {
		hooks.OnSuppressed(r.Kind, r.Detail)
	}
}

func (s *Session) deactivate(ctx context.Context) error {
	var errs []error
	s.teardown.Do(func() {
		s.active.Store(false)

		// Invalidate the timer itself, then wait: no late tick may act on a
		// torn-down session.
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}

		for _, remove := range s.removers {
			if err := remove(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.removers = nil

		// Whatever the heuristic claimed last, content is left restored.
		if err := s.page.Evaluate(ctx, restoreScript(), nil); err != nil {
			errs = append(errs, err)
		}

		s.logger.Info("protection session deactivated", zap.String("session_id", s.ID))
	})
	return errors.Join(errs...)
}

func configWantsAnything(cfg domain.ProtectionConfig) bool {
	return cfg.DisableRightClick || cfg.DisableKeyboardShortcuts ||
		cfg.DisableDevTools || cfg.DisablePrint
}
