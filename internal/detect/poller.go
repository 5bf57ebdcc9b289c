package detect

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pageguard/pageguard/internal/domain"
)

// DefaultPollInterval is how often the window geometry is probed.
// Sub-second keeps the reaction snappy without measurable page impact.
const DefaultPollInterval = 750 * time.Millisecond

// ProbeFunc samples the guarded page's window metrics. A probe failure
// (page navigating, transport hiccup) returns an error; the poller skips
// that sample and self-corrects on the next tick.
type ProbeFunc func(ctx context.Context) (domain.WindowMetrics, error)

// Poller drives a Heuristic on a fixed interval and invokes onSignal for
// each state transition. Every sample is also forwarded to onSample (if
// set), which the guard uses to watch the page title.
type Poller struct {
	interval  time.Duration
	heuristic *Heuristic
	probe     ProbeFunc
	onSignal  func(domain.DetectionSignal)
	onSample  func(domain.WindowMetrics)
	logger    *zap.Logger
}

// NewPoller creates a poller. interval <= 0 selects DefaultPollInterval.
// onSample may be nil.
func NewPoller(
	interval time.Duration,
	heuristic *Heuristic,
	probe ProbeFunc,
	onSignal func(domain.DetectionSignal),
	onSample func(domain.WindowMetrics),
	logger *zap.Logger,
) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		interval:  interval,
		heuristic: heuristic,
		probe:     probe,
		onSignal:  onSignal,
		onSample:  onSample,
		logger:    logger,
	}
}

// Run polls until ctx is canceled. The ticker is stopped before return,
// so no callback fires after Run exits. Always returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	m, err := p.probe(ctx)
	if err != nil {
		// Transient by taxonomy: skip the sample, next tick retries.
		p.logger.Debug("window probe failed", zap.Error(err))
		return
	}

	if p.onSample != nil {
		p.onSample(m)
	}

	if sig, edge := p.heuristic.Observe(m); edge {
		p.logger.Info("devtools state transition",
			zap.String("state", sig.State.String()))
		p.onSignal(sig)
	}
}
