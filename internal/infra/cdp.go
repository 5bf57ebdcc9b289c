package infra

import (
	"context"
	"fmt"
	"sync/atomic"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pageguard/pageguard/internal/domain"
)

// CDPPage implements domain.Page over the Chrome DevTools Protocol,
// attached to an existing page target. It never creates or closes tabs;
// Close only detaches.
type CDPPage struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	url         string
	logger      *zap.Logger
}

// AttachPage attaches to the page target identified by info on the given
// DevTools endpoint.
func AttachPage(ctx context.Context, endpoint string, info domain.TargetInfo, logger *zap.Logger) (*CDPPage, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), endpoint)

	tctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithTargetID(target.ID(info.ID)))

	// An empty Run attaches without navigating anywhere.
	if err := chromedp.Run(tctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("attach to target %s: %w", info.ID, err)
	}

	logger.Info("attached to page",
		zap.String("target_id", info.ID),
		zap.String("url", info.URL))

	return &CDPPage{
		allocCancel: allocCancel,
		ctx:         tctx,
		cancel:      cancel,
		url:         info.URL,
		logger:      logger,
	}, nil
}

// Evaluate runs an expression in the page. A JavaScript exception is
// returned as an error; out may be nil to discard the result.
func (p *CDPPage) Evaluate(ctx context.Context, expr string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Evaluate(expr, out))
}

// InstallScript evaluates source in the live document and registers it to
// run on every future document of this page.
func (p *CDPPage) InstallScript(ctx context.Context, source string) (domain.ScriptID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var id cdppage.ScriptIdentifier
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		var err error
		id, err = cdppage.AddScriptToEvaluateOnNewDocument(source).Do(cctx)
		if err != nil {
			return err
		}

		_, exception, err := runtime.Evaluate(source).Do(cctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return exception
		}
		return nil
	}))
	if err != nil {
		return "", fmt.Errorf("install script: %w", err)
	}
	return domain.ScriptID(id), nil
}

// RemoveScript unregisters a script from future documents.
func (p *CDPPage) RemoveScript(ctx context.Context, id domain.ScriptID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		return cdppage.RemoveScriptToEvaluateOnNewDocument(cdppage.ScriptIdentifier(id)).Do(cctx)
	}))
	if err != nil {
		return fmt.Errorf("remove script %s: %w", id, err)
	}
	return nil
}

// Subscribe exposes a binding in the page and forwards each call to fn.
// Bindings persist across navigations for the lifetime of the session.
func (p *CDPPage) Subscribe(ctx context.Context, binding string, fn func(payload string)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		return runtime.AddBinding(binding).Do(cctx)
	}))
	if err != nil {
		return nil, fmt.Errorf("add binding %s: %w", binding, err)
	}

	var closed atomic.Bool
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok || e.Name != binding || closed.Load() {
			return
		}
		fn(e.Payload)
	})

	unsubscribe := func() {
		if !closed.CompareAndSwap(false, true) {
			return
		}
		err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(cctx context.Context) error {
			return runtime.RemoveBinding(binding).Do(cctx)
		}))
		if err != nil {
			p.logger.Debug("remove binding failed", zap.String("binding", binding), zap.Error(err))
		}
	}
	return unsubscribe, nil
}

// Title returns the current document title.
func (p *CDPPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var title string
	if err := chromedp.Run(p.ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// URL returns the page URL as of attach time.
func (p *CDPPage) URL() string {
	return p.url
}

// Close detaches from the target and releases the transport.
func (p *CDPPage) Close() error {
	p.cancel()
	p.allocCancel()
	return nil
}

// Ensure CDPPage implements domain.Page.
var _ domain.Page = (*CDPPage)(nil)
