// Package fixtures provides test doubles shared by integration tests.
package fixtures

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pageguard/pageguard/internal/domain"
)

// FakePage is an in-memory domain.Page. It records every installed
// script, evaluated expression and subscribed binding so tests can assert
// residuals, and lets tests script window metrics, titles and report
// payloads.
type FakePage struct {
	mu sync.Mutex

	nextID    int
	scripts   map[domain.ScriptID]string
	removed   []domain.ScriptID
	evals     []string
	bindings  map[string]func(string)
	title     string
	metrics   domain.WindowMetrics
	pageURL   string
	closed    bool

	// Fault injection; nil means success.
	InstallErr   func(source string) error
	SubscribeErr error
	EvalErr      func(expr string) error
}

// NewFakePage creates a page with the given URL and title.
func NewFakePage(pageURL, title string) *FakePage {
	fp := &FakePage{
		scripts:  make(map[domain.ScriptID]string),
		bindings: make(map[string]func(string)),
		title:    title,
		pageURL:  pageURL,
	}
	fp.metrics = domain.WindowMetrics{
		InnerWidth: 1280, InnerHeight: 800,
		OuterWidth: 1280, OuterHeight: 885,
		Title: title,
	}
	return fp
}

// Evaluate records the expression. Expressions probing window metrics are
// answered from the scripted metrics value.
func (f *FakePage) Evaluate(_ context.Context, expr string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.EvalErr != nil {
		if err := f.EvalErr(expr); err != nil {
			return err
		}
	}
	f.evals = append(f.evals, expr)

	if m, ok := out.(*domain.WindowMetrics); ok {
		*m = f.metrics
	}
	return nil
}

// InstallScript registers the source under a fresh ID.
func (f *FakePage) InstallScript(_ context.Context, source string) (domain.ScriptID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.InstallErr != nil {
		if err := f.InstallErr(source); err != nil {
			return "", err
		}
	}
	f.nextID++
	id := domain.ScriptID(fmt.Sprintf("script-%d", f.nextID))
	f.scripts[id] = source
	return id, nil
}

// RemoveScript unregisters a script.
func (f *FakePage) RemoveScript(_ context.Context, id domain.ScriptID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.scripts[id]; !ok {
		return fmt.Errorf("unknown script %s", id)
	}
	delete(f.scripts, id)
	f.removed = append(f.removed, id)
	return nil
}

// Subscribe stores the binding callback.
func (f *FakePage) Subscribe(_ context.Context, binding string, fn func(string)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.bindings[binding] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.bindings, binding)
	}, nil
}

// Title returns the scripted title.
func (f *FakePage) Title(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

// URL returns the page URL.
func (f *FakePage) URL() string {
	return f.pageURL
}

// Close marks the page closed.
func (f *FakePage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// SetTitle simulates a language switch changing the document title.
func (f *FakePage) SetTitle(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
	f.metrics.Title = title
}

// SetWindowDelta simulates docking/undocking an inspection panel by
// setting the outer-minus-inner dimension delta.
func (f *FakePage) SetWindowDelta(deltaPx int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics.OuterWidth = f.metrics.InnerWidth + deltaPx
	f.metrics.OuterHeight = f.metrics.InnerHeight
}

// Report invokes the named binding as injected page code would.
// Returns false if nothing is subscribed.
func (f *FakePage) Report(binding, payload string) bool {
	f.mu.Lock()
	fn, ok := f.bindings[binding]
	f.mu.Unlock()

	if !ok {
		return false
	}
	fn(payload)
	return true
}

// ScriptCount returns the number of currently installed scripts.
func (f *FakePage) ScriptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scripts)
}

// BindingCount returns the number of live binding subscriptions.
func (f *FakePage) BindingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bindings)
}

// HasScriptContaining reports whether any installed script contains s.
func (f *FakePage) HasScriptContaining(s string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, src := range f.scripts {
		if strings.Contains(src, s) {
			return true
		}
	}
	return false
}

// EvalsContaining returns how many evaluated expressions contain s.
func (f *FakePage) EvalsContaining(s string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.evals {
		if strings.Contains(e, s) {
			n++
		}
	}
	return n
}

// Ensure FakePage implements domain.Page.
var _ domain.Page = (*FakePage)(nil)
