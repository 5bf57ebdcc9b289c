package domain

import "context"

// ScriptID identifies a script installed on a page so it can be removed
// precisely at teardown.
type ScriptID string

// Page is the minimal surface of a guarded browser page.
// Implementation: Chrome DevTools Protocol via chromedp.
type Page interface {
	// Evaluate runs an expression in the page and unmarshals the result
	// into out. out may be nil when the result is not needed.
	Evaluate(ctx context.Context, expr string, out any) error

	// InstallScript evaluates source now and registers it to run again on
	// every future document in this page (survives navigation).
	InstallScript(ctx context.Context, source string) (ScriptID, error)

	// RemoveScript unregisters a previously installed script. It does not
	// undo effects the script already had on the live document.
	RemoveScript(ctx context.Context, id ScriptID) error

	// Subscribe registers a host-side callback for a named in-page binding.
	// Injected listeners report suppressed events through it. The returned
	// func unsubscribes; calling it more than once is a no-op.
	Subscribe(ctx context.Context, binding string, fn func(payload string)) (func(), error)

	// Title returns the page's current document title.
	Title(ctx context.Context) (string, error)

	// URL returns the page URL as of attach time.
	URL() string

	// Close detaches from the page and releases the transport.
	Close() error
}

// TargetFinder lists debuggable pages on a browser's DevTools endpoint.
// Implementation: resty against the /json HTTP API.
type TargetFinder interface {
	// ListPages returns page-type targets only.
	ListPages(ctx context.Context) ([]TargetInfo, error)

	// Version returns the browser identity.
	Version(ctx context.Context) (BrowserVersion, error)
}

// Journal records protection events for later audit.
// Implementation: SQLite file, one row per event.
type Journal interface {
	// Record appends one event.
	Record(ctx context.Context, ev ProtectionEvent) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]ProtectionEvent, error)

	// Close releases the database connection.
	Close() error
}

// Translator resolves localized user-facing messages. Warning toasts follow
// the guarded page's locale, not the host machine's.
type Translator interface {
	// T renders the message identified by key for the given locale.
	// data is an optional map used for template placeholders (may be nil).
	T(locale, key string, data map[string]any) string
}
