// Package protection implements the ProtectionController: per-page-view
// sessions of suppression rules installed into a guarded browser page.
package protection

import (
	"github.com/pageguard/pageguard/internal/domain"
)

// DefaultBlockedCombos is the fixed keyboard set associated with
// view-source, save-page, print, and devtools invocation. Meta variants
// cover macOS. Values were settled empirically, not derived; they are
// overridable via configuration.
var DefaultBlockedCombos = []domain.KeyCombo{
	{Key: "F12"},
	{Key: "i", Ctrl: true, Shift: true},
	{Key: "j", Ctrl: true, Shift: true},
	{Key: "c", Ctrl: true, Shift: true},
	{Key: "i", Meta: true, Shift: true},
	{Key: "j", Meta: true, Shift: true},
	{Key: "c", Meta: true, Shift: true},
	{Key: "u", Ctrl: true},
	{Key: "u", Meta: true},
	{Key: "s", Ctrl: true},
	{Key: "s", Meta: true},
	{Key: "p", Ctrl: true},
	{Key: "p", Meta: true},
}

// rule is one suppression strategy: a name for logs, the config flag that
// enables it, and the page-side source implementing it.
type rule struct {
	name    string
	enabled func(domain.ProtectionConfig) bool
	source  func() string
}

// rulesFor returns the rules a config enables, in install order.
// The devtools heuristic is not a rule: it is a host-side poller owned by
// the session, not an injected listener.
func rulesFor(cfg domain.ProtectionConfig, combos []domain.KeyCombo) []rule {
	if len(combos) == 0 {
		combos = DefaultBlockedCombos
	}

	all := []rule{
		{
			name:    "rightclick",
			enabled: func(c domain.ProtectionConfig) bool { return c.DisableRightClick },
			source:  contextMenuScript,
		},
		{
			name:    "keyboard",
			enabled: func(c domain.ProtectionConfig) bool { return c.DisableKeyboardShortcuts },
			source:  func() string { return keyboardScript(combos) },
		},
		{
			name:    "print",
			enabled: func(c domain.ProtectionConfig) bool { return c.DisablePrint },
			source:  printScript,
		},
	}

	var selected []rule
	for _, r := range all {
		if r.enabled(cfg) {
			selected = append(selected, r)
		}
	}
	return selected
}
