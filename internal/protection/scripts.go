package protection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pageguard/pageguard/internal/domain"
)

// ReportBinding is the in-page binding name injected listeners call to
// report each suppressed action back to the host.
const ReportBinding = "__pageguardReport"

// report is the payload injected listeners send over ReportBinding.
type report struct {
	Kind   domain.SuppressionKind `json:"kind"`
	Detail string                 `json:"detail"`
}

// jsCombo is the wire form of a KeyCombo embedded into the keyboard
// listener source.
type jsCombo struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Meta  bool   `json:"meta"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
}

// Every injected script registers an uninstaller under this global so
// teardown can remove its listeners from the live document, not only stop
// re-injection into future documents.
const uninstallRegistry = "__pageguardUninstall"

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// contextMenuScript suppresses the contextmenu event document-wide in the
// capturing phase. Idempotent per document via the uninstall registry key.
func contextMenuScript() string {
	return fmt.Sprintf(`(() => {
  const reg = window.%[1]s = window.%[1]s || {};
  if (reg.contextmenu) return;
  const handler = (e) => {
    e.preventDefault();
    if (window.%[2]s) window.%[2]s(JSON.stringify({kind: 'contextmenu', detail: ''}));
  };
  document.addEventListener('contextmenu', handler, true);
  reg.contextmenu = () => document.removeEventListener('contextmenu', handler, true);
})();`, uninstallRegistry, ReportBinding)
}

// keyboardScript suppresses exactly the given combinations on keydown,
// capturing phase. Anything not in the set falls through untouched, so
// normal typing and navigation are never intercepted.
func keyboardScript(combos []domain.KeyCombo) string {
	wire := make([]jsCombo, 0, len(combos))
	labels := make([]string, 0, len(combos))
	for _, c := range combos {
		wire = append(wire, jsCombo{Key: c.Key, Ctrl: c.Ctrl, Meta: c.Meta, Shift: c.Shift, Alt: c.Alt})
		labels = append(labels, c.String())
	}
	wireJSON, _ := json.Marshal(wire)
	labelsJSON, _ := json.Marshal(labels)

	return fmt.Sprintf(`(() => {
  const reg = window.%[1]s = window.%[1]s || {};
  if (reg.keyboard) return;
  const combos = %[3]s;
  const labels = %[4]s;
  const handler = (e) => {
    for (let i = 0; i < combos.length; i++) {
      const c = combos[i];
      if (e.key && e.key.toLowerCase() === c.key.toLowerCase() &&
          e.ctrlKey === c.ctrl && e.metaKey === c.meta &&
          e.shiftKey === c.shift && e.altKey === c.alt) {
        e.preventDefault();
        e.stopPropagation();
        if (window.%[2]s) window.%[2]s(JSON.stringify({kind: 'keycombo', detail: labels[i]}));
        return;
      }
    }
  };
  document.addEventListener('keydown', handler, true);
  reg.keyboard = () => document.removeEventListener('keydown', handler, true);
})();`, uninstallRegistry, ReportBinding, wireJSON, labelsJSON)
}

// printScript replaces window.print with a reporting no-op and reports
// beforeprint (the event itself is not cancelable; the menu path is only
// observable, the scripted and keyboard paths are actually suppressed).
func printScript() string {
	return fmt.Sprintf(`(() => {
  const reg = window.%[1]s = window.%[1]s || {};
  if (reg.print) return;
  const original = window.print;
  const notify = () => {
    if (window.%[2]s) window.%[2]s(JSON.stringify({kind: 'print', detail: ''}));
  };
  window.print = notify;
  window.addEventListener('beforeprint', notify, true);
  reg.print = () => {
    window.print = original;
    window.removeEventListener('beforeprint', notify, true);
  };
})();`, uninstallRegistry, ReportBinding)
}

// uninstallScript runs and clears every registered uninstaller. Safe to
// evaluate on a page that never had anything installed.
func uninstallScript() string {
	return fmt.Sprintf(`(() => {
  const reg = window.%[1]s;
  if (!reg) return;
  for (const k of Object.keys(reg)) {
    try { reg[k](); } catch (e) {}
    delete reg[k];
  }
})();`, uninstallRegistry)
}

// toastScript shows a transient, auto-dismissing, non-blocking notice.
func toastScript(message string, visible time.Duration) string {
	return fmt.Sprintf(`(() => {
  const el = document.createElement('div');
  el.textContent = %s;
  el.style.cssText = 'position:fixed;top:16px;right:16px;z-index:2147483646;' +
    'background:rgba(17,24,39,.92);color:#fff;padding:10px 16px;border-radius:8px;' +
    'font:13px/1.4 system-ui,sans-serif;pointer-events:none;transition:opacity .3s';
  (document.body || document.documentElement).appendChild(el);
  setTimeout(() => { el.style.opacity = '0'; }, %d);
  setTimeout(() => { el.remove(); }, %d);
})();`, jsString(message), visible.Milliseconds(), visible.Milliseconds()+400)
}

// obfuscateScript blurs page content while an inspection panel is open.
// restoreScript reverses it; together they must leave the page exactly as
// found once the panel closes.
func obfuscateScript() string {
	return `document.documentElement.style.filter = 'blur(8px)';`
}

func restoreScript() string {
	return `document.documentElement.style.filter = '';`
}
