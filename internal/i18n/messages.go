// Package i18n resolves localized warning-toast messages. The guarded
// page is multi-language, so toasts follow the page's locale rather than
// the host machine's.
package i18n

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/pageguard/pageguard/internal/domain"
)

// Message keys used by the guard.
const (
	KeyContextMenu = "warn.context_menu"
	KeyShortcut    = "warn.shortcut"
	KeyPrint       = "warn.print"
	KeyDevTools    = "warn.devtools"
)

// supported must stay in matcher order: the first tag is the fallback.
var supported = []language.Tag{
	language.English,
	language.German,
	language.Spanish,
	language.French,
	language.Japanese,
}

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyContextMenu: "Right-click is disabled on this page",
		KeyShortcut:    "The shortcut {combo} is disabled on this page",
		KeyPrint:       "Printing is disabled on this page",
		KeyDevTools:    "Developer tools are not permitted on this page",
	},
	language.German: {
		KeyContextMenu: "Rechtsklick ist auf dieser Seite deaktiviert",
		KeyShortcut:    "Das Tastenkürzel {combo} ist auf dieser Seite deaktiviert",
		KeyPrint:       "Drucken ist auf dieser Seite deaktiviert",
		KeyDevTools:    "Entwicklerwerkzeuge sind auf dieser Seite nicht erlaubt",
	},
	language.Spanish: {
		KeyContextMenu: "El clic derecho está desactivado en esta página",
		KeyShortcut:    "El atajo {combo} está desactivado en esta página",
		KeyPrint:       "La impresión está desactivada en esta página",
		KeyDevTools:    "Las herramientas de desarrollo no están permitidas en esta página",
	},
	language.French: {
		KeyContextMenu: "Le clic droit est désactivé sur cette page",
		KeyShortcut:    "Le raccourci {combo} est désactivé sur cette page",
		KeyPrint:       "L'impression est désactivée sur cette page",
		KeyDevTools:    "Les outils de développement ne sont pas autorisés sur cette page",
	},
	language.Japanese: {
		KeyContextMenu: "このページでは右クリックは無効です",
		KeyShortcut:    "このページではショートカット {combo} は無効です",
		KeyPrint:       "このページでは印刷は無効です",
		KeyDevTools:    "このページでは開発者ツールは使用できません",
	},
}

// Catalog implements domain.Translator over the built-in message table.
type Catalog struct {
	matcher language.Matcher
}

// NewCatalog creates the message catalog.
func NewCatalog() *Catalog {
	return &Catalog{matcher: language.NewMatcher(supported)}
}

// T renders the message for key in the closest supported locale.
// Unknown locales fall back to English; unknown keys return the key
// itself so a missing translation is visible instead of silent.
func (c *Catalog) T(locale, key string, data map[string]any) string {
	// The matched tag can carry regional variants; index into supported
	// gives the canonical table key.
	_, index := language.MatchStrings(c.matcher, locale)
	table := messages[supported[index]]

	msg, ok := table[key]
	if !ok {
		return key
	}
	for k, v := range data {
		msg = strings.ReplaceAll(msg, "{"+k+"}", toString(v))
	}
	return msg
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case interface{ String() string }:
		return t.String()
	default:
		return ""
	}
}

var _ domain.Translator = (*Catalog)(nil)
