package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"

	"github.com/pageguard/pageguard/internal/domain"
)

// Config is the full pageguard configuration, loadable from TOML with
// environment overrides.
type Config struct {
	Endpoint    string `toml:"endpoint"`     // DevTools HTTP endpoint
	Locale      string `toml:"locale"`       // BCP-47 tag for warning toasts
	MetricsAddr string `toml:"metrics_addr"` // empty disables the /metrics listener

	Protection ProtectionSection `toml:"protection"`
	Watermark  WatermarkSection  `toml:"watermark"`
	Detect     DetectSection     `toml:"detect"`
	Warnings   WarningsSection   `toml:"warnings"`
	Journal    JournalSection    `toml:"journal"`
}

// ProtectionSection mirrors domain.ProtectionConfig plus the keyboard set.
type ProtectionSection struct {
	DisableRightClick        bool     `toml:"disable_right_click"`
	DisableKeyboardShortcuts bool     `toml:"disable_keyboard_shortcuts"`
	DisableDevTools          bool     `toml:"disable_devtools"`
	DisablePrint             bool     `toml:"disable_print"`
	ShowWarnings             bool     `toml:"show_warnings"`
	BlockedCombos            []string `toml:"blocked_combos"` // empty selects the default set
}

// WatermarkSection configures the provenance overlay. Origin is the fixed
// suffix appended to the localized page title.
type WatermarkSection struct {
	Enabled bool    `toml:"enabled"`
	Opacity float64 `toml:"opacity"`
	Origin  string  `toml:"origin"`
}

// DetectSection tunes the devtools heuristic.
type DetectSection struct {
	ThresholdPx    int `toml:"threshold_px"`
	PollIntervalMS int `toml:"poll_interval_ms"`
}

// WarningsSection tunes toast rendering.
type WarningsSection struct {
	DurationMS int `toml:"duration_ms"`
}

// JournalSection configures the event audit log.
type JournalSection struct {
	Path string `toml:"path"` // empty selects the XDG state dir
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: "http://127.0.0.1:9222",
		Locale:   "en",
		Protection: ProtectionSection{
			DisableRightClick:        true,
			DisableKeyboardShortcuts: true,
			DisableDevTools:          true,
			DisablePrint:             true,
			ShowWarnings:             true,
		},
		Watermark: WatermarkSection{
			Enabled: true,
			Opacity: 0.08,
			Origin:  "pageguard",
		},
		Detect: DetectSection{
			ThresholdPx:    160,
			PollIntervalMS: 750,
		},
		Warnings: WarningsSection{
			DurationMS: 2500,
		},
	}
}

// ProtectionConfig converts the section to the domain value.
func (c *Config) ProtectionConfig() domain.ProtectionConfig {
	return domain.ProtectionConfig{
		DisableRightClick:        c.Protection.DisableRightClick,
		DisableKeyboardShortcuts: c.Protection.DisableKeyboardShortcuts,
		DisableDevTools:          c.Protection.DisableDevTools,
		DisablePrint:             c.Protection.DisablePrint,
		ShowWarnings:             c.Protection.ShowWarnings,
	}
}

// Combos parses the configured keyboard set. Empty means "use default".
func (c *Config) Combos() ([]domain.KeyCombo, error) {
	if len(c.Protection.BlockedCombos) == 0 {
		return nil, nil
	}
	combos := make([]domain.KeyCombo, 0, len(c.Protection.BlockedCombos))
	for _, s := range c.Protection.BlockedCombos {
		combo, err := ParseCombo(s)
		if err != nil {
			return nil, fmt.Errorf("blocked_combos: %w", err)
		}
		combos = append(combos, combo)
	}
	return combos, nil
}

// PollInterval returns the heuristic poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Detect.PollIntervalMS) * time.Millisecond
}

// WarnDuration returns the toast visibility duration.
func (c *Config) WarnDuration() time.Duration {
	return time.Duration(c.Warnings.DurationMS) * time.Millisecond
}

// JournalPath resolves the journal location, defaulting into the XDG
// state directory.
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	return xdg.StateFile(filepath.Join("pageguard", "events.db"))
}

// Validate rejects values the subsystem cannot degrade around.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.Watermark.Opacity < 0 || c.Watermark.Opacity > 1 {
		return fmt.Errorf("watermark opacity %v outside [0,1]", c.Watermark.Opacity)
	}
	if c.Detect.PollIntervalMS < 0 {
		return fmt.Errorf("poll_interval_ms must not be negative")
	}
	if _, err := c.Combos(); err != nil {
		return err
	}
	return nil
}

// ApplyEnvOverrides lets deployment environments override file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PAGEGUARD_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("PAGEGUARD_LOCALE"); v != "" {
		c.Locale = v
	}
	if v := os.Getenv("PAGEGUARD_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("PAGEGUARD_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
}

// ParseCombo parses "Ctrl+Shift+I" notation into a KeyCombo.
func ParseCombo(s string) (domain.KeyCombo, error) {
	parts := strings.Split(s, "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return domain.KeyCombo{}, fmt.Errorf("invalid key combo %q", s)
	}

	var combo domain.KeyCombo
	for _, mod := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(mod)) {
		case "ctrl", "control":
			combo.Ctrl = true
		case "meta", "cmd", "command":
			combo.Meta = true
		case "shift":
			combo.Shift = true
		case "alt", "option":
			combo.Alt = true
		default:
			return domain.KeyCombo{}, fmt.Errorf("unknown modifier %q in combo %q", mod, s)
		}
	}

	key := strings.TrimSpace(parts[len(parts)-1])
	// Single letters normalize to lowercase to match KeyboardEvent.key;
	// named keys (F12, Escape) keep their casing.
	if len(key) == 1 {
		key = strings.ToLower(key)
	}
	combo.Key = key
	return combo, nil
}

// LoadConfig reads, overrides, and validates a config file. An empty path
// returns the defaults (still env-overridable).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigLoader loads a config file and hot-reloads it on change.
type ConfigLoader struct {
	path string

	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)
	watcher  *fsnotify.Watcher
}

// NewConfigLoader creates a loader for path.
func NewConfigLoader(path string) *ConfigLoader {
	return &ConfigLoader{path: path}
}

// Load reads and caches the configuration.
func (l *ConfigLoader) Load() (*Config, error) {
	cfg, err := LoadConfig(l.path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Current returns the last successfully loaded configuration.
func (l *ConfigLoader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers a callback invoked after each successful reload.
func (l *ConfigLoader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch reloads the file on write events until ctx is canceled. A reload
// that fails validation keeps the previous config; the watcher stays up.
func (l *ConfigLoader) Watch(ctx context.Context) error {
	if l.path == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	l.watcher = watcher

	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := l.Load()
			if err != nil {
				continue
			}
			l.mu.RLock()
			callbacks := append([]func(*Config){}, l.onChange...)
			l.mu.RUnlock()
			for _, fn := range callbacks {
				fn(cfg)
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
