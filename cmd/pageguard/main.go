// Package main is the CLI entry point for pageguard.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pageguard/pageguard/internal/domain"
	"github.com/pageguard/pageguard/internal/infra"
	"github.com/pageguard/pageguard/internal/metrics"
	"github.com/pageguard/pageguard/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pageguard",
	Short: "Content protection for live browser pages",
	Long: `pageguard attaches to a browser page over the DevTools protocol and
protects its content for the duration of the page view: it suppresses the
context menu, inspection shortcuts and printing, reacts when an inspection
panel opens, and keeps a provenance watermark overlaid on the content.

The browser must be started with --remote-debugging-port.`,
	Version: Version,
}

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Attach to a page and protect it until interrupted",
	Long: `Attaches to one debuggable page and activates the protection session:
suppression rules, the devtools heuristic, and the watermark overlay.
Everything is removed again on Ctrl-C or SIGTERM.`,
	RunE: runGuard,
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List debuggable pages",
	Long:  `Shows the pages exposed on the DevTools endpoint, with target IDs usable for guard --target.`,
	RunE:  runTargets,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent protection events",
	Long:  `Dumps the most recent journal entries: suppressed actions, devtools transitions, watermark refreshes.`,
	RunE:  runEvents,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	flagConfig     string
	flagEndpoint   string
	flagTarget     string
	flagLocale     string
	flagMetrics    string
	flagVerbose    bool
	flagLimit      int
	flagJSONOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "DevTools HTTP endpoint (default from config; \"auto\" scans for a running browser)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging")

	guardCmd.Flags().StringVar(&flagTarget, "target", "", "Target ID, or a URL/title substring; default is the first page")
	guardCmd.Flags().StringVar(&flagLocale, "locale", "", "Locale for warning toasts (default from config)")
	guardCmd.Flags().StringVar(&flagMetrics, "metrics-addr", "", "Expose Prometheus /metrics on this address")

	eventsCmd.Flags().IntVar(&flagLimit, "limit", 50, "Maximum number of events to show")
	versionCmd.Flags().BoolVar(&flagJSONOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(guardCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func buildLogger() (*zap.Logger, error) {
	if flagVerbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// resolveEndpoint picks the DevTools endpoint: flag beats config, and the
// special value "auto" scans running processes for a debuggable browser.
func resolveEndpoint(cfg *infra.Config) (string, error) {
	endpoint := cfg.Endpoint
	if flagEndpoint != "" {
		endpoint = flagEndpoint
	}
	if endpoint != "auto" {
		return endpoint, nil
	}
	return infra.NewBrowserLocator().FindEndpoint()
}

func runGuard(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	loader := infra.NewConfigLoader(flagConfig)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if flagLocale != "" {
		cfg.Locale = flagLocale
	}
	if flagMetrics != "" {
		cfg.MetricsAddr = flagMetrics
	}

	endpoint, err := resolveEndpoint(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	discovery := infra.NewDiscovery(endpoint)
	target, err := pickTarget(ctx, discovery, flagTarget)
	if err != nil {
		return err
	}

	page, err := infra.AttachPage(ctx, endpoint, target, logger)
	if err != nil {
		return err
	}
	defer page.Close()

	// The journal is best effort: a broken audit log never blocks guarding.
	var journal domain.Journal
	if path, err := cfg.JournalPath(); err != nil {
		logger.Warn("journal disabled", zap.Error(err))
	} else if j, err := infra.OpenJournal(path); err != nil {
		logger.Warn("journal disabled", zap.Error(err))
	} else {
		journal = j
		defer j.Close()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr, prometheus.DefaultGatherer)
		defer func() { _ = srv.Close() }()
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
	}

	combos, err := cfg.Combos()
	if err != nil {
		return err
	}

	guard := usecase.NewGuard(page, journal, m, nil, usecase.GuardOptions{
		Protection: cfg.ProtectionConfig(),
		Combos:     combos,
		Watermark: domain.WatermarkSpec{
			Enabled: cfg.Watermark.Enabled,
			Opacity: cfg.Watermark.Opacity,
		},
		Origin:       cfg.Watermark.Origin,
		Locale:       cfg.Locale,
		PollInterval: cfg.PollInterval(),
		ThresholdPx:  cfg.Detect.ThresholdPx,
		WarnDuration: cfg.WarnDuration(),
	}, logger)

	loader.OnChange(func(next *infra.Config) {
		logger.Info("config reloaded")
		guard.SetWatermark(ctx, next.Watermark.Enabled, next.Watermark.Opacity)
	})

	fmt.Printf("Guarding %s (%s)\nPress Ctrl-C to stop.\n", target.URL, target.ID)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return guard.Run(gctx) })
	group.Go(func() error {
		err := loader.Watch(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Println("Protection removed.")
	return nil
}

// pickTarget selects the page to guard: exact target ID first, then a
// URL/title substring, then the first page when no selector was given.
func pickTarget(ctx context.Context, finder domain.TargetFinder, selector string) (domain.TargetInfo, error) {
	pages, err := finder.ListPages(ctx)
	if err != nil {
		return domain.TargetInfo{}, err
	}
	if len(pages) == 0 {
		return domain.TargetInfo{}, errors.New("no debuggable pages found")
	}

	if selector == "" {
		return pages[0], nil
	}

	for _, p := range pages {
		if p.ID == selector {
			return p, nil
		}
	}
	needle := strings.ToLower(selector)
	for _, p := range pages {
		if strings.Contains(strings.ToLower(p.URL), needle) ||
			strings.Contains(strings.ToLower(p.Title), needle) {
			return p, nil
		}
	}
	return domain.TargetInfo{}, fmt.Errorf("no page matches %q", selector)
}

func runTargets(cmd *cobra.Command, args []string) error {
	cfg, err := infra.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	endpoint, err := resolveEndpoint(cfg)
	if err != nil {
		return err
	}

	discovery := infra.NewDiscovery(endpoint)

	if v, err := discovery.Version(cmd.Context()); err == nil {
		fmt.Printf("Browser: %s (protocol %s)\n\n", v.Browser, v.ProtocolVersion)
	}

	pages, err := discovery.ListPages(cmd.Context())
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		fmt.Println("No debuggable pages.")
		return nil
	}

	for _, p := range pages {
		fmt.Printf("%-34s  %-40s  %s\n", p.ID, truncate(p.Title, 40), p.URL)
	}
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := infra.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	path, err := cfg.JournalPath()
	if err != nil {
		return err
	}

	journal, err := infra.OpenJournal(path)
	if err != nil {
		return err
	}
	defer journal.Close()

	events, err := journal.Recent(cmd.Context(), flagLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}

	for _, ev := range events {
		fmt.Println(ev.String())
	}
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if flagJSONOutput {
		out, _ := json.Marshal(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		fmt.Println(string(out))
		return
	}
	fmt.Printf("pageguard %s (commit %s, built %s)\n", Version, Commit, BuildTime)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
