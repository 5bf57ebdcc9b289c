package infra

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// debugPortFlag is the switch browsers take to expose the DevTools
// endpoint.
const debugPortFlag = "--remote-debugging-port="

// browserNames are the process names scanned for a debuggable browser.
var browserNames = []string{"chrome", "chromium", "msedge", "brave", "vivaldi"}

// BrowserLocator finds a locally running browser that exposes a DevTools
// endpoint, so `pageguard guard` works without an explicit --endpoint.
type BrowserLocator struct{}

// NewBrowserLocator creates a locator.
func NewBrowserLocator() *BrowserLocator {
	return &BrowserLocator{}
}

// FindEndpoint scans running processes for a browser started with
// --remote-debugging-port and returns its HTTP endpoint.
func (l *BrowserLocator) FindEndpoint() (string, error) {
	procs, err := process.Processes()
	if err != nil {
		return "", fmt.Errorf("scan processes: %w", err)
	}

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if !isBrowserName(name) {
			continue
		}

		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		port, ok := extractDebugPort(cmdline)
		if !ok {
			continue
		}
		return fmt.Sprintf("http://127.0.0.1:%d", port), nil
	}

	return "", fmt.Errorf("no running browser with %s found", strings.TrimSuffix(debugPortFlag, "="))
}

func isBrowserName(name string) bool {
	lower := strings.ToLower(name)
	for _, b := range browserNames {
		if strings.Contains(lower, b) {
			return true
		}
	}
	return false
}

// extractDebugPort pulls the port value out of a browser command line.
// Port 0 means "pick one at random", which is unreachable for us without
// reading the browser's DevToolsActivePort file, so it is skipped.
func extractDebugPort(cmdline string) (int, bool) {
	idx := strings.Index(cmdline, debugPortFlag)
	if idx < 0 {
		return 0, false
	}

	rest := cmdline[idx+len(debugPortFlag):]
	if end := strings.IndexAny(rest, " \t"); end >= 0 {
		rest = rest[:end]
	}

	port, err := strconv.Atoi(rest)
	if err != nil || port <= 0 {
		return 0, false
	}
	return port, true
}
