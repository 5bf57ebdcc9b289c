// Package infra implements infrastructure concerns: browser discovery,
// the CDP page transport, configuration, and the event journal.
package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pageguard/pageguard/internal/domain"
)

// jsonTarget is the wire shape of one entry from /json/list.
type jsonTarget struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// jsonVersion is the wire shape of /json/version.
type jsonVersion struct {
	Browser         string `json:"Browser"`
	ProtocolVersion string `json:"Protocol-Version"`
	UserAgent       string `json:"User-Agent"`
}

// Discovery implements domain.TargetFinder against a browser's DevTools
// HTTP endpoint (the /json API next to the websocket).
type Discovery struct {
	client   *resty.Client
	endpoint string
}

// NewDiscovery creates a finder for endpoint, e.g. "http://127.0.0.1:9222".
func NewDiscovery(endpoint string) *Discovery {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(5 * time.Second)

	return &Discovery{client: client, endpoint: endpoint}
}

// Endpoint returns the configured DevTools HTTP endpoint.
func (d *Discovery) Endpoint() string {
	return d.endpoint
}

// ListPages returns the page-type targets currently debuggable. Workers,
// extensions and the browser target itself are filtered out.
func (d *Discovery) ListPages(ctx context.Context) ([]domain.TargetInfo, error) {
	var targets []jsonTarget
	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&targets).
		Get("/json/list")
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list targets: endpoint returned %s", resp.Status())
	}

	var pages []domain.TargetInfo
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		pages = append(pages, domain.TargetInfo{
			ID:           t.ID,
			Type:         t.Type,
			Title:        t.Title,
			URL:          t.URL,
			WebSocketURL: t.WebSocketDebuggerURL,
		})
	}
	return pages, nil
}

// Version returns the browser identity from /json/version.
func (d *Discovery) Version(ctx context.Context) (domain.BrowserVersion, error) {
	var v jsonVersion
	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&v).
		Get("/json/version")
	if err != nil {
		return domain.BrowserVersion{}, fmt.Errorf("browser version: %w", err)
	}
	if resp.IsError() {
		return domain.BrowserVersion{}, fmt.Errorf("browser version: endpoint returned %s", resp.Status())
	}

	return domain.BrowserVersion{
		Browser:         v.Browser,
		ProtocolVersion: v.ProtocolVersion,
		UserAgent:       v.UserAgent,
	}, nil
}

// Ensure Discovery implements domain.TargetFinder.
var _ domain.TargetFinder = (*Discovery)(nil)
