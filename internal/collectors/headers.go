package collectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"cloudauditor/internal/domain"
)

const (
	headerTimeout      = 15 * time.Second
	headerMaxRedirects = 10
)

// InspectedHeaders are reported when present.
var InspectedHeaders = []string{
	"strict-transport-security",
	"content-security-policy",
	"x-frame-options",
	"x-content-type-options",
	"referrer-policy",
	"permissions-policy",
	"x-xss-protection",
	"server",
	"x-powered-by",
	"access-control-allow-origin",
	"x-robots-tag",
	"feature-policy",
	"cross-origin-opener-policy",
	"cross-origin-resource-policy",
	"cross-origin-embedder-policy",
}

// RequiredHeaders are reported as missing when absent.
var RequiredHeaders = InspectedHeaders[:6:6]

type HeaderProber struct {
	HTTP      *http.Client
	UserAgent string
}

func NewHeaderProber(userAgent string) *HeaderProber {
	return &HeaderProber{
		HTTP:      newHTTPClient(headerTimeout, headerMaxRedirects),
		UserAgent: orDefault(userAgent, DefaultUserAgent),
	}
}

func (p *HeaderProber) Name() string { return "headers" }

func (p *HeaderProber) Collect(ctx context.Context, targetURL string) (*domain.HeaderEvidence, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", targetURL, err)
	}
	// Only headers matter; drain a little so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()

	return classifyHeaders(resp.Header), nil
}

func classifyHeaders(h http.Header) *domain.HeaderEvidence {
	ev := &domain.HeaderEvidence{
		Present: make(map[string]string),
		Missing: []string{},
	}
	for _, name := range InspectedHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			ev.Present[name] = v
		}
	}
	for _, name := range RequiredHeaders {
		if _, ok := ev.Present[name]; !ok {
			ev.Missing = append(ev.Missing, name)
		}
	}
	sort.Strings(ev.Missing)
	return ev
}
