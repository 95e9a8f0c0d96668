// Package remote delegates analysis to an external HTTP service, typically a
// language model gateway, and validates what comes back.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"cloudauditor/internal/analysis"
	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

var _ ports.Analyzer = (*Analyzer)(nil)

const (
	DefaultTimeout = 60 * time.Second
	maxResponse    = 4 * 1024 * 1024
)

type request struct {
	ScanID   string         `json:"scanId"`
	Evidence *domain.Bundle `json:"evidence"`
	Prompt   string         `json:"prompt"`
}

type Analyzer struct {
	URL   string
	Token string
	HTTP  *http.Client
	Clock clockwork.Clock
}

type Option func(*Analyzer)

func WithToken(token string) Option { return func(a *Analyzer) { a.Token = token } }
func WithHTTPClient(c *http.Client) Option { return func(a *Analyzer) { a.HTTP = c } }
func WithClock(c clockwork.Clock) Option { return func(a *Analyzer) { a.Clock = c } }
func WithTimeout(d time.Duration) Option { return func(a *Analyzer) { a.HTTP.Timeout = d } }

func New(url string, opts ...Option) *Analyzer {
	a := &Analyzer{
		URL:   url,
		HTTP:  &http.Client{Timeout: DefaultTimeout},
		Clock: clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze sends the bundle and its text rendering to the service. Transport
// errors, non-2xx replies and replies that do not match the draft schema all
// come back as *analysis.Error.
func (a *Analyzer) Analyze(ctx context.Context, scanID string, b *domain.Bundle) (domain.Analysis, error) {
	if b == nil {
		return domain.Analysis{}, &analysis.Error{Reason: "no evidence bundle"}
	}

	payload, err := json.Marshal(request{ScanID: scanID, Evidence: b, Prompt: analysis.Prompt(b)})
	if err != nil {
		return domain.Analysis{}, &analysis.Error{Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.Analysis{}, &analysis.Error{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return domain.Analysis{}, &analysis.Error{Reason: "call analyzer", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return domain.Analysis{}, &analysis.Error{Reason: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Analysis{}, &analysis.Error{Reason: fmt.Sprintf("analyzer returned status %d", resp.StatusCode)}
	}

	var d analysis.Draft
	if err := json.Unmarshal(body, &d); err != nil {
		return domain.Analysis{}, &analysis.Error{Reason: "decode response", Err: err}
	}
	return analysis.Finalize(scanID, d, a.Clock.Now().UTC())
}
