package collectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloudauditor/internal/domain"
)

const tlsTimeout = 15 * time.Second

// TLSProber checks that the origin answers over HTTPS and whether it sends
// HSTS. It does not inspect certificates.
type TLSProber struct {
	HTTP      *http.Client
	UserAgent string
}

func NewTLSProber(userAgent string) *TLSProber {
	return &TLSProber{
		HTTP:      newHTTPClient(tlsTimeout, headerMaxRedirects),
		UserAgent: orDefault(userAgent, DefaultUserAgent),
	}
}

func (p *TLSProber) Name() string { return "tls" }

// Collect reports connection failures as evidence rather than an error.
func (p *TLSProber) Collect(ctx context.Context, targetURL string) (*domain.TLSEvidence, error) {
	if !strings.HasPrefix(strings.ToLower(targetURL), "https://") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTTPS, targetURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return &domain.TLSEvidence{
			Reachable: false,
			Issues:    []string{"SSL/TLS connection failed: " + err.Error()},
		}, nil
	}
	defer resp.Body.Close()

	ev := &domain.TLSEvidence{
		Reachable:    resp.StatusCode < 400,
		SupportsHSTS: resp.Header.Get("Strict-Transport-Security") != "",
		Issues:       []string{},
	}
	if !ev.Reachable {
		ev.Issues = append(ev.Issues, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return ev, nil
}
