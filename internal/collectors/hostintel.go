package collectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"cloudauditor/internal/domain"
)

const (
	DefaultHostIntelBaseURL = "https://internetdb.shodan.io"

	hostIntelTimeout    = 10 * time.Second
	hostIntelMaxBody    = 1024 * 1024
	hostIntelRetryDelay = 500 * time.Millisecond
)

type hostIntelResponse struct {
	IP        string   `json:"ip"`
	Ports     []int    `json:"ports"`
	CPEs      []string `json:"cpes"`
	Hostnames []string `json:"hostnames"`
	Tags      []string `json:"tags"`
	Vulns     []string `json:"vulns"`
}

// HostIntelLookup queries a passive internet-wide scan database for an IP.
// No packets are sent to the target itself.
type HostIntelLookup struct {
	BaseURL    string
	HTTP       *http.Client
	UserAgent  string
	Limiter    *rate.Limiter
	RetryDelay time.Duration
}

// NewHostIntelLookup throttles outbound calls to rps requests per second.
// rps <= 0 disables throttling.
func NewHostIntelLookup(baseURL, userAgent string, rps float64) *HostIntelLookup {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HostIntelLookup{
		BaseURL:    strings.TrimRight(orDefault(baseURL, DefaultHostIntelBaseURL), "/"),
		HTTP:       newHTTPClient(hostIntelTimeout, 3),
		UserAgent:  orDefault(userAgent, DefaultUserAgent),
		Limiter:    rate.NewLimiter(limit, 1),
		RetryDelay: hostIntelRetryDelay,
	}
}

func (h *HostIntelLookup) Name() string { return "hostintel" }

// Collect fails on any non-2xx answer, including 404 for unknown hosts.
// Network errors, 429 and 5xx are retried once.
func (h *HostIntelLookup) Collect(ctx context.Context, ip string) (*domain.HostIntel, error) {
	endpoint := h.BaseURL + "/" + url.PathEscape(ip)

	var body []byte
	backoff := retry.WithMaxRetries(1, retry.NewConstant(h.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if h.Limiter != nil {
			if err := h.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		b, err := h.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("host intel for %s: %w", ip, err)
	}

	return parseHostIntel(body, ip)
}

func (h *HostIntelLookup) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", h.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := h.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := fmt.Errorf("%w %d", ErrHTTPStatus, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.RetryableError(statusErr)
		}
		return nil, statusErr
	}

	return io.ReadAll(io.LimitReader(resp.Body, hostIntelMaxBody))
}

func parseHostIntel(body []byte, ip string) (*domain.HostIntel, error) {
	var r hostIntelResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode host intel: %w", err)
	}

	hi := &domain.HostIntel{
		IP:        r.IP,
		Ports:     r.Ports,
		CPEs:      r.CPEs,
		Hostnames: r.Hostnames,
		Tags:      r.Tags,
		Vulns:     r.Vulns,
	}
	if hi.IP == "" {
		hi.IP = ip
	}
	if hi.Ports == nil {
		hi.Ports = []int{}
	}
	if hi.CPEs == nil {
		hi.CPEs = []string{}
	}
	if hi.Hostnames == nil {
		hi.Hostnames = []string{}
	}
	if hi.Tags == nil {
		hi.Tags = []string{}
	}
	if hi.Vulns == nil {
		hi.Vulns = []string{}
	}
	return hi, nil
}
