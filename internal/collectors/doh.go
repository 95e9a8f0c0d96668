package collectors

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/miekg/dns"
)

const (
	DefaultDoHEndpoint = "https://dns.google/dns-query"

	dohContentType = "application/dns-message"
	dohMaxBody     = 64 * 1024
	dohTimeout     = 10 * time.Second
)

// DoHClient sends RFC 8484 wire-format queries to a DNS-over-HTTPS resolver.
type DoHClient struct {
	Endpoint string
	HTTP     *http.Client
}

// NewDoHClient returns a client for endpoint, or the public default when empty.
func NewDoHClient(endpoint string) *DoHClient {
	return &DoHClient{
		Endpoint: orDefault(endpoint, DefaultDoHEndpoint),
		HTTP:     newHTTPClient(dohTimeout, 3),
	}
}

// Query returns the answer section for name/qtype. NXDOMAIN yields an empty
// answer rather than an error.
func (c *DoHClient) Query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.Id = 0
	msg.RecursionDesired = true

	wire, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack %s query for %s: %w", dns.TypeToString[qtype], name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(wire))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", dohContentType)
	req.Header.Set("Accept", dohContentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh %s: %w %d", name, ErrHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, dohMaxBody))
	if err != nil {
		return nil, fmt.Errorf("doh read body: %w", err)
	}

	reply := new(dns.Msg)
	if err := reply.Unpack(body); err != nil {
		return nil, fmt.Errorf("doh unpack reply for %s: %w", name, err)
	}

	switch reply.Rcode {
	case dns.RcodeSuccess:
		return reply.Answer, nil
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("doh %s: rcode %s", name, dns.RcodeToString[reply.Rcode])
	}
}
