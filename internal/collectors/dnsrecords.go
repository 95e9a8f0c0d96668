package collectors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"cloudauditor/internal/domain"
)

const (
	dnsQueryTimeout = 10 * time.Second
	dkimTimeout     = 5 * time.Second
)

// DKIMSelectors are probed in order until one publishes a key.
var DKIMSelectors = []string{"default", "google", "selector1", "selector2", "k1"}

// DNSTarget names the host to inspect and its organizational domain.
type DNSTarget struct {
	Hostname    string
	Registrable string
}

// DNSRecordChecker looks for SPF, DMARC, DKIM and MX records.
type DNSRecordChecker struct {
	DoH *DoHClient
}

func NewDNSRecordChecker(doh *DoHClient) *DNSRecordChecker {
	return &DNSRecordChecker{DoH: doh}
}

func (c *DNSRecordChecker) Name() string { return "dnsrecords" }

// Collect skips sub-queries that fail and only errors when all of them did.
func (c *DNSRecordChecker) Collect(ctx context.Context, in DNSTarget) (*domain.DNSEvidence, error) {
	ev := &domain.DNSEvidence{Records: []domain.DNSRecord{}}
	var attempts, failures int
	var lastErr error

	query := func(timeout time.Duration, name string, qtype uint16) []dns.RR {
		attempts++
		qctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		rrs, err := c.DoH.Query(qctx, name, qtype)
		if err != nil {
			failures++
			lastErr = err
			return nil
		}
		return rrs
	}

	for _, v := range txtValues(query(dnsQueryTimeout, in.Hostname, dns.TypeTXT)) {
		ev.Records = append(ev.Records, domain.DNSRecord{Type: "TXT", Value: v})
		if strings.HasPrefix(v, "v=spf1") {
			ev.HasSPF = true
		}
	}

	dmarcHosts := []string{in.Hostname}
	if in.Registrable != "" && !strings.EqualFold(in.Registrable, in.Hostname) {
		dmarcHosts = append(dmarcHosts, in.Registrable)
	}
	for _, host := range dmarcHosts {
		for _, v := range txtValues(query(dnsQueryTimeout, "_dmarc."+host, dns.TypeTXT)) {
			if strings.HasPrefix(v, "v=DMARC1") {
				ev.Records = append(ev.Records, domain.DNSRecord{Type: "DMARC", Value: v})
				ev.HasDMARC = true
			}
		}
		if ev.HasDMARC {
			break
		}
	}

	for _, sel := range DKIMSelectors {
		if ctx.Err() != nil {
			break
		}
		values := txtValues(query(dkimTimeout, sel+"._domainkey."+in.Hostname, dns.TypeTXT))
		if len(values) > 0 {
			ev.HasDKIM = true
			ev.Records = append(ev.Records, domain.DNSRecord{Type: "DKIM", Value: sel + ": " + values[0]})
			break
		}
	}

	for _, rr := range query(dnsQueryTimeout, in.Hostname, dns.TypeMX) {
		if mx, ok := rr.(*dns.MX); ok {
			ev.Records = append(ev.Records, domain.DNSRecord{
				Type:  "MX",
				Value: fmt.Sprintf("%d %s", mx.Preference, strings.TrimSuffix(mx.Mx, ".")),
			})
		}
	}

	if attempts > 0 && failures == attempts {
		if lastErr == nil {
			lastErr = errors.New("no queries answered")
		}
		return nil, fmt.Errorf("dns records for %s: %w", in.Hostname, lastErr)
	}
	return ev, nil
}

// txtValues joins each TXT record's character strings and strips quotes.
func txtValues(rrs []dns.RR) []string {
	var out []string
	for _, rr := range rrs {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		out = append(out, strings.ReplaceAll(strings.Join(txt.Txt, ""), `"`, ""))
	}
	return out
}
