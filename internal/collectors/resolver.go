package collectors

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// Resolver maps a hostname to its first IPv4 address.
type Resolver struct {
	DoH *DoHClient
}

func NewResolver(doh *DoHClient) *Resolver {
	return &Resolver{DoH: doh}
}

func (r *Resolver) Name() string { return "resolver" }

// Collect returns IPv4 literals unchanged without touching the network.
func (r *Resolver) Collect(ctx context.Context, hostname string) (string, error) {
	if isIPv4Literal(hostname) {
		return hostname, nil
	}

	answers, err := r.DoH.Query(ctx, hostname, dns.TypeA)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnresolved, hostname, err)
	}
	for _, rr := range answers {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s: no A record", ErrUnresolved, hostname)
}

func isIPv4Literal(host string) bool {
	if strings.Count(host, ".") != 3 {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil
}
