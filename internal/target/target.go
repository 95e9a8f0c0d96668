// Package target turns free-form scan input into an origin URL and hostname.
package target

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// Target is the normalized form of user input.
type Target struct {
	URL         string `json:"url"`
	Hostname    string `json:"hostname"`
	Registrable string `json:"registrable"`
}

// Parse never fails: unparsable input degrades to https://<input> with the
// trimmed input as hostname so the scan can still proceed.
func Parse(raw string) Target {
	trimmed := strings.TrimSpace(raw)
	withScheme := trimmed
	if !schemeRe.MatchString(withScheme) {
		withScheme = "https://" + withScheme
	}

	u, err := url.Parse(withScheme)
	if err != nil || u.Host == "" || u.Hostname() == "" {
		return Target{
			URL:         "https://" + trimmed,
			Hostname:    trimmed,
			Registrable: registrable(trimmed),
		}
	}

	host := strings.ToLower(u.Hostname())
	origin := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	return Target{
		URL:         origin,
		Hostname:    host,
		Registrable: registrable(host),
	}
}

// registrable returns the eTLD+1 for host, or host itself for IP literals and
// names the public suffix list cannot split.
func registrable(host string) string {
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
