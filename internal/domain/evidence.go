package domain

import (
	"encoding/hex"
	"encoding/json"

	"github.com/spaolacci/murmur3"
)

// Bundle is the merged evidence for one scan attempt. A nil field means the
// collector failed or was not selected by the scope, never "nothing found".
type Bundle struct {
	TargetURL    string          `json:"targetUrl"`
	ResolvedIP   *string         `json:"resolvedIp"`
	Headers      *HeaderEvidence `json:"headers"`
	HostIntel    *HostIntel      `json:"hostIntel"`
	DNS          *DNSEvidence    `json:"dns"`
	TLS          *TLSEvidence    `json:"tls"`
	Technologies []string        `json:"technologies"`
}

type HeaderEvidence struct {
	Present map[string]string `json:"present"`
	Missing []string          `json:"missing"`
}

// HostIntel is passive data from a third-party host database. Ports listed
// here were observed by that database, not probed by us.
type HostIntel struct {
	IP        string   `json:"ip"`
	Ports     []int    `json:"ports"`
	CPEs      []string `json:"cpes"`
	Hostnames []string `json:"hostnames"`
	Tags      []string `json:"tags"`
	Vulns     []string `json:"vulns"`
}

type DNSRecord struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type DNSEvidence struct {
	Records  []DNSRecord `json:"records"`
	HasSPF   bool        `json:"hasSPF"`
	HasDKIM  bool        `json:"hasDKIM"`
	HasDMARC bool        `json:"hasDMARC"`
}

// TLSEvidence only covers reachability over HTTPS and HSTS advertisement.
type TLSEvidence struct {
	Reachable    bool     `json:"reachable"`
	SupportsHSTS bool     `json:"supportsHSTS"`
	Issues       []string `json:"issues"`
}

// MarshalJSON keeps technologies as [] rather than null.
func (b Bundle) MarshalJSON() ([]byte, error) {
	type plain Bundle
	if b.Technologies == nil {
		b.Technologies = []string{}
	}
	return json.Marshal(plain(b))
}

// Hash fingerprints the bundle contents. Map keys are sorted by
// encoding/json so equal bundles hash equally.
func (b *Bundle) Hash() string {
	raw, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	h1, h2 := murmur3.Sum128(raw)
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h1 >> (56 - 8*i))
		buf[8+i] = byte(h2 >> (56 - 8*i))
	}
	return hex.EncodeToString(buf[:])
}
