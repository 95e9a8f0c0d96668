package collectors

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

const (
	fingerprintTimeout = 15 * time.Second
	fingerprintMaxBody = 2 * 1024 * 1024
)

//go:embed signatures.yaml
var signaturesYAML []byte

// Signature names a technology and the pattern that reveals it.
type Signature struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	regex   *regexp.Regexp
}

var (
	signatures     []Signature
	signaturesOnce sync.Once
)

func loadSignatures() []Signature {
	signaturesOnce.Do(func() {
		var raw []Signature
		if err := yaml.Unmarshal(signaturesYAML, &raw); err != nil {
			return
		}
		for _, s := range raw {
			re, err := regexp.Compile("(?i)" + s.Pattern)
			if err != nil {
				continue
			}
			s.regex = re
			signatures = append(signatures, s)
		}
	})
	return signatures
}

// Signatures returns the compiled signature table.
func Signatures() []Signature {
	return loadSignatures()
}

type Fingerprinter struct {
	HTTP      *http.Client
	UserAgent string
}

func NewFingerprinter(userAgent string) *Fingerprinter {
	return &Fingerprinter{
		HTTP:      newHTTPClient(fingerprintTimeout, headerMaxRedirects),
		UserAgent: orDefault(userAgent, DefaultUserAgent),
	}
}

func (f *Fingerprinter) Name() string { return "fingerprint" }

// Collect never fails: any problem yields an empty list.
func (f *Fingerprinter) Collect(ctx context.Context, targetURL string) ([]string, error) {
	techs := []string{}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return techs, nil
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return techs, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return techs, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fingerprintMaxBody))
	if err != nil {
		return techs, nil
	}

	return detectTechnologies(resp.Header, body), nil
}

func detectTechnologies(h http.Header, body []byte) []string {
	techs := []string{}
	seen := make(map[string]bool)
	add := func(label string) {
		if label == "" || seen[label] {
			return
		}
		seen[label] = true
		techs = append(techs, label)
	}

	server := h.Get("Server")
	poweredBy := h.Get("X-Powered-By")
	if server != "" {
		add("Server: " + server)
	}
	if poweredBy != "" {
		add("Powered-By: " + poweredBy)
	}
	if gen := metaGenerator(body); gen != "" {
		add("Generator: " + gen)
	}

	for _, sig := range loadSignatures() {
		if sig.regex.Match(body) || sig.regex.MatchString(server) || sig.regex.MatchString(poweredBy) {
			add(sig.Name)
		}
	}
	return techs
}

// metaGenerator returns the content of the first <meta name="generator">.
func metaGenerator(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" || !hasAttr {
				continue
			}
			var isGenerator bool
			var content string
			for {
				key, val, more := z.TagAttr()
				switch string(key) {
				case "name":
					isGenerator = strings.EqualFold(string(val), "generator")
				case "content":
					content = string(val)
				}
				if !more {
					break
				}
			}
			if isGenerator {
				return content
			}
		}
	}
}
