package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wordpressPage = `<!doctype html>
<html><head>
<meta charset="utf-8">
<meta name="Generator" content="WordPress 6.4.2">
<script src="/wp-content/themes/site/js/jquery.min.js"></script>
</head><body><p>hello</p></body></html>`

func TestSignaturesLoad(t *testing.T) {
	sigs := Signatures()
	require.Len(t, sigs, 20)
	assert.Equal(t, "WordPress", sigs[0].Name)
	assert.Equal(t, "Svelte", sigs[len(sigs)-1].Name)
	for _, s := range sigs {
		assert.NotNil(t, s.regex, s.Name)
	}
}

func TestDetectTechnologies(t *testing.T) {
	h := http.Header{}
	h.Set("Server", "nginx")
	h.Set("X-Powered-By", "Express")

	got := detectTechnologies(h, []byte(wordpressPage))
	assert.Equal(t, []string{
		"Server: nginx",
		"Powered-By: Express",
		"Generator: WordPress 6.4.2",
		"WordPress",
		"jQuery",
		"Nginx",
		"Express.js",
	}, got)
}

func TestDetectTechnologiesReportsSignatureOnce(t *testing.T) {
	got := detectTechnologies(http.Header{}, []byte(`<div id="__next"></div><script src="/_next/static/next-data.js"></script>`))
	assert.Equal(t, []string{"Next.js"}, got)
}

func TestMetaGenerator(t *testing.T) {
	assert.Equal(t, "Hugo 0.121", metaGenerator([]byte(`<meta content="Hugo 0.121" name="generator"/>`)))
	assert.Equal(t, "", metaGenerator([]byte(`<meta name="description" content="x">`)))
	assert.Equal(t, "", metaGenerator(nil))
}

func TestFingerprinterCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.Write([]byte(`<html><body><script src="https://cdn.jsdelivr.net/npm/bootstrap@5"></script></body></html>`))
	}))
	defer srv.Close()

	got, err := NewFingerprinter("").Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"Server: cloudflare", "Bootstrap", "Cloudflare"}, got)
}

func TestFingerprinterNonOKIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "nginx")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	got, err := NewFingerprinter("").Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFingerprinterUnreachableIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	got, err := NewFingerprinter("").Collect(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
}
