package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderProberClassifies(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Server", "nginx/1.25.3")
		w.Header().Set("X-Powered-By", "Express")
		w.Header().Set("Referrer-Policy", "  ")
		w.Header().Set("X-Custom", "ignored")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := NewHeaderProber("")
	ev, err := p.Collect(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, map[string]string{
		"strict-transport-security": "max-age=63072000",
		"x-frame-options":           "DENY",
		"server":                    "nginx/1.25.3",
		"x-powered-by":              "Express",
	}, ev.Present)
	assert.Equal(t, []string{
		"content-security-policy",
		"permissions-policy",
		"referrer-policy",
		"x-content-type-options",
	}, ev.Missing)
}

func TestHeaderProberFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ev, err := NewHeaderProber("").Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "default-src 'self'", ev.Present["content-security-policy"])
	assert.NotContains(t, ev.Missing, "content-security-policy")
}

func TestHeaderProberIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Permissions-Policy", "camera=()")
	}))
	defer srv.Close()

	p := NewHeaderProber("")
	first, err := p.Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	second, err := p.Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHeaderProberFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ev, err := NewHeaderProber("").Collect(context.Background(), url)
	assert.Error(t, err)
	assert.Nil(t, ev)
}

func TestRequiredHeadersAreInspected(t *testing.T) {
	assert.Len(t, InspectedHeaders, 15)
	assert.Len(t, RequiredHeaders, 6)
	assert.Subset(t, InspectedHeaders, RequiredHeaders)
}

func TestRequiredHeadersAppendLeavesInspectedAlone(t *testing.T) {
	assert.Equal(t, len(RequiredHeaders), cap(RequiredHeaders))

	seventh := InspectedHeaders[6]
	extended := append(RequiredHeaders, "x-custom")
	assert.Len(t, extended, 7)
	assert.Equal(t, seventh, InspectedHeaders[6])
}
