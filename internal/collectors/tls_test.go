package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLSProberRejectsPlainHTTP(t *testing.T) {
	ev, err := NewTLSProber("").Collect(context.Background(), "http://example.com")
	assert.ErrorIs(t, err, ErrNotHTTPS)
	assert.Nil(t, ev)
}

func TestTLSProberReachableWithHSTS(t *testing.T) {
	var method string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}))
	defer srv.Close()

	p := NewTLSProber("")
	p.HTTP = srv.Client()

	ev, err := p.Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.MethodHead, method)
	assert.True(t, ev.Reachable)
	assert.True(t, ev.SupportsHSTS)
	assert.Empty(t, ev.Issues)
}

func TestTLSProberErrorStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewTLSProber("")
	p.HTTP = srv.Client()

	ev, err := p.Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, ev.Reachable)
	assert.False(t, ev.SupportsHSTS)
	assert.Equal(t, []string{"unexpected status 503"}, ev.Issues)
}

func TestTLSProberFinalRedirectStatusIsReachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	p := NewTLSProber("")
	p.HTTP = srv.Client()

	ev, err := p.Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, ev.Reachable)
	assert.Empty(t, ev.Issues)
}

func TestTLSProberConnectionFailureIsEvidence(t *testing.T) {
	// The default client does not trust the test certificate, so the
	// handshake fails.
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ev, err := NewTLSProber("").Collect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, ev.Reachable)
	require.Len(t, ev.Issues, 1)
	assert.True(t, strings.HasPrefix(ev.Issues[0], "SSL/TLS connection failed: "), ev.Issues[0])
}
