package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHostIntel(srv *httptest.Server) *HostIntelLookup {
	h := NewHostIntelLookup(srv.URL, "test-agent", 0)
	h.RetryDelay = time.Millisecond
	return h
}

func TestHostIntelDecodes(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"ip": "93.184.216.34",
			"ports": [80, 443],
			"cpes": ["cpe:/a:nginx:nginx"],
			"hostnames": ["example.com"],
			"tags": ["cdn"],
			"vulns": []
		}`))
	}))
	defer srv.Close()

	hi, err := newTestHostIntel(srv).Collect(context.Background(), "93.184.216.34")
	require.NoError(t, err)

	assert.Equal(t, "/93.184.216.34", path)
	assert.Equal(t, "93.184.216.34", hi.IP)
	assert.Equal(t, []int{80, 443}, hi.Ports)
	assert.Equal(t, []string{"cpe:/a:nginx:nginx"}, hi.CPEs)
	assert.Equal(t, []string{"example.com"}, hi.Hostnames)
	assert.Equal(t, []string{"cdn"}, hi.Tags)
	assert.Equal(t, []string{}, hi.Vulns)
}

func TestHostIntelMissingFieldsBecomeEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ports": [22]}`))
	}))
	defer srv.Close()

	hi, err := newTestHostIntel(srv).Collect(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", hi.IP)
	assert.Equal(t, []int{22}, hi.Ports)
	assert.NotNil(t, hi.CPEs)
	assert.NotNil(t, hi.Vulns)
}

func TestHostIntelNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"No information available"}`))
	}))
	defer srv.Close()

	hi, err := newTestHostIntel(srv).Collect(context.Background(), "10.0.0.1")
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Nil(t, hi)
	assert.EqualValues(t, 1, calls.Load())
}

func TestHostIntelRetriesTransientOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ip":"10.0.0.1","ports":[443]}`))
	}))
	defer srv.Close()

	hi, err := newTestHostIntel(srv).Collect(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []int{443}, hi.Ports)
	assert.EqualValues(t, 2, calls.Load())
}

func TestHostIntelGivesUpAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestHostIntel(srv).Collect(context.Background(), "10.0.0.1")
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.EqualValues(t, 2, calls.Load())
}

func TestHostIntelMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ports": "not-a-list"`))
	}))
	defer srv.Close()

	hi, err := newTestHostIntel(srv).Collect(context.Background(), "10.0.0.1")
	assert.Error(t, err)
	assert.Nil(t, hi)
}
