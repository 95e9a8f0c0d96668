// Package collectors holds the independent evidence probes run for a scan.
// Each probe implements Collector and reports failure as an error; callers
// decide how a failure is represented in the evidence bundle.
package collectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultUserAgent = "CloudSecurityAuditor/1.0 (Security Scanner)"

	// overrunGrace is how long Run waits past a collector's deadline for it
	// to return on its own before abandoning it.
	overrunGrace = time.Second
)

var (
	// ErrUnresolved means the hostname has no usable A record.
	ErrUnresolved = errors.New("hostname did not resolve")
	// ErrHTTPStatus wraps unexpected upstream status codes.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrNotHTTPS is returned by the TLS prober for plain http origins.
	ErrNotHTTPS = errors.New("target is not an https origin")
)

// Collector gathers one category of evidence.
type Collector[I, O any] interface {
	Name() string
	Collect(ctx context.Context, in I) (O, error)
}

// CollectorError records which collector failed and why.
type CollectorError struct {
	Collector string
	Err       error
}

func (e *CollectorError) Error() string { return fmt.Sprintf("%s: %v", e.Collector, e.Err) }
func (e *CollectorError) Unwrap() error { return e.Err }

// Run executes c with its own timeout. Panics and deadline overruns are
// converted into *CollectorError so nothing escapes to the caller.
func Run[I, O any](ctx context.Context, c Collector[I, O], in I, timeout time.Duration) (O, error) {
	var zero O
	name := c.Name()

	runCtx := ctx
	hardCtx := ctx
	if timeout > 0 {
		var cancel, hardCancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		hardCtx, hardCancel = context.WithTimeout(ctx, timeout+overrunGrace)
		defer hardCancel()
	}

	type result struct {
		out O
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := c.Collect(runCtx, in)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return zero, &CollectorError{Collector: name, Err: r.err}
		}
		return r.out, nil
	case <-hardCtx.Done():
		return zero, &CollectorError{Collector: name, Err: hardCtx.Err()}
	}
}

func newHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
