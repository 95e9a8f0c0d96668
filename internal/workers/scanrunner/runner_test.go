package scanrunner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudauditor/internal/ports"
)

type recorder struct {
	mu      sync.Mutex
	seen    []string
	block   chan struct{}
	started chan string
	err     error
}

func (r *recorder) Process(ctx context.Context, scanID string) error {
	if r.started != nil {
		r.started <- scanID
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.seen = append(r.seen, scanID)
	r.mu.Unlock()
	return r.err
}

func (r *recorder) Seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPoolProcessesSubmittedJobs(t *testing.T) {
	p := NewPool(2, quietLogger())
	rec := &recorder{}
	p.Start(context.Background(), rec)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, p.Submit(ports.ScanJob{ScanID: id}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, rec.Seen())
}

func TestPoolQueuesBeforeStart(t *testing.T) {
	p := NewPool(1, quietLogger())
	require.NoError(t, p.Submit(ports.ScanJob{ScanID: "early"}))

	rec := &recorder{}
	p.Start(context.Background(), rec)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, []string{"early"}, rec.Seen())
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := NewPool(1, quietLogger())
	p.Start(context.Background(), &recorder{})
	require.NoError(t, p.Shutdown(context.Background()))

	assert.ErrorIs(t, p.Submit(ports.ScanJob{ScanID: "late"}), ErrPoolClosed)
}

func TestProcessorErrorsDoNotStopWorkers(t *testing.T) {
	p := NewPool(1, quietLogger())
	rec := &recorder{err: errors.New("boom")}
	p.Start(context.Background(), rec)

	require.NoError(t, p.Submit(ports.ScanJob{ScanID: "x"}))
	require.NoError(t, p.Submit(ports.ScanJob{ScanID: "y"}))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, []string{"x", "y"}, rec.Seen())
}

func TestActiveAndCancel(t *testing.T) {
	p := NewPool(1, quietLogger())
	rec := &recorder{block: make(chan struct{}), started: make(chan string, 1)}
	p.Start(context.Background(), rec)

	require.NoError(t, p.Submit(ports.ScanJob{ScanID: "slow"}))
	select {
	case id := <-rec.started:
		assert.Equal(t, "slow", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}
	assert.Equal(t, []string{"slow"}, p.Active())

	assert.True(t, p.cancel("slow"))
	assert.False(t, p.cancel("unknown"))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Empty(t, p.Active())
	assert.Empty(t, rec.Seen())
}

func TestShutdownDeadlineCancelsRunningJobs(t *testing.T) {
	p := NewPool(1, quietLogger())
	rec := &recorder{block: make(chan struct{}), started: make(chan string, 1)}
	p.Start(context.Background(), rec)
	require.NoError(t, p.Submit(ports.ScanJob{ScanID: "stuck"}))
	<-rec.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Eventually(t, func() bool { return len(p.Active()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

type panicker struct{}

func (panicker) Process(context.Context, string) error { panic("kaboom") }

func TestProcessInlineRecoversPanics(t *testing.T) {
	err := ProcessInline(context.Background(), panicker{}, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}
