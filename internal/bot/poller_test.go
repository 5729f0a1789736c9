package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/telegram"
)

// fakeSource serves scripted poll responses and records the offsets it was
// asked for.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	errs    []error
	offsets []int64
	done    chan struct{}
}

func (f *fakeSource) GetUpdates(ctx context.Context, offset int64, _ int) ([]telegram.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.offsets = append(f.offsets, offset)

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		return batch, nil
	}

	// Script exhausted: signal the test and block until cancellation, like a
	// real long poll with no traffic.
	select {
	case f.done <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingHandler struct {
	mu  sync.Mutex
	ids []int64
}

func (h *recordingHandler) HandleUpdate(_ context.Context, upd *telegram.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, upd.UpdateID)
}

type panickingHandler struct {
	recordingHandler
}

func (h *panickingHandler) HandleUpdate(ctx context.Context, upd *telegram.Update) {
	if upd.UpdateID == 2 {
		panic("boom")
	}
	h.recordingHandler.HandleUpdate(ctx, upd)
}

func runPoller(t *testing.T, source *fakeSource, handler UpdateHandler, retryDelay time.Duration) {
	t.Helper()
	source.done = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(source, handler, 1, retryDelay, zap.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	select {
	case <-source.done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not drain the scripted batches")
	}
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
}

func TestPoller_AdvancesOffset(t *testing.T) {
	source := &fakeSource{
		batches: [][]telegram.Update{
			{{UpdateID: 1}, {UpdateID: 2}},
			{{UpdateID: 3}},
		},
	}
	handler := &recordingHandler{}

	runPoller(t, source, handler, time.Millisecond)

	// First poll from zero, then strictly past the highest id seen.
	require.GreaterOrEqual(t, len(source.offsets), 3)
	assert.Equal(t, int64(0), source.offsets[0])
	assert.Equal(t, int64(3), source.offsets[1])
	assert.Equal(t, int64(4), source.offsets[2])

	assert.ElementsMatch(t, []int64{1, 2, 3}, handler.ids)
}

func TestPoller_RetriesAfterError(t *testing.T) {
	source := &fakeSource{
		errs:    []error{errors.New("telegram unreachable")},
		batches: [][]telegram.Update{{{UpdateID: 7}}},
	}
	handler := &recordingHandler{}

	runPoller(t, source, handler, time.Millisecond)

	// The error did not terminate the loop and did not move the offset.
	require.GreaterOrEqual(t, len(source.offsets), 2)
	assert.Equal(t, int64(0), source.offsets[0])
	assert.Equal(t, int64(0), source.offsets[1])
	assert.Equal(t, []int64{7}, handler.ids)
}

func TestPoller_SurvivesHandlerPanic(t *testing.T) {
	source := &fakeSource{
		batches: [][]telegram.Update{
			{{UpdateID: 1}, {UpdateID: 2}, {UpdateID: 3}},
		},
	}
	handler := &panickingHandler{}

	runPoller(t, source, handler, time.Millisecond)

	assert.ElementsMatch(t, []int64{1, 3}, handler.ids)
}

func TestPoller_StopsImmediatelyWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPoller(&fakeSource{done: make(chan struct{}, 1)}, &recordingHandler{}, 1, time.Millisecond, zap.NewNop())
	err := p.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
}
