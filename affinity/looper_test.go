package affinity

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLooper_GeneratesID(t *testing.T) {
	l := newTestLooper(t, "")
	assert.True(t, strings.HasPrefix(string(l.ID()), "looper-"))

	other := newTestLooper(t, "")
	assert.NotEqual(t, l.ID(), other.ID())
}

func TestLooper_RecoversPanics(t *testing.T) {
	l := newTestLooper(t, "panicky")
	before := testutil.ToFloat64(looperPanics.WithLabelValues("panicky"))

	var after atomic.Bool
	require.True(t, l.Enqueue(func(context.Context) { panic("boom") }))
	require.True(t, l.Enqueue(func(context.Context) { after.Store(true) }))
	flush(t, l)

	assert.True(t, after.Load(), "work after a panic must still run")
	assert.Equal(t, before+1, testutil.ToFloat64(looperPanics.WithLabelValues("panicky")))
}

func TestLooper_AnonymousPanicLabel(t *testing.T) {
	l := newTestLooper(t, "")
	before := testutil.ToFloat64(looperPanics.WithLabelValues(anonymousLooper))

	require.True(t, l.Enqueue(func(context.Context) { panic("boom") }))
	flush(t, l)

	assert.Equal(t, before+1, testutil.ToFloat64(looperPanics.WithLabelValues(anonymousLooper)))
}

func TestLooper_CloseDrainsQueuedWork(t *testing.T) {
	l := NewLooper("drain", WithLooperLogger(newTestLogger()))

	release := make(chan struct{})
	var count atomic.Int32
	require.True(t, l.Enqueue(func(context.Context) { <-release }))
	for i := 0; i < 10; i++ {
		require.True(t, l.Enqueue(func(context.Context) { count.Add(1) }))
	}

	closed := make(chan error, 1)
	go func() { closed <- l.Close(context.Background()) }()

	// Close must wait for the queue to drain.
	select {
	case <-closed:
		t.Fatal("Close returned before queued work ran")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, int32(10), count.Load())

	select {
	case <-l.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}

func TestLooper_CloseHonoursContext(t *testing.T) {
	l := NewLooper("stuck", WithLooperLogger(newTestLogger()))
	release := make(chan struct{})
	require.True(t, l.Enqueue(func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-l.Done()
}

func TestLooper_BaseContextValuesVisible(t *testing.T) {
	type key struct{}
	base := context.WithValue(context.Background(), key{}, "value")
	l := NewLooper("base", WithBaseContext(base), WithLooperLogger(newTestLogger()))
	defer func() { _ = l.Close(context.Background()) }()

	got := make(chan any, 1)
	require.True(t, l.Enqueue(func(ctx context.Context) { got <- ctx.Value(key{}) }))
	assert.Equal(t, "value", <-got)
}

func TestCurrent(t *testing.T) {
	_, ok := Current(context.Background())
	assert.False(t, ok)

	ctx := WithContext(context.Background(), UI)
	id, ok := Current(ctx)
	assert.True(t, ok)
	assert.Equal(t, UI, id)
	assert.True(t, IsCurrent(ctx, UI))
	assert.False(t, IsCurrent(ctx, Script))
}
