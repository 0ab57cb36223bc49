package affinity

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLooper(t *testing.T, id ID) *Looper {
	t.Helper()
	l := NewLooper(id, WithLooperLogger(newTestLogger()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Close(ctx)
	})
	return l
}

// flush blocks until everything posted to l before the call has run.
func flush(t *testing.T, l *Looper) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, l.Enqueue(func(context.Context) { close(done) }))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("looper did not drain in time")
	}
}

func TestBridge_Post_InlineOnBoundContext(t *testing.T) {
	l := newTestLooper(t, "bound")
	b := NewBridge(l, WithBridgeLogger(newTestLogger()))

	queuedBefore := testutil.ToFloat64(bridgePosts.WithLabelValues(pathQueued))

	ctx := WithContext(context.Background(), l.ID())
	ran := false
	var seen ID
	b.Post(ctx, func(ctx context.Context) {
		ran = true
		seen, _ = Current(ctx)
	})

	assert.True(t, ran, "work must run before Post returns")
	assert.Equal(t, l.ID(), seen)
	assert.Equal(t, 0, l.Pending())
	assert.Equal(t, queuedBefore, testutil.ToFloat64(bridgePosts.WithLabelValues(pathQueued)))
}

func TestBridge_Post_CrossContextPreservesOrder(t *testing.T) {
	l := newTestLooper(t, "script")
	b := NewBridge(l, WithBridgeLogger(newTestLogger()))
	other := NewBridge(l, WithBridgeLogger(newTestLogger()))

	src := WithContext(context.Background(), "ui")

	var mu sync.Mutex
	var got []int

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		noise := WithContext(context.Background(), "net")
		for i := 0; i < 200; i++ {
			other.Post(noise, func(context.Context) {})
		}
	}()

	for i := 0; i < 200; i++ {
		i := i
		b.Post(src, func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()
	flush(t, l)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 200)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestBridge_Post_RunsOnTargetContext(t *testing.T) {
	l := newTestLooper(t, Script)
	b := NewBridge(l)

	idCh := make(chan ID, 1)
	b.Post(WithContext(context.Background(), UI), func(ctx context.Context) {
		id, _ := Current(ctx)
		idCh <- id
	})

	select {
	case id := <-idCh:
		assert.Equal(t, Script, id)
	case <-time.After(5 * time.Second):
		t.Fatal("work did not run")
	}
}

func TestBridge_Post_NestedPostRunsInline(t *testing.T) {
	l := newTestLooper(t, "nested")
	b := NewBridge(l)

	var order []string
	done := make(chan struct{})
	b.Post(context.Background(), func(ctx context.Context) {
		order = append(order, "outer-start")
		b.Post(ctx, func(context.Context) {
			order = append(order, "inner")
		})
		order = append(order, "outer-end")
		close(done)
	})
	<-done

	assert.Equal(t, []string{"outer-start", "inner", "outer-end"}, order)
}

func TestBridge_Post_DetachedIsNoop(t *testing.T) {
	l := newTestLooper(t, "torn")
	b := NewBridge(l)
	b.Detach()
	assert.False(t, b.Bound())
	assert.Nil(t, b.Target())

	droppedBefore := testutil.ToFloat64(bridgePosts.WithLabelValues(pathDropped))

	ran := false
	b.Post(context.Background(), func(context.Context) { ran = true })
	assert.Equal(t, 0, l.Pending())

	flush(t, l)
	assert.False(t, ran)
	assert.Equal(t, droppedBefore+1, testutil.ToFloat64(bridgePosts.WithLabelValues(pathDropped)))
}

func TestBridge_Post_UnboundIsNoop(t *testing.T) {
	b := NewBridge(nil)
	assert.False(t, b.Bound())
	assert.NotPanics(t, func() {
		b.Post(context.Background(), func(context.Context) { t.Error("must not run") })
		b.Post(context.Background(), nil)
	})
}

func TestBridge_Post_ClosedLooperDropsWork(t *testing.T) {
	l := NewLooper("closing", WithLooperLogger(newTestLogger()))
	b := NewBridge(l, WithBridgeLogger(newTestLogger()))
	require.NoError(t, l.Close(context.Background()))

	ran := false
	b.Post(context.Background(), func(context.Context) { ran = true })
	assert.False(t, ran)
	assert.False(t, l.Enqueue(func(context.Context) {}))
}
