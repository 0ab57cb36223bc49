package affinity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Looper owns one execution context: a single goroutine that runs queued
// work in submission order.
type Looper struct {
	id     ID
	label  string
	base   context.Context
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Work
	closed bool

	done chan struct{}
}

// LooperOption configures a Looper.
type LooperOption func(*Looper)

// WithLooperLogger sets the logger used for dropped work and recovered panics.
func WithLooperLogger(l *slog.Logger) LooperOption {
	return func(lp *Looper) { lp.logger = l }
}

// WithBaseContext sets the parent of the context handed to work.
// Values of base are visible to work; its cancellation is not observed by the Looper.
func WithBaseContext(ctx context.Context) LooperOption {
	return func(lp *Looper) { lp.base = ctx }
}

// NewLooper starts a Looper serving the execution context id.
// An empty id gets a generated one; such loopers share the
// "anonymous" metrics label.
func NewLooper(id ID, opts ...LooperOption) *Looper {
	label := string(id)
	if id == "" {
		id = NewID()
		label = anonymousLooper
	}
	l := &Looper{
		id:     id,
		label:  label,
		base:   context.Background(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cond = sync.NewCond(&l.mu)

	go l.loop()
	return l
}

// ID returns the execution context served by the Looper.
func (l *Looper) ID() ID {
	return l.id
}

// Enqueue appends w to the queue. It never blocks.
// It returns false when the Looper has been closed; w is then discarded.
func (l *Looper) Enqueue(w Work) bool {
	if w == nil {
		return true
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, w)
	l.mu.Unlock()
	l.cond.Signal()
	return true
}

// Pending returns the number of queued work items not yet started.
func (l *Looper) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Close stops accepting work. Work already queued still runs.
// Close returns once the queue has drained and the goroutine has exited,
// or when ctx is done.
func (l *Looper) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("looper %s: close: %w", l.id, ctx.Err())
	}
}

// Done is closed when the Looper goroutine has exited.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

func (l *Looper) loop() {
	defer close(l.done)

	ctx := WithContext(l.base, l.id)
	for {
		batch := l.take()
		if batch == nil {
			return
		}
		for _, w := range batch {
			l.run(ctx, w)
		}
	}
}

// take blocks until work is available, returning nil once closed and drained.
func (l *Looper) take() []Work {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.queue) == 0 && !l.closed {
		l.cond.Wait()
	}
	if len(l.queue) == 0 {
		return nil
	}
	batch := l.queue
	l.queue = nil
	return batch
}

func (l *Looper) run(ctx context.Context, w Work) {
	defer func() {
		if r := recover(); r != nil {
			looperPanics.WithLabelValues(l.label).Inc()
			l.logger.Error("affinity: recovered panic in posted work",
				"looper", string(l.id),
				"panic", fmt.Sprint(r))
		}
	}()
	w(ctx)
}
