// Package timer provides the built-in timer capability module.
package timer

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/reglet-dev/reactor-sdk/capability"
	"github.com/reglet-dev/reactor-sdk/page"
)

// Name is the module name scripts address the timer by.
const Name = "timer"

// Source declares the timer module.
func Source() capability.Source {
	return capability.Declare[Timer](Name, map[string]capability.Meta{
		"SetTimeout":    {Alias: "setTimeout"},
		"SetInterval":   {Alias: "setInterval"},
		"ClearTimeout":  {Alias: "clearTimeout"},
		"ClearInterval": {Alias: "clearInterval"},
	})
}

// Timer schedules script callbacks for one page. Firing a timer invokes the
// callback through the page handle, so callbacks run on the script context.
type Timer struct {
	mu     sync.Mutex
	page   *page.Handle
	timers map[string]*entry
}

type entry struct {
	stop func()
}

// SetPage binds the page callbacks are delivered to.
func (t *Timer) SetPage(h *page.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.page = h
}

// SetTimeout fires callbackID once after delayMS milliseconds.
// Reusing a pending callback ID replaces its timer.
func (t *Timer) SetTimeout(callbackID string, delayMS int64) error {
	if err := checkArgs(callbackID, delayMS); err != nil {
		return err
	}
	e := &entry{}

	t.mu.Lock()
	prev := t.swap(callbackID, e)
	timer := time.AfterFunc(time.Duration(delayMS)*time.Millisecond, func() {
		if t.remove(callbackID, e) {
			t.fire(callbackID)
		}
	})
	e.stop = func() { timer.Stop() }
	t.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	return nil
}

// SetInterval fires callbackID every intervalMS milliseconds until cleared.
func (t *Timer) SetInterval(callbackID string, intervalMS int64) error {
	if err := checkArgs(callbackID, intervalMS); err != nil {
		return err
	}
	if intervalMS == 0 {
		return fmt.Errorf("timer: interval must be positive")
	}

	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	done := make(chan struct{})
	var once sync.Once
	e := &entry{stop: func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}}

	t.mu.Lock()
	prev := t.swap(callbackID, e)
	t.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.fire(callbackID)
			}
		}
	}()
	return nil
}

// ClearTimeout cancels a pending timeout. Unknown IDs are ignored.
func (t *Timer) ClearTimeout(callbackID string) {
	t.clear(callbackID)
}

// ClearInterval cancels an interval. Unknown IDs are ignored.
func (t *Timer) ClearInterval(callbackID string) {
	t.clear(callbackID)
}

// Destroy cancels every timer of the page.
func (t *Timer) Destroy() {
	t.mu.Lock()
	timers := t.timers
	t.timers = nil
	t.page = nil
	t.mu.Unlock()

	for _, e := range timers {
		e.stop()
	}
}

// Pending returns the number of scheduled timers.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// swap registers e under id and returns the entry it replaces. Requires t.mu.
func (t *Timer) swap(id string, e *entry) *entry {
	if t.timers == nil {
		t.timers = make(map[string]*entry)
	}
	prev := t.timers[id]
	t.timers[id] = e
	return prev
}

// remove drops a fired timeout unless it was replaced or cleared meanwhile.
func (t *Timer) remove(id string, e *entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timers[id] != e {
		return false
	}
	delete(t.timers, id)
	return true
}

func (t *Timer) clear(id string) {
	t.mu.Lock()
	e := t.timers[id]
	delete(t.timers, id)
	t.mu.Unlock()

	if e != nil {
		e.stop()
	}
}

func (t *Timer) fire(id string) {
	t.mu.Lock()
	h := t.page
	t.mu.Unlock()

	if h != nil {
		h.InvokeCallback(context.Background(), id, "[]")
	}
}

// maxDelayMS is the largest delay that still fits a time.Duration.
const maxDelayMS = math.MaxInt64 / int64(time.Millisecond)

func checkArgs(callbackID string, ms int64) error {
	if callbackID == "" {
		return fmt.Errorf("timer: callback id is required")
	}
	if ms < 0 {
		return fmt.Errorf("timer: negative delay %d", ms)
	}
	if ms > maxDelayMS {
		return fmt.Errorf("timer: delay %d exceeds %d ms", ms, maxDelayMS)
	}
	return nil
}
