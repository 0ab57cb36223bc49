package plugin

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/reactor-sdk/affinity"
	"github.com/reglet-dev/reactor-sdk/page"
)

// MockPlugin implements Plugin for testing
type MockPlugin struct {
	// NilPage makes CreatePage return no page.
	NilPage bool

	mu      sync.Mutex
	created map[string]*MockPage
	calls   atomic.Int32
}

func (m *MockPlugin) CreatePage(rt RuntimeHandle, instanceID string) page.Page {
	m.calls.Add(1)
	if m.NilPage {
		return nil
	}
	p := &MockPage{Runtime: rt, InstanceID: instanceID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created == nil {
		m.created = make(map[string]*MockPage)
	}
	m.created[instanceID] = p
	return p
}

// Created returns the page created for instanceID.
func (m *MockPlugin) Created(instanceID string) *MockPage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created[instanceID]
}

// Calls returns how many pages were requested.
func (m *MockPlugin) Calls() int {
	return int(m.calls.Load())
}

// PageCall is one lifecycle call received by a MockPage.
type PageCall struct {
	Op      string
	Args    []string
	Event   map[string]string
	Context affinity.ID
}

// MockPage implements page.Page and records every call
type MockPage struct {
	Runtime    RuntimeHandle
	InstanceID string

	mu    sync.Mutex
	calls []PageCall
}

func (m *MockPage) record(ctx context.Context, op string, args ...string) {
	m.recordCall(ctx, PageCall{Op: op, Args: args})
}

func (m *MockPage) recordCall(ctx context.Context, c PageCall) {
	c.Context, _ = affinity.Current(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *MockPage) SetContext(ctx context.Context, h page.ContextHandle) {
	m.record(ctx, "SetContext")
}

func (m *MockPage) Unregister(ctx context.Context) {
	m.record(ctx, "Unregister")
}

func (m *MockPage) Render(ctx context.Context, script, initData string) {
	m.record(ctx, "Render", script, initData)
}

func (m *MockPage) RegisterComponent(ctx context.Context) {
	m.record(ctx, "RegisterComponent")
}

func (m *MockPage) InvokeCallback(ctx context.Context, callbackID, argsJSON string) {
	m.record(ctx, "InvokeCallback", callbackID, argsJSON)
}

func (m *MockPage) FireEvent(ctx context.Context, ref, event string, args map[string]string, domChangesJSON string) {
	m.recordCall(ctx, PageCall{Op: "FireEvent", Args: []string{ref, event, domChangesJSON}, Event: args})
}

// Calls returns a copy of the recorded calls.
func (m *MockPage) Calls() []PageCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PageCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Ops returns the recorded operation names in order.
func (m *MockPage) Ops() []string {
	calls := m.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// NewTestLogger creates a logger for testing
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
