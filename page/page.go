// Package page defines the page lifecycle surface of a script runtime and
// the handle that routes lifecycle calls onto the script execution context.
package page

import (
	"context"
	"maps"
	"sync/atomic"

	"github.com/reglet-dev/reactor-sdk/affinity"
)

// ContextHandle is an opaque runtime context reference.
type ContextHandle int64

// Page is one loaded unit of script and UI state, implemented by a runtime
// plugin. Its methods run on the script execution context. They may run after
// the page was unregistered and must tolerate it.
type Page interface {
	SetContext(ctx context.Context, h ContextHandle)
	Unregister(ctx context.Context)
	Render(ctx context.Context, script, initData string)
	RegisterComponent(ctx context.Context)
	InvokeCallback(ctx context.Context, callbackID, argsJSON string)
	FireEvent(ctx context.Context, ref, event string, args map[string]string, domChangesJSON string)
}

// Handle routes lifecycle calls of one page through its bridge.
// Every call is asynchronous: it never blocks and returns nothing.
type Handle struct {
	page       Page
	bridge     *affinity.Bridge
	appID      string
	instanceID string

	unregistered atomic.Bool
}

// NewHandle binds p to bridge. A nil page yields a handle whose calls do nothing.
func NewHandle(p Page, bridge *affinity.Bridge, appID, instanceID string) *Handle {
	return &Handle{page: p, bridge: bridge, appID: appID, instanceID: instanceID}
}

// AppID returns the application identifier the page was created for.
func (h *Handle) AppID() string { return h.appID }

// InstanceID returns the page instance identifier.
func (h *Handle) InstanceID() string { return h.instanceID }

// Page returns the wrapped page, nil if none.
func (h *Handle) Page() Page { return h.page }

// Bridge returns the bridge lifecycle calls go through.
func (h *Handle) Bridge() *affinity.Bridge { return h.bridge }

// Unregistered reports whether Unregister was called.
func (h *Handle) Unregistered() bool { return h.unregistered.Load() }

func (h *Handle) post(ctx context.Context, call func(ctx context.Context, p Page)) {
	if h.page == nil || h.bridge == nil {
		return
	}
	p := h.page
	h.bridge.Post(ctx, func(ctx context.Context) {
		call(ctx, p)
	})
}

// SetContext hands the runtime context to the page.
func (h *Handle) SetContext(ctx context.Context, rc ContextHandle) {
	h.post(ctx, func(ctx context.Context, p Page) {
		p.SetContext(ctx, rc)
	})
}

// Unregister tears the page down and detaches the bridge; later calls on the
// handle are dropped. Calling it again does nothing.
func (h *Handle) Unregister(ctx context.Context) {
	if !h.unregistered.CompareAndSwap(false, true) {
		return
	}
	h.post(ctx, func(ctx context.Context, p Page) {
		p.Unregister(ctx)
	})
	if h.bridge != nil {
		h.bridge.Detach()
	}
}

// Render runs the page script with its initial data.
func (h *Handle) Render(ctx context.Context, script, initData string) {
	h.post(ctx, func(ctx context.Context, p Page) {
		p.Render(ctx, script, initData)
	})
}

// RegisterComponent asks the page to register its components.
func (h *Handle) RegisterComponent(ctx context.Context) {
	h.post(ctx, func(ctx context.Context, p Page) {
		p.RegisterComponent(ctx)
	})
}

// InvokeCallback invokes a script callback with JSON arguments.
func (h *Handle) InvokeCallback(ctx context.Context, callbackID, argsJSON string) {
	h.post(ctx, func(ctx context.Context, p Page) {
		p.InvokeCallback(ctx, callbackID, argsJSON)
	})
}

// FireEvent delivers a UI event to the element ref.
func (h *Handle) FireEvent(ctx context.Context, ref, event string, args map[string]string, domChangesJSON string) {
	args = maps.Clone(args)
	h.post(ctx, func(ctx context.Context, p Page) {
		p.FireEvent(ctx, ref, event, args, domChangesJSON)
	})
}
