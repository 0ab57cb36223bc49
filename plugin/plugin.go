// Package plugin holds the process-wide runtime plugin and creates page
// handles from it.
package plugin

import (
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/reactor-sdk/page"
)

// RuntimeHandle is an opaque reference to a script runtime instance.
type RuntimeHandle uint64

// Plugin is a script runtime implementation.
type Plugin interface {
	// CreatePage constructs the page context of instanceID.
	// It may return nil when the runtime cannot host the page.
	CreatePage(rt RuntimeHandle, instanceID string) page.Page
}

// Binding is a set-once cell holding the active plugin.
// The first successful Bind wins; later binds are ignored.
type Binding struct {
	mu     sync.Mutex
	bound  atomic.Bool
	plugin Plugin
}

var defaultBinding = &Binding{}

// Default returns the process-wide binding.
func Default() *Binding {
	return defaultBinding
}

// Bind sets the plugin if none is bound yet. It reports whether p was bound.
// A nil plugin is never bound.
func (b *Binding) Bind(p Plugin) bool {
	if p == nil || b.bound.Load() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound.Load() {
		return false
	}
	b.plugin = p
	b.bound.Store(true)
	return true
}

// Plugin returns the bound plugin.
func (b *Binding) Plugin() (Plugin, bool) {
	if !b.bound.Load() {
		return nil, false
	}
	return b.plugin, true
}

// Bound reports whether a plugin is bound.
func (b *Binding) Bound() bool {
	return b.bound.Load()
}
