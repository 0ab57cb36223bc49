package plugin

import (
	"log/slog"

	"github.com/reglet-dev/reactor-sdk/affinity"
	"github.com/reglet-dev/reactor-sdk/page"
)

// Factory creates page handles from the bound plugin.
type Factory struct {
	binding *Binding
	appID   string
	script  *affinity.Looper
	logger  *slog.Logger
}

// FactoryOption is a functional option for configuring the Factory.
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory and the bridges it creates.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithBinding sets the binding pages are created from.
// Defaults to the process-wide binding.
func WithBinding(b *Binding) FactoryOption {
	return func(f *Factory) {
		f.binding = b
	}
}

// NewFactory creates a factory for appID whose pages run on the script looper.
func NewFactory(appID string, script *affinity.Looper, opts ...FactoryOption) *Factory {
	f := &Factory{
		binding: Default(),
		appID:   appID,
		script:  script,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AppID returns the application identifier stamped on created pages.
func (f *Factory) AppID() string { return f.appID }

// Binding returns the binding pages are created from.
func (f *Factory) Binding() *Binding { return f.binding }

// CreatePage creates the page of instanceID with a dedicated bridge to the
// script looper. It reports false when no plugin is bound.
func (f *Factory) CreatePage(rt RuntimeHandle, instanceID string) (*page.Handle, bool) {
	p, ok := f.binding.Plugin()
	if !ok {
		f.logger.Debug("plugin: no plugin bound, page not created", "instance", instanceID)
		return nil, false
	}

	ctx := p.CreatePage(rt, instanceID)
	if ctx == nil {
		f.logger.Warn("plugin: plugin returned no page context", "instance", instanceID)
	}

	bridge := affinity.NewBridge(f.script, affinity.WithBridgeLogger(f.logger))
	return page.NewHandle(ctx, bridge, f.appID, instanceID), true
}
