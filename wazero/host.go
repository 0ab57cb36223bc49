package wazero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName is the import module guests link the host functions from.
const ModuleName = "reactor"

// HostFunction is an additional function exported to guests.
type HostFunction struct {
	Name        string
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
	Handler     api.GoModuleFunc
}

type hostOptions struct {
	logger *slog.Logger
	caller NativeCaller
	extra  []HostFunction
}

// Option configures the host module.
type Option func(*hostOptions)

// WithLogger sets the logger guest log records are written to.
func WithLogger(l *slog.Logger) Option {
	return func(o *hostOptions) { o.logger = l }
}

// WithNativeCaller sets the capability call target. Without one, every
// call_native answers with an error result.
func WithNativeCaller(c NativeCaller) Option {
	return func(o *hostOptions) { o.caller = c }
}

// WithHostFunction exports an additional function.
func WithHostFunction(fn HostFunction) Option {
	return func(o *hostOptions) { o.extra = append(o.extra, fn) }
}

// Register instantiates the host module in rt.
func Register(ctx context.Context, rt wazero.Runtime, opts ...Option) error {
	o := hostOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	b := rt.NewHostModuleBuilder(ModuleName)
	b.NewFunctionBuilder().
		WithGoModuleFunction(logMessage(o.logger), []api.ValueType{api.ValueTypeI64}, nil).
		Export("log_message")
	b.NewFunctionBuilder().
		WithGoModuleFunction(callNative(o.logger, o.caller),
			[]api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
		Export("call_native")
	for _, fn := range o.extra {
		b.NewFunctionBuilder().
			WithGoModuleFunction(fn.Handler, fn.ParamTypes, fn.ResultTypes).
			Export(fn.Name)
	}

	if _, err := b.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module %q: %w", ModuleName, err)
	}
	return nil
}

// callNative returns the `call_native` host function.
// It receives a packed CBOR NativeCall and returns a packed CBOR NativeResult
// written into guest memory, or zero when the result cannot be written.
func callNative(logger *slog.Logger, caller NativeCaller) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		res := serveNative(ctx, caller, mod, stack[0])

		data, err := Encode(res)
		if err != nil {
			logger.ErrorContext(ctx, "wazero: failed to encode native result", "error", err)
			stack[0] = 0
			return
		}
		packed, err := WriteBytes(ctx, mod, data)
		if err != nil {
			logger.ErrorContext(ctx, "wazero: failed to write native result", "error", err)
			stack[0] = 0
			return
		}
		stack[0] = packed
	}
}

func serveNative(ctx context.Context, caller NativeCaller, mod api.Module, packed uint64) NativeResult {
	data, err := ReadBytes(mod, packed)
	if err != nil {
		return NativeResult{Error: err.Error()}
	}
	var call NativeCall
	if err := Decode(data, &call); err != nil {
		return NativeResult{Error: err.Error()}
	}
	if caller == nil {
		return NativeResult{Error: fmt.Sprintf("no native caller for %s.%s", call.Module, call.Method)}
	}
	res, err := caller.CallNative(ctx, InstanceID(ctx), call)
	if err != nil {
		return NativeResult{Error: err.Error()}
	}
	return res
}
