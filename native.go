package reactor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reglet-dev/reactor-sdk/wazero"
)

// CallNative serves capability calls issued by WebAssembly page modules.
// Call failures are reported in the result; the error is reserved for
// results that cannot be encoded.
func (d *Dispatcher) CallNative(ctx context.Context, instanceID string, call wazero.NativeCall) (wazero.NativeResult, error) {
	res, err := d.Invoke(ctx, Call{
		InstanceID: instanceID,
		Module:     call.Module,
		Method:     call.Method,
		Args:       json.RawMessage(call.Args),
	})
	if err != nil {
		return wazero.NativeResult{Error: err.Error()}, nil
	}
	if res.Deferred {
		return wazero.NativeResult{Deferred: true}, nil
	}
	if res.Value == nil {
		return wazero.NativeResult{}, nil
	}
	value, err := json.Marshal(res.Value)
	if err != nil {
		return wazero.NativeResult{}, fmt.Errorf("encode %s.%s result: %w", call.Module, call.Method, err)
	}
	return wazero.NativeResult{Value: value}, nil
}
