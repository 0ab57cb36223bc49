// Package wazero connects WebAssembly page modules to the host.
//
// Values cross the guest boundary as a packed uint64: the guest pointer in the
// high 32 bits and the byte length in the low 32 bits. Host-to-guest buffers
// are allocated through the guest's exported "allocate" function.
package wazero

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// AllocateExport is the guest export used to reserve memory for host writes.
const AllocateExport = "allocate"

// ErrNoAllocator is returned when the guest does not export an allocator.
var ErrNoAllocator = errors.New("guest does not export " + AllocateExport)

// PackPtrLen packs a guest pointer and length into one value.
func PackPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackPtrLen splits a packed value into guest pointer and length.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	//nolint:gosec // WASM pointers are 32-bit
	return uint32(packed >> 32), uint32(packed)
}

// ReadBytes copies the guest bytes addressed by packed.
// A zero length yields nil.
func ReadBytes(mod api.Module, packed uint64) ([]byte, error) {
	ptr, length := UnpackPtrLen(packed)
	if length == 0 {
		return nil, nil
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("module %q has no memory", mod.Name())
	}
	data, ok := mem.Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("read out of range: ptr=%d len=%d", ptr, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteBytes copies data into guest memory and returns its packed location.
// Empty data is not written and packs to zero.
func WriteBytes(ctx context.Context, mod api.Module, data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	allocate := mod.ExportedFunction(AllocateExport)
	if allocate == nil {
		return 0, ErrNoAllocator
	}
	res, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("allocate failed: %w", err)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("allocate returned no pointer")
	}
	//nolint:gosec // WASM pointers are 32-bit
	ptr := uint32(res[0])
	if !mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("write out of range: ptr=%d len=%d", ptr, len(data))
	}
	//nolint:gosec // guest buffers are bounded by 32-bit memory
	return PackPtrLen(ptr, uint32(len(data))), nil
}
