package wazero

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
)

// fakeModule serves Memory only.
type fakeModule struct {
	api.Module
	mem api.Memory
}

func (m *fakeModule) Memory() api.Memory { return m.mem }

// fakeMemory serves Read only.
type fakeMemory struct {
	api.Memory
	data []byte
}

func newFakeMemory(data []byte) *fakeMemory {
	return &fakeMemory{data: data}
}

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset:end], true
}

func TestReadBytes(t *testing.T) {
	mod := &fakeModule{mem: newFakeMemory([]byte("hello world"))}

	data, err := ReadBytes(mod, PackPtrLen(6, 5))
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), data)

	data, err = ReadBytes(mod, PackPtrLen(3, 0))
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = ReadBytes(mod, PackPtrLen(6, 50))
	assert.Error(t, err)
}

func TestPackPtrLen(t *testing.T) {
	tests := []struct {
		ptr, length uint32
	}{
		{0, 0},
		{1024, 17},
		{math.MaxUint32, 1},
		{8, math.MaxUint32},
	}
	for _, tt := range tests {
		ptr, length := UnpackPtrLen(PackPtrLen(tt.ptr, tt.length))
		assert.Equal(t, tt.ptr, ptr)
		assert.Equal(t, tt.length, length)
	}
	assert.Equal(t, uint64(1024)<<32|17, PackPtrLen(1024, 17))
}

func TestConvertSingleAttr(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		attr LogAttr
		want slog.Attr
	}{
		{"string", LogAttr{"k", "string", "v"}, slog.String("k", "v")},
		{"int64", LogAttr{"k", "int64", "-3"}, slog.Int64("k", -3)},
		{"bool", LogAttr{"k", "bool", "true"}, slog.Bool("k", true)},
		{"float64", LogAttr{"k", "float64", "1.5"}, slog.Float64("k", 1.5)},
		{"duration", LogAttr{"k", "duration", "1.5s"}, slog.Duration("k", 1500*time.Millisecond)},
		{"time", LogAttr{"k", "time", ts.Format(time.RFC3339Nano)}, slog.Time("k", ts)},
		{"unparsable int", LogAttr{"k", "int64", "x"}, slog.String("k", "x")},
		{"unknown type", LogAttr{"k", "blob", "abc"}, slog.String("k", "abc")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertSingleAttr(tt.attr)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}

	t.Run("error", func(t *testing.T) {
		got := convertSingleAttr(LogAttr{"err", "error", "disk full"})
		err, ok := got.Value.Any().(error)
		require.True(t, ok)
		assert.EqualError(t, err, "disk full")
	})
}

func TestParseLogLevel(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	assert.Equal(t, slog.LevelDebug, parseLogLevel(logger, "debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel(logger, "WARN"))
	assert.Equal(t, slog.LevelError, parseLogLevel(logger, "error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(logger, "verbose"))
}

func TestInstanceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, InstanceID(ctx))
	assert.Equal(t, "p1", InstanceID(WithInstanceID(ctx, "p1")))
}

type stubCaller struct {
	res NativeResult
	err error
}

func (s stubCaller) CallNative(context.Context, string, NativeCall) (NativeResult, error) {
	return s.res, s.err
}

func TestNativeCallCodec(t *testing.T) {
	data, err := Encode(NativeCall{Module: "timer", Method: "setTimeout", Args: []byte(`["cb",1]`)})
	require.NoError(t, err)

	var call NativeCall
	require.NoError(t, Decode(data, &call))
	assert.Equal(t, "setTimeout", call.Method)

	assert.Error(t, Decode([]byte{0xff}, &call))
}

func TestServeNativeErrors(t *testing.T) {
	ctx := context.Background()
	call, err := Encode(NativeCall{Module: "m", Method: "f"})
	require.NoError(t, err)

	mem := &fakeModule{mem: newFakeMemory(call)}
	packed := PackPtrLen(0, uint32(len(call)))

	res := serveNative(ctx, nil, mem, packed)
	assert.Equal(t, "no native caller for m.f", res.Error)

	res = serveNative(ctx, stubCaller{err: errors.New("boom")}, mem, packed)
	assert.Equal(t, "boom", res.Error)

	res = serveNative(ctx, stubCaller{res: NativeResult{Deferred: true}}, mem, packed)
	assert.True(t, res.Deferred)

	res = serveNative(ctx, stubCaller{}, mem, PackPtrLen(1<<20, 4))
	assert.Contains(t, res.Error, "read out of range")
}
