package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tetratelabs/wazero/api"
)

// logMessage returns the `log_message` host function.
// It receives a packed uint64 (ptr+len) pointing to a CBOR-encoded LogRecord.
// It does not return any value.
func logMessage(logger *slog.Logger) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		rec, ok := readLogRecord(ctx, logger, mod, stack[0])
		if !ok {
			return
		}

		attrs := convertLogAttrs(rec.Attrs)
		if id := InstanceID(ctx); id != "" {
			attrs = append(attrs, slog.String("instance", id))
		}
		logger.LogAttrs(ctx, parseLogLevel(logger, rec.Level), rec.Message, attrs...)
	}
}

// readLogRecord reads and decodes the log record from guest memory.
func readLogRecord(ctx context.Context, logger *slog.Logger, mod api.Module, packed uint64) (*LogRecord, bool) {
	data, err := ReadBytes(mod, packed)
	if err != nil {
		logger.ErrorContext(ctx, "wazero: failed to read log message from guest memory", "error", err)
		return nil, false
	}

	var rec LogRecord
	if err := Decode(data, &rec); err != nil {
		logger.ErrorContext(ctx, "wazero: failed to decode log message", "error", err)
		return nil, false
	}
	return &rec, true
}

// parseLogLevel converts a string level to slog.Level.
func parseLogLevel(logger *slog.Logger, levelStr string) slog.Level {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		logger.Warn("wazero: unknown log level from guest", "level", levelStr)
	}
	return level
}

// convertLogAttrs converts wire attributes to slog.Attr slice.
func convertLogAttrs(wireAttrs []LogAttr) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(wireAttrs)+1)
	for _, attr := range wireAttrs {
		attrs = append(attrs, convertSingleAttr(attr))
	}
	return attrs
}

// convertSingleAttr converts a single wire attribute to slog.Attr.
// Unknown types and unparsable values are kept as strings.
func convertSingleAttr(attr LogAttr) slog.Attr {
	switch attr.Type {
	case "string":
		return slog.String(attr.Key, attr.Value)
	case "int64":
		if v, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
			return slog.Int64(attr.Key, v)
		}
	case "bool":
		if v, err := strconv.ParseBool(attr.Value); err == nil {
			return slog.Bool(attr.Key, v)
		}
	case "float64":
		if v, err := strconv.ParseFloat(attr.Value, 64); err == nil {
			return slog.Float64(attr.Key, v)
		}
	case "duration":
		if v, err := time.ParseDuration(attr.Value); err == nil {
			return slog.Duration(attr.Key, v)
		}
	case "time":
		if v, err := time.Parse(time.RFC3339Nano, attr.Value); err == nil {
			return slog.Time(attr.Key, v)
		}
	case "error":
		return slog.Any(attr.Key, fmt.Errorf("%s", attr.Value))
	}
	return slog.String(attr.Key, attr.Value)
}
