package server

import (
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// accessLogWriter receives httplog's JSON lines and logs them through zap,
// so request logs share the application logger's output, encoding and level.
type accessLogWriter struct {
	logger *zap.Logger
}

func (a accessLogWriter) Write(p []byte) (int, error) {
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		a.logger.Info(strings.TrimSpace(string(p)))
		return len(p), nil
	}

	msg, _ := entry["message"].(string)
	level, _ := entry["level"].(string)
	// zap stamps its own time
	for _, k := range []string{"message", "level", "time", "timestamp"} {
		delete(entry, k)
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, entry[k]))
	}

	switch level {
	case "trace", "debug":
		a.logger.Debug(msg, fields...)
	case "warn":
		a.logger.Warn(msg, fields...)
	case "error", "fatal", "panic":
		a.logger.Error(msg, fields...)
	default:
		a.logger.Info(msg, fields...)
	}
	return len(p), nil
}
