package events

import (
	"encoding/json"

	"github.com/decred/slog"
)

var log = slog.Disabled

// UseLogger sets the package logger used for sink diagnostics.
func UseLogger(logger slog.Logger) {
	log = logger
}

// LogSink writes records to a leveled logger.
type LogSink struct {
	Log slog.Logger
}

// NewLogSink returns a sink writing to logger.
func NewLogSink(logger slog.Logger) *LogSink {
	return &LogSink{Log: logger}
}

func (s *LogSink) Emit(r Record) {
	details := ""
	if len(r.Details) > 0 {
		if b, err := json.Marshal(r.Details); err == nil {
			details = " " + string(b)
		}
	}

	switch r.Type {
	case TypeError:
		s.Log.Errorf("[%s] %s%s", r.Source, r.Event, details)
	case TypeWarning:
		s.Log.Warnf("[%s] %s%s", r.Source, r.Event, details)
	default:
		s.Log.Infof("[%s] %s%s", r.Source, r.Event, details)
	}
}
