// Package events carries the structured activity log emitted by payment
// flows: discrete (source, event, details) records delivered to pluggable
// sinks.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Source names the component a record is attributed to.
type Source string

const (
	SourceFrontend Source = "Frontend"
	SourceBackend  Source = "Backend"
	SourceContract Source = "Contract"
	SourceRelayer  Source = "Relayer"
	SourceWallet   Source = "Wallet"
	SourceStorage  Source = "Storage"
)

// Type is the severity of a record.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Details is free-form structured context attached to a record.
type Details map[string]interface{}

// Record is one entry of the activity log.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Event     string    `json:"event"`
	Details   Details   `json:"details,omitempty"`
	Type      Type      `json:"type"`
}

// NewRecord stamps a record with a fresh ID and the current time.
func NewRecord(source Source, event string, details Details, typ Type) Record {
	if typ == "" {
		typ = TypeInfo
	}
	return Record{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		Event:     event,
		Details:   details,
		Type:      typ,
	}
}

// Sink receives records. Emit must not block the caller on slow storage;
// implementations buffer or drop.
type Sink interface {
	Emit(Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Record)

func (f SinkFunc) Emit(r Record) { f(r) }

type discard struct{}

func (discard) Emit(Record) {}

// Discard drops every record.
var Discard Sink = discard{}

type multiSink []Sink

func (m multiSink) Emit(r Record) {
	for _, s := range m {
		s.Emit(r)
	}
}

// Multi fans a record out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Discard
	case 1:
		return out[0]
	}
	return out
}
