package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream key records are appended to.
const DefaultStream = "arena:events"

// RedisSinkOptions configures a RedisSink.
type RedisSinkOptions struct {
	// Stream is the stream key. Defaults to DefaultStream.
	Stream string
	// MaxLen approximately caps the stream length. Zero disables trimming.
	MaxLen int64
	// Buffer is the number of records queued before Emit starts dropping.
	Buffer int
	// WriteTimeout bounds each XADD. Defaults to 2s.
	WriteTimeout time.Duration
}

// RedisSink appends records to a Redis stream from a background goroutine.
type RedisSink struct {
	client redis.Cmdable
	opts   RedisSinkOptions

	mu      sync.RWMutex
	closed  bool
	queue   chan Record
	done    chan struct{}
	dropped atomic.Uint64
}

// NewRedisSink starts the writer goroutine. Call Close to flush it.
func NewRedisSink(client redis.Cmdable, opts RedisSinkOptions) *RedisSink {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 128
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}

	s := &RedisSink{
		client: client,
		opts:   opts,
		queue:  make(chan Record, opts.Buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *RedisSink) Emit(r Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- r:
	default:
		s.dropped.Add(1)
		log.Warnf("Event queue full, dropping %q", r.Event)
	}
}

// Dropped reports records discarded because the queue was full.
func (s *RedisSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting records and waits for queued ones to be written.
func (s *RedisSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RedisSink) run() {
	defer close(s.done)
	for r := range s.queue {
		if err := s.write(r); err != nil {
			log.Errorf("Failed to append event to %s: %v", s.opts.Stream, err)
		}
	}
}

func (s *RedisSink) write(r Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()

	values, err := recordValues(r)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.opts.Stream,
		Values: values,
	}
	if s.opts.MaxLen > 0 {
		args.MaxLen = s.opts.MaxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

func recordValues(r Record) (map[string]interface{}, error) {
	details := ""
	if len(r.Details) > 0 {
		b, err := json.Marshal(r.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal details: %w", err)
		}
		details = string(b)
	}
	return map[string]interface{}{
		"id":        r.ID.String(),
		"timestamp": r.Timestamp.Format(time.RFC3339Nano),
		"source":    string(r.Source),
		"event":     r.Event,
		"type":      string(r.Type),
		"details":   details,
	}, nil
}

// ReadStream returns up to count of the newest records in stream, newest
// first.
func ReadStream(ctx context.Context, client redis.Cmdable, stream string, count int64) ([]Record, error) {
	if stream == "" {
		stream = DefaultStream
	}
	msgs, err := client.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", stream, err)
	}

	out := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		r, err := parseRecord(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", msg.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRecord(values map[string]interface{}) (Record, error) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}

	var r Record
	id, err := uuid.Parse(str("id"))
	if err != nil {
		return r, fmt.Errorf("invalid id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, str("timestamp"))
	if err != nil {
		return r, fmt.Errorf("invalid timestamp: %w", err)
	}
	r.ID = id
	r.Timestamp = ts
	r.Source = Source(str("source"))
	r.Event = str("event")
	r.Type = Type(str("type"))
	if d := str("details"); d != "" {
		if err := json.Unmarshal([]byte(d), &r.Details); err != nil {
			return r, fmt.Errorf("invalid details: %w", err)
		}
	}
	return r, nil
}
