package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, ev Event) error {
	s.logger.InfoContext(ctx, "event",
		"kind", ev.Kind,
		"entity", ev.Entity,
		"id", ev.EntityID,
		"from", ev.From,
		"to", ev.To,
		"actor", ev.Actor,
		"at", ev.At,
	)
	return nil
}

// RedisSink appends events to a Redis stream.
type RedisSink struct {
	client redis.Cmdable
	stream string
}

func NewRedisSink(client redis.Cmdable, stream string) *RedisSink {
	if stream == "" {
		stream = "staffing:events"
	}
	return &RedisSink{client: client, stream: stream}
}

func (s *RedisSink) Deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"kind":   string(ev.Kind),
			"entity": ev.Entity,
			"id":     ev.EntityID,
			"event":  string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
