// Package otp hands one-time codes to the outbound delivery channel. It
// only enqueues; delivery to the phone happens elsewhere.
package otp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list the SMS gateway consumes.
const DefaultQueue = "otp:outbound"

type message struct {
	Phone string    `json:"phone"`
	Code  string    `json:"code"`
	At    time.Time `json:"at"`
}

// RedisQueue pushes codes onto a Redis list.
type RedisQueue struct {
	client redis.Cmdable
	queue  string
}

func NewRedisQueue(client redis.Cmdable, queue string) *RedisQueue {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisQueue{client: client, queue: queue}
}

func (q *RedisQueue) Send(ctx context.Context, phone, code string) error {
	b, err := json.Marshal(message{Phone: phone, Code: code, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queue, b).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.queue, err)
	}
	return nil
}

// Memory records sent codes.
type Memory struct {
	mu    sync.Mutex
	codes map[string][]string
	err   error
}

func NewMemory() *Memory {
	return &Memory{codes: map[string][]string{}}
}

func (m *Memory) Send(_ context.Context, phone, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes[phone] = append(m.codes[phone], code)
	return nil
}

// Last returns the most recent code sent to phone.
func (m *Memory) Last(phone string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.codes[phone]
	if len(c) == 0 {
		return "", false
	}
	return c[len(c)-1], true
}

// SetErr changes the failure returned by subsequent sends.
func (m *Memory) SetErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
