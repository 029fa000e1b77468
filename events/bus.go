package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const (
	TopicGlobal = "status"

	TypeItem        = "item"
	TypeThreadReady = "thread_ready"
	TypeThread      = "thread"
	TypePlayer      = "player"
)

// Event là thông điệp tiến trình gửi tới client qua ws. Topic chọn room.
type Event struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func FeedTopic(threadID string) string     { return "feed:" + threadID }
func SessionTopic(sessionID string) string { return "session:" + sessionID }

func New(topic, typ string, v interface{}) (Event, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event %s: %w", typ, err)
	}
	return Event{Topic: topic, Type: typ, Data: raw}, nil
}

var ErrNoCallback = errors.New("onEvent callback required")

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	StartForwarder(ctx context.Context, onEvent func(Event)) error
	Close() error
}

// LocalBus giao event ngay trong process, dùng khi không có Redis
type LocalBus struct {
	mu       sync.RWMutex
	handlers []func(Event)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	handlers := append([]func(Event){}, b.handlers...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *LocalBus) StartForwarder(_ context.Context, onEvent func(Event)) error {
	if onEvent == nil {
		return ErrNoCallback
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, onEvent)
	b.mu.Unlock()
	return nil
}

func (b *LocalBus) Close() error { return nil }
