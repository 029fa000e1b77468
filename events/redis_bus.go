package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vnkhanh/edu-reels-backend/logger"
)

const DefaultRedisChannel = "reels-progress"

var ErrBusClosed = errors.New("event bus closed")

// envelope là dạng event trên Redis; Origin đánh dấu replica đã publish
type envelope struct {
	Origin string `json:"origin"`
	Event
}

// RedisBus chia sẻ tiến trình giữa các replica qua một channel pub/sub.
// Event do chính replica publish được giao local ngay, bản vọng lại từ Redis bị bỏ.
type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string

	mu       sync.RWMutex
	handlers []func(Event)
	sub      *goredis.PubSub
	closed   bool
}

// NewRedisBus kết nối Redis và ping trước khi trả về
func NewRedisBus(ctx context.Context, log *logger.Logger, addr, channel string) (*RedisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisBusWithClient(log, rdb, channel), nil
}

func NewRedisBusWithClient(log *logger.Logger, rdb *goredis.Client, channel string) *RedisBus {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultRedisChannel
	}
	origin := uuid.NewString()
	return &RedisBus{
		log:     log.With("service", "RedisEventBus", "channel", channel, "origin", origin),
		rdb:     rdb,
		channel: channel,
		origin:  origin,
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	handlers := append([]func(Event){}, b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	raw, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Topic, err)
	}
	return nil
}

// StartForwarder thêm handler; lần gọi đầu mở subscription dùng chung cho mọi handler
func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(Event)) error {
	if onEvent == nil {
		return ErrNoCallback
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if b.sub == nil {
		sub := b.rdb.Subscribe(ctx, b.channel)
		// chờ subscribe xong thật sự
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
		}
		b.sub = sub
		go b.forward(ctx, sub)
	}
	b.handlers = append(b.handlers, onEvent)
	return nil
}

func (b *RedisBus) forward(ctx context.Context, sub *goredis.PubSub) {
	defer b.detach(sub)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil || env.Topic == "" {
				b.log.Warn("bad redis event payload", "error", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.mu.RLock()
			handlers := append([]func(Event){}, b.handlers...)
			b.mu.RUnlock()
			for _, h := range handlers {
				h(env.Event)
			}
		}
	}
}

// detach đóng subscription khi forwarder dừng; lần StartForwarder sau sẽ mở lại
func (b *RedisBus) detach(sub *goredis.PubSub) {
	b.mu.Lock()
	if b.sub == sub {
		b.sub = nil
		b.handlers = nil
	}
	b.mu.Unlock()
	_ = sub.Close()
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	sub := b.sub
	b.sub = nil
	b.handlers = nil
	b.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	return b.rdb.Close()
}
