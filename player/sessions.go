package player

import (
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vnkhanh/edu-reels-backend/metrics"
)

const (
	DefaultSessionSize = 1024
	DefaultSessionTTL  = 2 * time.Hour
)

// Session là một player gắn với một thread
type Session struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`

	*Player `json:"-"`
}

// SessionStore giữ session trong LRU có hạn; session bị đẩy ra thì player bị đóng
type SessionStore struct {
	cache   *expirable.LRU[string, *Session]
	clock   clock.Clock
	opts    Options
	publish func(sessionID string, ev Event)
}

func NewSessionStore(size int, ttl time.Duration, clk clock.Clock, opts Options, publish func(string, Event)) *SessionStore {
	if size <= 0 {
		size = DefaultSessionSize
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	onEvict := func(_ string, s *Session) {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
	return &SessionStore{
		cache:   expirable.NewLRU[string, *Session](size, onEvict, ttl),
		clock:   clk,
		opts:    opts,
		publish: publish,
	}
}

func (s *SessionStore) Create(threadID string, units []Unit) (*Session, error) {
	p, err := New(units, s.clock, s.opts)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		CreatedAt: s.clock.Now(),
		Player:    p,
	}
	if s.publish != nil {
		id := sess.ID
		p.SetListener(func(ev Event) { s.publish(id, ev) })
	}
	s.cache.Add(sess.ID, sess)
	metrics.ActiveSessions.Inc()
	p.Start()
	return sess, nil
}

func (s *SessionStore) Get(id string) (*Session, bool) {
	return s.cache.Get(id)
}

func (s *SessionStore) Delete(id string) bool {
	return s.cache.Remove(id)
}

func (s *SessionStore) Len() int {
	return s.cache.Len()
}

// Close đóng mọi session
func (s *SessionStore) Close() {
	s.cache.Purge()
}
