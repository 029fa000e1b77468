package player

import (
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (p *published) publish(id string, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]Event{}
	}
	p.events[id] = append(p.events[id], ev)
}

func (p *published) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[id])
}

func TestSessionStoreLifecycle(t *testing.T) {
	mock := clock.NewMock()
	pub := &published{}
	store := NewSessionStore(4, time.Hour, mock, DefaultOptions(), pub.publish)
	defer store.Close()

	sess, err := store.Create("thread-1", makeUnits(2, true))
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "thread-1", sess.ThreadID)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, pub.count(sess.ID), "start announces section 0")

	got, ok := store.Get(sess.ID)
	require.True(t, ok)
	got.GoTo(1, true)
	assert.Equal(t, 1, sess.Current())

	assert.True(t, store.Delete(sess.ID))
	assert.False(t, store.Delete(sess.ID))
	_, ok = store.Get(sess.ID)
	assert.False(t, ok)

	// player đã đóng sau khi bị xóa
	assert.Equal(t, RejectClosed, sess.Answer(0, 2).Reason)
}

func TestSessionStoreRejectsBadFeed(t *testing.T) {
	store := NewSessionStore(0, 0, clock.NewMock(), DefaultOptions(), nil)
	defer store.Close()

	_, err := store.Create("t", nil)
	assert.ErrorIs(t, err, ErrEmptyFeed)
	assert.Equal(t, 0, store.Len())
}

func TestSessionStoreEvictsOldest(t *testing.T) {
	store := NewSessionStore(1, time.Hour, clock.NewMock(), DefaultOptions(), nil)
	defer store.Close()

	first, err := store.Create("t", makeUnits(1, true))
	require.NoError(t, err)
	_, err = store.Create("t", makeUnits(1, true))
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get(first.ID)
	assert.False(t, ok)
	assert.Equal(t, RejectClosed, first.Answer(0, 2).Reason)
}
