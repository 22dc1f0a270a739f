package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolls = PollerConfig{
	ThreadInterval: 5 * time.Millisecond,
	ListInterval:   20 * time.Millisecond,
}

func TestPoller_ListAndThread(t *testing.T) {
	store := newFakeStore()
	store.received = []Message{msgFrom(1, 2, 1, "page", at(0), false)}
	store.threads[2] = []Message{
		msgFrom(1, 2, 1, "page", at(0), false),
		msgFrom(2, 1, 2, "only in thread", at(1), false),
	}
	cache := NewCache(alice)
	p := NewPoller(store, cache, fastPolls, nil, nil)

	p.Start(context.Background())
	p.OpenThread(context.Background(), 2)
	defer p.Stop()

	require.Eventually(t, func() bool {
		conv, ok := cache.Snapshot().Conversation(2)
		return ok && conv.Authoritative && len(conv.Messages) == 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, p.Polling())
}

func TestPoller_StopCancelsTimers(t *testing.T) {
	store := newFakeStore()
	p := NewPoller(store, NewCache(alice), fastPolls, nil, nil)

	p.Start(context.Background())
	p.OpenThread(context.Background(), 2)
	require.Eventually(t, func() bool { return store.threadCalls.Load() >= 2 }, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Polling())

	calls := store.threadCalls.Load() + store.receivedCalls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, store.threadCalls.Load()+store.receivedCalls.Load())
}

func TestPoller_HiddenViewIsIdle(t *testing.T) {
	p := NewPoller(newFakeStore(), NewCache(alice), fastPolls, nil, nil)
	p.Start(context.Background())
	defer p.Stop()

	p.SetVisible(false)
	assert.False(t, p.Polling())

	p.SetVisible(true)
	assert.True(t, p.Polling())
}

func TestPoller_SkipsTickWhilePollInFlight(t *testing.T) {
	store := newFakeStore()
	release := make(chan struct{})
	store.onFetchReceived = func(ctx context.Context) ([]Message, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	}
	p := NewPoller(store, NewCache(alice), PollerConfig{ThreadInterval: time.Millisecond, ListInterval: time.Millisecond}, nil, nil)

	p.Start(context.Background())
	p.OpenThread(context.Background(), 2)
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, int32(1), store.receivedCalls.Load())

	close(release)
	p.Stop()
}

func TestPoller_SwallowsPollErrors(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = &APIError{Op: "fetch received", Kind: ErrNetwork, Err: errors.New("connection reset")}
	notify := &recordingNotifier{}
	inbox := NewInbox(store, alice, Options{Poller: fastPolls, Notifier: notify})

	inbox.Open(context.Background())
	inbox.OpenThread(context.Background(), 2)
	require.Eventually(t, func() bool { return store.threadCalls.Load() >= 3 }, time.Second, time.Millisecond)
	inbox.Close()

	assert.Empty(t, notify.failures)
	assert.Empty(t, inbox.Snapshot().Conversations)
}

func TestPoller_PeerSwitchIgnoresPreviousThread(t *testing.T) {
	store := newFakeStore()
	late := make(chan struct{})
	started := make(chan struct{}, 1)
	store.onFetchConversation = func(ctx context.Context, peer Identity) ([]Message, error) {
		if peer == 2 {
			select {
			case started <- struct{}{}:
			default:
			}
			// ignores cancellation like a slow transport would
			<-late
			return []Message{msgFrom(20, 2, 1, "from the old peer", at(0), false)}, nil
		}
		return []Message{msgFrom(30, 3, 1, "from the new peer", at(1), false)}, nil
	}
	cache := NewCache(alice)
	p := NewPoller(store, cache, fastPolls, nil, nil)
	p.Start(context.Background())

	p.OpenThread(context.Background(), 2)
	<-started
	p.OpenThread(context.Background(), 3)

	require.Eventually(t, func() bool {
		conv, ok := cache.Snapshot().Conversation(3)
		return ok && conv.Authoritative
	}, time.Second, time.Millisecond)

	close(late)
	p.Stop()

	snap := cache.Snapshot()
	assert.Equal(t, Identity(3), snap.ThreadPeer)
	_, stale := snap.Conversation(2)
	assert.False(t, stale, "late response for the previous peer was applied")
}

func TestPoller_CloseThread(t *testing.T) {
	store := newFakeStore()
	store.threads[2] = []Message{msgFrom(1, 2, 1, "x", at(0), false)}
	cache := NewCache(alice)
	p := NewPoller(store, cache, fastPolls, nil, nil)
	p.Start(context.Background())
	defer p.Stop()

	p.OpenThread(context.Background(), 2)
	require.Eventually(t, func() bool { return len(cache.Snapshot().Thread) == 1 }, time.Second, time.Millisecond)

	p.CloseThread()
	snap := cache.Snapshot()
	assert.Zero(t, snap.ThreadPeer)
	assert.Empty(t, snap.Thread)
}

func TestPoller_RefreshIsRateLimited(t *testing.T) {
	store := newFakeStore()
	p := NewPoller(store, NewCache(alice), PollerConfig{RefreshPerMinute: 1}, nil, nil)

	require.NoError(t, p.Refresh(context.Background()))
	require.NoError(t, p.Refresh(context.Background()))

	assert.Equal(t, int32(1), store.receivedCalls.Load())
}

func TestPoller_RefreshSurfacesErrors(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = &APIError{Op: "fetch received", Kind: ErrServer, Status: 500}
	p := NewPoller(store, NewCache(alice), PollerConfig{}, nil, nil)

	err := p.Refresh(context.Background())

	assert.ErrorIs(t, err, ErrServer)
}

func TestPoller_HiddenThreadOnlyPollsOnRefresh(t *testing.T) {
	store := newFakeStore()
	store.threads[2] = []Message{msgFrom(1, 2, 1, "x", at(0), false)}
	cache := NewCache(alice)
	p := NewPoller(store, cache, fastPolls, nil, nil)
	defer p.Stop()

	p.SetVisible(false)
	p.OpenThread(context.Background(), 2)
	require.NoError(t, p.Refresh(context.Background()))
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(1), store.threadCalls.Load())
	assert.Equal(t, int32(1), store.receivedCalls.Load())
	assert.Len(t, cache.Snapshot().Thread, 1)

	p.SetVisible(true)
	require.Eventually(t, func() bool { return store.threadCalls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestPoller_ThreadResponseForClosedPeerIsSilent(t *testing.T) {
	store := newFakeStore()
	store.threads[2] = []Message{msgFrom(1, 2, 1, "late", at(0), false)}
	cache := NewCache(alice)
	cache.Update(func(s State) State {
		s.ThreadPeer = 3
		return s
	})
	<-cache.Changes()
	version := cache.Snapshot().Version
	p := NewPoller(store, cache, fastPolls, nil, nil)

	require.NoError(t, p.pollThread(context.Background(), 2))

	assert.Equal(t, version, cache.Snapshot().Version)
	assert.Empty(t, cache.Snapshot().Thread)
	select {
	case <-cache.Changes():
		t.Fatal("unexpected change signal")
	default:
	}
}
