package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeStore is an in-memory Store. Hooks override the default behaviour of
// single calls.
type fakeStore struct {
	mu       sync.Mutex
	received []Message
	sent     []Message
	threads  map[Identity][]Message
	nextID   int64
	now      time.Time

	sendErr     error
	markReadErr error
	fetchErr    error

	onFetchReceived     func(ctx context.Context) ([]Message, error)
	onFetchConversation func(ctx context.Context, peer Identity) ([]Message, error)

	sendCalls     atomic.Int32
	markReadCalls atomic.Int32
	receivedCalls atomic.Int32
	threadCalls   atomic.Int32
	markedIDs     []int64
	deletedIDs    []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threads: make(map[Identity][]Message),
		nextID:  1000,
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) FetchReceived(ctx context.Context) ([]Message, error) {
	f.receivedCalls.Add(1)
	if f.onFetchReceived != nil {
		return f.onFetchReceived(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]Message(nil), f.received...), nil
}

func (f *fakeStore) FetchSent(ctx context.Context) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]Message(nil), f.sent...), nil
}

func (f *fakeStore) FetchConversation(ctx context.Context, peer Identity) ([]Message, error) {
	f.threadCalls.Add(1)
	if f.onFetchConversation != nil {
		return f.onFetchConversation(ctx, peer)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]Message(nil), f.threads[peer]...), nil
}

func (f *fakeStore) Send(ctx context.Context, req SendRequest) (Message, error) {
	f.sendCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return Message{}, f.sendErr
	}
	f.nextID++
	f.now = f.now.Add(time.Minute)
	msg := Message{
		ID:          f.nextID,
		ClientRef:   req.ClientRef,
		RecipientID: req.PeerID,
		Subject:     req.Subject,
		Body:        req.Body,
		ProductID:   req.ProductID,
		SentAt:      f.now,
	}
	return msg, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, id int64) error {
	f.markReadCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedIDs = append(f.markedIDs, id)
	return f.markReadErr
}

func (f *fakeStore) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func (f *fakeStore) CountUnread(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.received {
		if !m.Read {
			n++
		}
	}
	return n, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (r *recordingNotifier) Success(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, msg)
}

func (r *recordingNotifier) Failure(msg string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, msg)
}

var (
	alice = User{ID: 1, DisplayName: "Alice", Email: "alice@pasartani.id", Role: "buyer"}
	t0    = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func msgFrom(id int64, from, to Identity, body string, sent time.Time, read bool) Message {
	return Message{ID: id, SenderID: from, RecipientID: to, Body: body, SentAt: sent, Read: read}
}
