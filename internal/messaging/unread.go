package messaging

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/logger"
)

// Tracker owns read state. Local marks are applied before the server call
// and are not rolled back when the call fails: read receipts are best effort.
type Tracker struct {
	store Store
	cache *Cache
	log   *zap.Logger
}

func NewTracker(store Store, cache *Cache, log *zap.Logger) *Tracker {
	return &Tracker{store: store, cache: cache, log: logger.OrNop(log)}
}

// Badge is the global unread count.
func (t *Tracker) Badge() int {
	return t.cache.Snapshot().Badge
}

// Unread returns the unread count of the conversation with peer.
func (t *Tracker) Unread(peer Identity) int {
	conv, _ := t.cache.Snapshot().Conversation(peer)
	return conv.UnreadCount
}

// MarkRead marks one received message read. Marking an already read message
// is a no-op.
func (t *Tracker) MarkRead(ctx context.Context, id int64) error {
	snap := t.cache.Snapshot()
	msg, found := findMessage(snap.Conversations, id)
	switch {
	case !found:
		return fmt.Errorf("mark read %d: %w", id, ErrNotFound)
	case msg.SenderID == snap.Me.ID:
		return validationError("message %d was sent by you", id)
	case msg.Read:
		return nil
	}

	_, err := t.mark(ctx, []int64{id})
	return err
}

// MarkConversationRead marks every unread message from peer and returns how
// many were transitioned.
func (t *Tracker) MarkConversationRead(ctx context.Context, peer Identity) (int, error) {
	conv, ok := t.cache.Snapshot().Conversation(peer)
	if !ok {
		return 0, nil
	}
	return t.mark(ctx, unreadIDs(conv))
}

// MarkAllRead marks every unread message in every conversation.
func (t *Tracker) MarkAllRead(ctx context.Context) (int, error) {
	var ids []int64
	for _, c := range t.cache.Snapshot().Conversations {
		ids = append(ids, unreadIDs(c)...)
	}
	return t.mark(ctx, ids)
}

// Receive merges a single inbound message without waiting for the next poll.
// It reports whether the message was new.
func (t *Tracker) Receive(msg Message) bool {
	me := t.cache.Me()
	if msg.ID == 0 || msg.RecipientID != me.ID {
		return false
	}
	if _, ok := peerFor(msg, me.ID); !ok {
		return false
	}

	added := false
	t.cache.Update(func(s State) State {
		for _, m := range s.Received {
			if m.ID == msg.ID {
				return s
			}
		}
		s.Received = append(s.Received, msg)
		added = true
		return s
	})
	return added
}

func (t *Tracker) mark(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	t.cache.Update(func(s State) State {
		for _, id := range ids {
			s.ReadIDs[id] = struct{}{}
		}
		return s
	})

	var errs error
	for _, id := range ids {
		if err := t.store.MarkRead(ctx, id); err != nil {
			t.log.Warn("mark read failed, keeping local state", zap.Int64("message_id", id), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("mark read %d: %w", id, err))
		}
	}
	return len(ids), errs
}

func unreadIDs(c Conversation) []int64 {
	var ids []int64
	for _, m := range c.Messages {
		if !m.Read && m.SenderID == c.PeerID && m.ID != 0 {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func findMessage(convs []Conversation, id int64) (Message, bool) {
	for _, c := range convs {
		for _, m := range c.Messages {
			if m.ID == id {
				return m, true
			}
		}
	}
	return Message{}, false
}
