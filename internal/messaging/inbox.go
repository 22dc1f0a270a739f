package messaging

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/logger"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/metrics"
)

type Options struct {
	Poller   PollerConfig
	Log      *zap.Logger
	Metrics  *metrics.Sync
	Notifier Notifier
	// Scheduler replaces the default Poller when set.
	Scheduler Scheduler
}

// Inbox is the messaging engine of one signed in user. Background polling
// never reports to the Notifier; user initiated actions always do, except
// for endpoints the deployment does not support, which are only logged.
type Inbox struct {
	store   Store
	cache   *Cache
	sched   Scheduler
	sender  *Sender
	tracker *Tracker
	notify  Notifier
	log     *zap.Logger
}

func NewInbox(store Store, me User, opts Options) *Inbox {
	log := logger.OrNop(opts.Log).With(zap.Int64("user_id", int64(me.ID)))
	cache := NewCache(me)

	sched := opts.Scheduler
	if sched == nil {
		sched = NewPoller(store, cache, opts.Poller, log, opts.Metrics)
	}
	notify := opts.Notifier
	if notify == nil {
		notify = nopNotifier{}
	}

	return &Inbox{
		store:   store,
		cache:   cache,
		sched:   sched,
		sender:  NewSender(store, cache, log, opts.Metrics),
		tracker: NewTracker(store, cache, log),
		notify:  notify,
		log:     log,
	}
}

// Open starts polling the conversation list.
func (i *Inbox) Open(ctx context.Context) { i.sched.Start(ctx) }

// Close stops every timer and waits for in-flight polls to return.
func (i *Inbox) Close() { i.sched.Stop() }

func (i *Inbox) OpenThread(ctx context.Context, peer Identity) { i.sched.OpenThread(ctx, peer) }

func (i *Inbox) CloseThread() { i.sched.CloseThread() }

func (i *Inbox) SetVisible(visible bool) { i.sched.SetVisible(visible) }

func (i *Inbox) Snapshot() Snapshot { return i.cache.Snapshot() }

func (i *Inbox) Changes() <-chan struct{} { return i.cache.Changes() }

func (i *Inbox) Badge() int { return i.tracker.Badge() }

// Refresh polls immediately. Failures are surfaced since the user asked.
func (i *Inbox) Refresh(ctx context.Context) error {
	err := i.sched.Refresh(ctx)
	i.surface("Refresh failed", err)
	return err
}

func (i *Inbox) SetDraft(peer Identity, text string) { i.sender.SetDraft(peer, text) }

func (i *Inbox) Draft(peer Identity) string { return i.sender.Draft(peer) }

func (i *Inbox) Send(ctx context.Context, peer Identity, body string, opts ...SendOption) (Message, error) {
	msg, err := i.sender.Send(ctx, peer, body, opts...)
	if err != nil {
		i.surface("Message not sent", err)
		return Message{}, err
	}
	i.notify.Success("Message sent")
	return msg, nil
}

func (i *Inbox) Retry(ctx context.Context, clientRef string) (Message, error) {
	msg, err := i.sender.Retry(ctx, clientRef)
	if err != nil {
		i.surface("Message not sent", err)
		return Message{}, err
	}
	i.notify.Success("Message sent")
	return msg, nil
}

func (i *Inbox) Dismiss(clientRef string) { i.sender.Dismiss(clientRef) }

// MarkRead is best effort and only logs failures.
func (i *Inbox) MarkRead(ctx context.Context, id int64) error {
	return i.tracker.MarkRead(ctx, id)
}

func (i *Inbox) MarkConversationRead(ctx context.Context, peer Identity) (int, error) {
	return i.tracker.MarkConversationRead(ctx, peer)
}

func (i *Inbox) MarkAllRead(ctx context.Context) (int, error) {
	n, err := i.tracker.MarkAllRead(ctx)
	if err != nil {
		i.surface("Some messages could not be marked read", err)
		return n, err
	}
	i.notify.Success(fmt.Sprintf("%d messages marked read", n))
	return n, nil
}

// Receive merges one inbound message ahead of the next poll.
func (i *Inbox) Receive(msg Message) bool { return i.tracker.Receive(msg) }

// Delete removes a message on the server and hides it locally once the server
// confirmed.
func (i *Inbox) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		err := validationError("invalid message id %d", id)
		i.surface("Message not deleted", err)
		return err
	}
	if err := i.store.Delete(ctx, id); err != nil {
		err = fmt.Errorf("delete message %d: %w", id, err)
		i.surface("Message not deleted", err)
		return err
	}

	i.cache.Update(func(s State) State {
		s.Deleted[id] = struct{}{}
		delete(s.ReadIDs, id)
		return s
	})
	i.notify.Success("Message deleted")
	return nil
}

// CountUnread asks the server for its unread count. The badge shown to the
// user is always Badge; this is for diagnostics.
func (i *Inbox) CountUnread(ctx context.Context) (int, error) {
	return i.store.CountUnread(ctx)
}

func (i *Inbox) surface(msg string, err error) {
	if err == nil {
		return
	}
	if Quiet(err) {
		i.log.Warn(msg, zap.Error(err))
		return
	}
	i.log.Info(msg, zap.Error(err))
	i.notify.Failure(msg, err)
}
