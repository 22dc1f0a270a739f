package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/logger"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/metrics"
)

const (
	defaultSubject = "Inquiry"
	replyPrefix    = "Re: "
)

type SendOption func(*SendRequest)

func WithSubject(subject string) SendOption {
	return func(r *SendRequest) { r.Subject = strings.TrimSpace(subject) }
}

func WithProduct(id int64) SendOption {
	return func(r *SendRequest) {
		if id > 0 {
			r.ProductID = &id
		}
	}
}

// Sender runs the optimistic lifecycle of outgoing messages: the message is
// shown as pending right away, then confirmed with the server record or
// rolled back to failed with the compose text kept.
type Sender struct {
	store   Store
	cache   *Cache
	log     *zap.Logger
	metrics *metrics.Sync

	now    func() time.Time
	newRef func() string
}

func NewSender(store Store, cache *Cache, log *zap.Logger, m *metrics.Sync) *Sender {
	return &Sender{
		store:   store,
		cache:   cache,
		log:     logger.OrNop(log),
		metrics: m,
		now:     time.Now,
		newRef:  uuid.NewString,
	}
}

// SetDraft stores the compose field content for peer.
func (s *Sender) SetDraft(peer Identity, text string) {
	s.cache.Update(func(st State) State {
		if text == "" {
			delete(st.Drafts, peer)
		} else {
			st.Drafts[peer] = text
		}
		return st
	})
}

func (s *Sender) Draft(peer Identity) string {
	return s.cache.Snapshot().Draft(peer)
}

// Send validates and submits body to peer. Validation failures return
// ErrValidation without touching the network. Transport and server failures
// roll the pending message back and keep body as the draft for a retry.
func (s *Sender) Send(ctx context.Context, peer Identity, body string, opts ...SendOption) (Message, error) {
	req := SendRequest{PeerID: peer, Body: strings.TrimSpace(body)}
	for _, opt := range opts {
		opt(&req)
	}

	if err := s.validate(req); err != nil {
		s.metrics.Send("rejected")
		return Message{}, err
	}

	snap := s.cache.Snapshot()
	conv, _ := snap.Conversation(peer)
	if req.Subject == "" {
		req.Subject = replySubject(conv)
	}
	req.ClientRef = s.newRef()

	me := s.cache.Me()
	pending := Message{
		ClientRef:      req.ClientRef,
		SenderID:       me.ID,
		RecipientID:    peer,
		Subject:        req.Subject,
		Body:           req.Body,
		ProductID:      req.ProductID,
		SentAt:         after(s.now(), conv.Messages),
		Read:           false,
		SenderName:     me.DisplayName,
		SenderEmail:    me.Email,
		RecipientName:  conv.PeerName,
		RecipientEmail: conv.PeerEmail,
	}

	s.cache.Update(func(st State) State {
		st.Drafts[peer] = body
		st.Outgoing = append(st.Outgoing, Outgoing{
			ClientRef: req.ClientRef,
			PeerID:    peer,
			Request:   req,
			Message:   pending,
			Status:    Pending,
		})
		return st
	})

	return s.submit(ctx, req, pending, body)
}

// Retry resubmits a failed message with its original client ref so the
// server can deduplicate it.
func (s *Sender) Retry(ctx context.Context, clientRef string) (Message, error) {
	snap := s.cache.Snapshot()
	var out Outgoing
	for _, o := range snap.Failed() {
		if o.ClientRef == clientRef {
			out = o
		}
	}
	if out.ClientRef == "" {
		return Message{}, validationError("no failed message %q", clientRef)
	}

	conv, _ := snap.Conversation(out.PeerID)
	out.Message.SentAt = after(s.now(), conv.Messages)
	s.cache.Update(func(st State) State {
		st.Outgoing = transition(st.Outgoing, clientRef, func(o Outgoing) Outgoing {
			o.Status = Pending
			o.Err = nil
			o.Message = out.Message
			return o
		})
		return st
	})
	return s.submit(ctx, out.Request, out.Message, snap.Draft(out.PeerID))
}

// Dismiss drops a failed message from the outgoing list.
func (s *Sender) Dismiss(clientRef string) {
	s.cache.Update(func(st State) State {
		kept := st.Outgoing[:0]
		for _, o := range st.Outgoing {
			if o.ClientRef == clientRef && o.Status == Failed {
				continue
			}
			kept = append(kept, o)
		}
		st.Outgoing = kept
		return st
	})
}

func (s *Sender) validate(req SendRequest) error {
	me := s.cache.Me()
	switch {
	case req.PeerID == 0:
		return validationError("no recipient selected")
	case req.PeerID == me.ID:
		return validationError("cannot send a message to yourself")
	case req.Body == "":
		return validationError("message body is empty")
	}
	return nil
}

func (s *Sender) submit(ctx context.Context, req SendRequest, pending Message, draft string) (Message, error) {
	msg, err := s.store.Send(ctx, req)
	if err != nil {
		s.cache.Update(func(st State) State {
			st.Outgoing = transition(st.Outgoing, req.ClientRef, func(o Outgoing) Outgoing {
				o.Status = Failed
				o.Err = err
				return o
			})
			if draft != "" {
				st.Drafts[req.PeerID] = draft
			}
			return st
		})
		s.metrics.Send("failed")
		s.log.Info("message send failed",
			zap.Int64("peer", int64(req.PeerID)),
			zap.String("client_ref", req.ClientRef),
			zap.Error(err))
		return Message{}, fmt.Errorf("send message: %w", err)
	}

	msg = fillFromPending(msg, pending)
	s.cache.Update(func(st State) State {
		st.Outgoing = transition(st.Outgoing, req.ClientRef, func(o Outgoing) Outgoing {
			o.Status = Confirmed
			o.Err = nil
			o.Message = msg
			return o
		})
		if st.Drafts[req.PeerID] == draft {
			delete(st.Drafts, req.PeerID)
		}
		return st
	})
	s.metrics.Send("confirmed")
	return msg, nil
}

func transition(list []Outgoing, ref string, fn func(Outgoing) Outgoing) []Outgoing {
	for i, o := range list {
		if o.ClientRef == ref {
			list[i] = fn(o)
		}
	}
	return list
}

// fillFromPending completes a sparse server response with what was sent.
func fillFromPending(msg, pending Message) Message {
	if msg.ClientRef == "" {
		msg.ClientRef = pending.ClientRef
	}
	if msg.SenderID == 0 {
		msg.SenderID = pending.SenderID
	}
	if msg.RecipientID == 0 {
		msg.RecipientID = pending.RecipientID
	}
	if msg.Body == "" {
		msg.Body = pending.Body
	}
	if msg.Subject == "" {
		msg.Subject = pending.Subject
	}
	if msg.ProductID == nil {
		msg.ProductID = pending.ProductID
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = pending.SentAt
	}
	if msg.SenderName == "" {
		msg.SenderName, msg.SenderEmail = pending.SenderName, pending.SenderEmail
	}
	if msg.RecipientName == "" {
		msg.RecipientName, msg.RecipientEmail = pending.RecipientName, pending.RecipientEmail
	}
	return msg
}

func replySubject(conv Conversation) string {
	for _, m := range conv.Messages {
		if m.Subject == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(m.Subject), strings.ToLower(replyPrefix)) {
			return m.Subject
		}
		return replyPrefix + m.Subject
	}
	return defaultSubject
}
