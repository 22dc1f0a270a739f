package messaging

import (
	"sort"
	"time"
)

// Conversation is the projection of every message exchanged with one peer.
// Messages are ordered newest first.
type Conversation struct {
	PeerID      Identity
	PeerName    string
	PeerEmail   string
	Messages    []Message
	Latest      Message
	UnreadCount int

	// Authoritative is set when the per-peer endpoint replaced the merged list.
	Authoritative bool
}

// Thread returns the messages oldest first, the order a chat view renders.
func (c Conversation) Thread() []Message {
	out := make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out[len(out)-1-i] = m
	}
	return out
}

// Aggregate groups a flat message list into conversations from the point of
// view of me. Records without both participants, or whose peer would be me,
// are dropped. The result is ordered by most recent activity.
func Aggregate(msgs []Message, me User) []Conversation {
	groups := make(map[Identity][]Message)
	for _, m := range dedupe(msgs) {
		peer, ok := peerFor(m, me.ID)
		if !ok {
			continue
		}
		groups[peer] = append(groups[peer], m)
	}

	out := make([]Conversation, 0, len(groups))
	for peer, list := range groups {
		out = append(out, buildConversation(peer, list, me))
	}
	sortConversations(out)
	return out
}

// Supersede replaces the conversation with peer by one built from the
// authoritative thread. An empty thread leaves convs untouched.
func Supersede(convs []Conversation, peer Identity, thread []Message, me User) []Conversation {
	var list []Message
	for _, m := range dedupe(thread) {
		if p, ok := peerFor(m, me.ID); ok && p == peer {
			list = append(list, m)
		}
	}
	if len(list) == 0 {
		return convs
	}

	conv := buildConversation(peer, list, me)
	conv.Authoritative = true

	out := make([]Conversation, 0, len(convs)+1)
	for _, c := range convs {
		if c.PeerID != peer {
			out = append(out, c)
		}
	}
	out = append(out, conv)
	sortConversations(out)
	return out
}

// UnreadTotal is the badge count: the sum of every conversation's unread count.
func UnreadTotal(convs []Conversation) int {
	total := 0
	for _, c := range convs {
		total += c.UnreadCount
	}
	return total
}

func peerFor(m Message, me Identity) (Identity, bool) {
	if m.SenderID == 0 || m.RecipientID == 0 || me == 0 {
		return 0, false
	}
	if m.SenderID != me && m.RecipientID != me {
		return 0, false
	}
	peer := m.PeerOf(me)
	if peer == 0 || peer == me {
		return 0, false
	}
	return peer, true
}

func buildConversation(peer Identity, list []Message, me User) Conversation {
	msgs := make([]Message, len(list))
	copy(msgs, list)
	newestFirst(msgs)

	c := Conversation{
		PeerID:   peer,
		Messages: msgs,
		Latest:   msgs[0],
	}
	for _, m := range msgs {
		if !m.Read && m.SenderID == peer {
			c.UnreadCount++
		}
	}
	c.PeerName, c.PeerEmail = resolvePeer(peer, msgs, me)
	return c
}

// resolvePeer reads the peer's denormalized name and email from whichever side
// of a record belongs to the peer. Values equal to the local user's own are
// ignored since some endpoints fill both sides with the caller's profile.
func resolvePeer(peer Identity, msgs []Message, me User) (name, email string) {
	for _, m := range msgs {
		var n, e string
		switch peer {
		case m.SenderID:
			n, e = m.SenderName, m.SenderEmail
		case m.RecipientID:
			n, e = m.RecipientName, m.RecipientEmail
		}
		if name == "" && n != "" && (me.DisplayName == "" || n != me.DisplayName) {
			name = n
		}
		if email == "" && e != "" && (me.Email == "" || e != me.Email) {
			email = e
		}
		if name != "" && email != "" {
			break
		}
	}
	return name, email
}

// dedupe keeps the first record per server id, and per client ref for
// records the server has not assigned an id yet.
func dedupe(msgs []Message) []Message {
	seenID := make(map[int64]struct{}, len(msgs))
	seenRef := make(map[string]struct{})
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != 0 {
			if _, ok := seenID[m.ID]; ok {
				continue
			}
			seenID[m.ID] = struct{}{}
		} else if m.ClientRef != "" {
			if _, ok := seenRef[m.ClientRef]; ok {
				continue
			}
		}
		if m.ClientRef != "" {
			seenRef[m.ClientRef] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}

func sortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i].Latest.SentAt, convs[j].Latest.SentAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return convs[i].PeerID < convs[j].PeerID
	})
}

// after returns a timestamp strictly later than every message in msgs and not
// earlier than now.
func after(now time.Time, msgs []Message) time.Time {
	t := now
	for _, m := range msgs {
		if !m.SentAt.Before(t) {
			t = m.SentAt.Add(time.Millisecond)
		}
	}
	return t
}
