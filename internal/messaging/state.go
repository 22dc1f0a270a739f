package messaging

import (
	"sync"
)

// OutgoingStatus is the lifecycle stage of a locally composed message.
type OutgoingStatus int

const (
	Pending OutgoingStatus = iota
	Confirmed
	Failed
)

func (s OutgoingStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outgoing tracks one message sent from this client. Pending and Confirmed
// entries are part of the projection; Failed entries are kept only so the
// caller can retry or dismiss them.
type Outgoing struct {
	ClientRef string
	PeerID    Identity
	Request   SendRequest
	Message   Message
	Status    OutgoingStatus
	Err       error
}

// State is everything the engine knows. It is replaced as a whole on every
// change and never mutated once stored.
type State struct {
	Received []Message
	Sent     []Message

	ThreadPeer Identity
	Thread     []Message

	Outgoing []Outgoing
	ReadIDs  map[int64]struct{}
	Deleted  map[int64]struct{}
	Drafts   map[Identity]string
}

func (s State) clone() State {
	out := State{
		Received:   append([]Message(nil), s.Received...),
		Sent:       append([]Message(nil), s.Sent...),
		ThreadPeer: s.ThreadPeer,
		Thread:     append([]Message(nil), s.Thread...),
		Outgoing:   append([]Outgoing(nil), s.Outgoing...),
		ReadIDs:    make(map[int64]struct{}, len(s.ReadIDs)),
		Deleted:    make(map[int64]struct{}, len(s.Deleted)),
		Drafts:     make(map[Identity]string, len(s.Drafts)),
	}
	for k := range s.ReadIDs {
		out.ReadIDs[k] = struct{}{}
	}
	for k := range s.Deleted {
		out.Deleted[k] = struct{}{}
	}
	for k, v := range s.Drafts {
		out.Drafts[k] = v
	}
	return out
}

// Snapshot is a read-only view of the state and its projection.
type Snapshot struct {
	State
	Me            User
	Conversations []Conversation
	Badge         int
	Version       uint64
}

// Conversation returns the projection for peer.
func (s Snapshot) Conversation(peer Identity) (Conversation, bool) {
	for _, c := range s.Conversations {
		if c.PeerID == peer {
			return c, true
		}
	}
	return Conversation{}, false
}

// Failed lists outgoing messages that were rolled back.
func (s Snapshot) Failed() []Outgoing {
	var out []Outgoing
	for _, o := range s.Outgoing {
		if o.Status == Failed {
			out = append(out, o)
		}
	}
	return out
}

// Draft returns the compose text kept for peer.
func (s Snapshot) Draft(peer Identity) string {
	return s.Drafts[peer]
}

// Cache owns the State. Every change goes through Update or ApplyIfLatest as
// a whole-state transformation; readers only ever see Snapshots.
type Cache struct {
	mu      sync.Mutex
	me      User
	snap    Snapshot
	issued  map[string]uint64
	changes chan struct{}
}

func NewCache(me User) *Cache {
	c := &Cache{
		me:      me,
		issued:  make(map[string]uint64),
		changes: make(chan struct{}, 1),
	}
	c.snap = project(State{}.clone(), me, 0)
	return c
}

func (c *Cache) Me() User { return c.me }

func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Changes signals after every applied transformation. Signals coalesce.
func (c *Cache) Changes() <-chan struct{} { return c.changes }

// Update applies fn to a private copy of the current state and stores the result.
func (c *Cache) Update(fn func(State) State) Snapshot {
	c.mu.Lock()
	next := fn(c.snap.State.clone())
	c.snap = project(next, c.me, c.snap.Version+1)
	snap := c.snap
	c.mu.Unlock()

	c.notify()
	return snap
}

// Issue hands out the next sequence number for key.
func (c *Cache) Issue(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[key]++
	return c.issued[key]
}

// ApplyIfLatest runs fn only when seq is still the newest number issued for
// key. It reports whether the transformation was applied.
func (c *Cache) ApplyIfLatest(key string, seq uint64, fn func(State) State) bool {
	return c.applyIfLatest(key, seq, func(s State) (State, bool) { return fn(s), true })
}

// applyIfLatest is ApplyIfLatest for transformations that may decline. A
// declined result leaves the snapshot, its version and Changes untouched.
func (c *Cache) applyIfLatest(key string, seq uint64, fn func(State) (State, bool)) bool {
	c.mu.Lock()
	if c.issued[key] != seq {
		c.mu.Unlock()
		return false
	}
	next, changed := fn(c.snap.State.clone())
	if !changed {
		c.mu.Unlock()
		return false
	}
	c.snap = project(next, c.me, c.snap.Version+1)
	c.mu.Unlock()

	c.notify()
	return true
}

func (c *Cache) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func project(s State, me User, version uint64) Snapshot {
	fetched := make([]Message, 0, len(s.Received)+len(s.Sent)+len(s.Outgoing))
	fetched = append(fetched, s.Received...)
	fetched = append(fetched, s.Sent...)
	fetched = append(fetched, visibleOutgoing(s.Outgoing, 0)...)

	convs := Aggregate(overlay(fetched, s), me)
	if s.ThreadPeer != 0 && len(s.Thread) > 0 {
		thread := append(append([]Message(nil), s.Thread...), visibleOutgoing(s.Outgoing, s.ThreadPeer)...)
		convs = Supersede(convs, s.ThreadPeer, overlay(thread, s), me)
	}

	return Snapshot{
		State:         s,
		Me:            me,
		Conversations: convs,
		Badge:         UnreadTotal(convs),
		Version:       version,
	}
}

// visibleOutgoing returns pending and confirmed messages, optionally limited
// to one peer.
func visibleOutgoing(outgoing []Outgoing, peer Identity) []Message {
	var out []Message
	for _, o := range outgoing {
		if o.Status == Failed {
			continue
		}
		if peer != 0 && o.PeerID != peer {
			continue
		}
		out = append(out, o.Message)
	}
	return out
}

// overlay applies local read marks and deletions on top of fetched records.
func overlay(msgs []Message, s State) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if _, gone := s.Deleted[m.ID]; gone && m.ID != 0 {
			continue
		}
		if _, read := s.ReadIDs[m.ID]; read && m.ID != 0 {
			m.Read = true
		}
		out = append(out, m)
	}
	return out
}

// reconcile drops local overlays the fetched data has caught up with. While a
// thread is open its peer's conversation is built from the thread, so an
// overlay is only dropped once the thread reflects it as well as the list.
func reconcile(s State) State {
	listed := byID(s.Received, s.Sent)
	var thread map[int64]Message
	if s.ThreadPeer != 0 && len(s.Thread) > 0 {
		thread = byID(s.Thread)
	}

	refs := make(map[string]struct{})
	for _, list := range [][]Message{s.Received, s.Sent, s.Thread} {
		for _, m := range list {
			if m.ClientRef != "" {
				refs[m.ClientRef] = struct{}{}
			}
		}
	}

	kept := s.Outgoing[:0:0]
	for _, o := range s.Outgoing {
		switch o.Status {
		case Confirmed:
			if _, ok := listed[o.Message.ID]; ok {
				if thread == nil || o.PeerID != s.ThreadPeer {
					continue
				}
				if _, ok := thread[o.Message.ID]; ok {
					continue
				}
			}
		case Failed:
			// the server stored it after all, e.g. the response was lost
			if _, ok := refs[o.ClientRef]; ok {
				continue
			}
		}
		kept = append(kept, o)
	}
	s.Outgoing = kept

	for id := range s.ReadIDs {
		if readEverywhere(id, listed, thread) {
			delete(s.ReadIDs, id)
		}
	}
	return s
}

// readEverywhere reports whether id was fetched at least once and every
// fetched copy is read.
func readEverywhere(id int64, sources ...map[int64]Message) bool {
	seen := false
	for _, src := range sources {
		m, ok := src[id]
		if !ok {
			continue
		}
		if !m.Read {
			return false
		}
		seen = true
	}
	return seen
}

func byID(lists ...[]Message) map[int64]Message {
	out := make(map[int64]Message)
	for _, list := range lists {
		for _, m := range list {
			if m.ID != 0 {
				out[m.ID] = m
			}
		}
	}
	return out
}
