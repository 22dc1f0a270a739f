package messaging

import (
	"context"
	"sort"
	"time"
)

// Identity is a user id as issued by the marketplace API. Zero means unknown.
type Identity int64

// User is the local session identity.
type User struct {
	ID          Identity `json:"id"`
	DisplayName string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
}

// Message is the canonical record every endpoint is normalized into.
type Message struct {
	ID          int64
	ClientRef   string
	SenderID    Identity
	RecipientID Identity
	Subject     string
	Body        string
	ProductID   *int64
	SentAt      time.Time
	Read        bool

	SenderName     string
	SenderEmail    string
	RecipientName  string
	RecipientEmail string
}

// PeerOf returns the other participant relative to me.
func (m Message) PeerOf(me Identity) Identity {
	if m.SenderID == me {
		return m.RecipientID
	}
	return m.SenderID
}

// SendRequest is the payload of Store.Send.
type SendRequest struct {
	PeerID    Identity
	Body      string
	Subject   string
	ProductID *int64
	ClientRef string
}

// Store is the remote message API. Implementations normalize every record
// before returning it.
type Store interface {
	FetchReceived(ctx context.Context) ([]Message, error)
	FetchSent(ctx context.Context) ([]Message, error)
	FetchConversation(ctx context.Context, peer Identity) ([]Message, error)
	Send(ctx context.Context, req SendRequest) (Message, error)
	MarkRead(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	CountUnread(ctx context.Context) (int, error)
}

// Notifier receives foreground outcomes meant for the user (a toast sink).
type Notifier interface {
	Success(msg string)
	Failure(msg string, err error)
}

type nopNotifier struct{}

func (nopNotifier) Success(string)        {}
func (nopNotifier) Failure(string, error) {}

// newestFirst orders by SentAt descending, then by ID descending so that equal
// timestamps still sort deterministically.
func newestFirst(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.After(msgs[j].SentAt)
		}
		if msgs[i].ID != msgs[j].ID {
			// pending records (ID 0) are always the newest of a tie
			if msgs[i].ID == 0 || msgs[j].ID == 0 {
				return msgs[i].ID == 0
			}
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].ClientRef > msgs[j].ClientRef
	})
}
