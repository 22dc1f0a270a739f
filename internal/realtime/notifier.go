package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/models"
)

// Channel is the pub/sub channel a user's notifications go to.
func Channel(userID uint) string {
	return fmt.Sprintf("notifications:%d", userID)
}

type NewMessageEvent struct {
	Type      string    `json:"type"`
	MessageID uint      `json:"message_id"`
	SenderID  uint      `json:"sender_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	ProductID *uint     `json:"product_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Notifier publishes new-message events for whoever listens on the
// recipient's channel. Delivery is fire and forget.
type Notifier struct {
	RDB *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{RDB: rdb}
}

func (n *Notifier) NewMessage(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(NewMessageEvent{
		Type:      "new_message",
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Subject:   msg.Subject,
		Body:      msg.Body,
		ProductID: msg.ProductID,
		SentAt:    msg.CreatedAt,
	})
	if err != nil {
		return err
	}
	return n.RDB.Publish(ctx, Channel(msg.RecipientID), payload).Err()
}
