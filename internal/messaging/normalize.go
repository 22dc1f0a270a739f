package messaging

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Field aliases seen across the received, sent and conversation endpoints.
var (
	idPaths             = []string{"id", "ID", "message_id", "messageId"}
	clientRefPaths      = []string{"client_ref", "clientRef"}
	senderIDPaths       = []string{"sender_id", "senderId", "from_id", "fromId", "sender.id"}
	recipientIDPaths    = []string{"recipient_id", "recipientId", "receiver_id", "receiverId", "to_id", "toId", "recipient.id", "receiver.id"}
	subjectPaths        = []string{"subject", "title"}
	bodyPaths           = []string{"body", "text", "content"}
	productPaths        = []string{"product_id", "productId", "linked_product_id", "linkedProductId", "product.id"}
	sentAtPaths         = []string{"sent_at", "sentAt", "created_at", "createdAt"}
	readPaths           = []string{"is_read", "isRead", "read"}
	readAtPaths         = []string{"read_at", "readAt"}
	senderNamePaths     = []string{"sender_name", "senderName", "sender.name"}
	senderEmailPaths    = []string{"sender_email", "senderEmail", "sender.email"}
	recipientNamePaths  = []string{"recipient_name", "recipientName", "receiver_name", "receiverName", "recipient.name", "receiver.name"}
	recipientEmailPaths = []string{"recipient_email", "recipientEmail", "receiver_email", "receiverEmail", "recipient.email", "receiver.email"}
)

// NormalizeMessages maps a JSON array of raw records into canonical messages.
// Elements that are not objects are skipped. A non-array payload yields nil.
func NormalizeMessages(data []byte) []Message {
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil
	}
	var out []Message
	root.ForEach(func(_, v gjson.Result) bool {
		if m, ok := normalize(v); ok {
			out = append(out, m)
		}
		return true
	})
	return out
}

// NormalizeMessage maps one raw record into a Message. It reports false when
// the payload is not a JSON object.
func NormalizeMessage(raw []byte) (Message, bool) {
	return normalize(gjson.ParseBytes(raw))
}

func normalize(r gjson.Result) (Message, bool) {
	if !r.IsObject() {
		return Message{}, false
	}

	m := Message{
		ID:             first(r, idPaths).Int(),
		ClientRef:      first(r, clientRefPaths).String(),
		SenderID:       Identity(first(r, senderIDPaths).Int()),
		RecipientID:    Identity(first(r, recipientIDPaths).Int()),
		Subject:        strings.TrimSpace(first(r, subjectPaths).String()),
		Body:           first(r, bodyPaths).String(),
		SentAt:         parseTime(first(r, sentAtPaths)),
		SenderName:     first(r, senderNamePaths).String(),
		SenderEmail:    first(r, senderEmailPaths).String(),
		RecipientName:  first(r, recipientNamePaths).String(),
		RecipientEmail: first(r, recipientEmailPaths).String(),
	}

	if p := first(r, productPaths).Int(); p > 0 {
		m.ProductID = &p
	}

	if read := first(r, readPaths); read.Exists() {
		m.Read = read.Bool()
	}
	if at := first(r, readAtPaths); at.Exists() && at.Type != gjson.Null && at.String() != "" {
		m.Read = true
	}
	return m, true
}

// first returns the first path that is present and not null.
func first(r gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		v := r.Get(p)
		if v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func parseTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	case gjson.String:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
