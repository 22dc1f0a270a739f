// internal/models/message.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a one-to-one message between a buyer and a seller. Conversations
// are not stored; clients derive them from sender and recipient.
type Message struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// set by the client when composing, makes retried sends idempotent
	ClientRef *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"client_ref,omitempty"`

	SenderID    uint  `gorm:"not null;index" json:"sender_id"`
	RecipientID uint  `gorm:"not null;index" json:"recipient_id"`
	ProductID   *uint `gorm:"index" json:"product_id,omitempty"`

	Subject string `gorm:"type:varchar(200)" json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Preloaded relations
	Sender    *User    `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Recipient *User    `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	Product   *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}
