package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/metrics"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/models"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/repository"
)

// Publisher announces stored messages to the recipient.
type Publisher interface {
	NewMessage(ctx context.Context, msg models.Message) error
}

type MessageHandler struct {
	Repo    repository.MessageRepository
	Catalog repository.CatalogRepository
	Notify  Publisher
	Metrics *metrics.HTTP
	Log     *zap.Logger
}

func NewMessageHandler(repo repository.MessageRepository, catalog repository.CatalogRepository, notify Publisher, m *metrics.HTTP, log *zap.Logger) *MessageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageHandler{Repo: repo, Catalog: catalog, Notify: notify, Metrics: m, Log: log}
}

// MessageOut is the flat shape of the received and sent listings.
type MessageOut struct {
	ID             uint       `json:"id"`
	ClientRef      string     `json:"client_ref,omitempty"`
	SenderID       uint       `json:"sender_id"`
	SenderName     string     `json:"sender_name,omitempty"`
	SenderEmail    string     `json:"sender_email,omitempty"`
	RecipientID    uint       `json:"recipient_id"`
	RecipientName  string     `json:"recipient_name,omitempty"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	Subject        string     `json:"subject"`
	Body           string     `json:"body"`
	ProductID      *uint      `json:"product_id,omitempty"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

type UserMini struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ThreadMessageOut is the conversation shape, with participants nested.
type ThreadMessageOut struct {
	ID        uint       `json:"id"`
	ClientRef string     `json:"client_ref,omitempty"`
	Sender    UserMini   `json:"sender"`
	Recipient UserMini   `json:"recipient"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	ProductID *uint      `json:"product_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func toMessageOut(m models.Message) MessageOut {
	out := MessageOut{
		ID:          m.ID,
		ClientRef:   clientRef(m),
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Subject:     m.Subject,
		Body:        m.Body,
		ProductID:   m.ProductID,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
	}
	if m.Sender != nil {
		out.SenderName = m.Sender.Name
		out.SenderEmail = m.Sender.Email
	}
	if m.Recipient != nil {
		out.RecipientName = m.Recipient.Name
		out.RecipientEmail = m.Recipient.Email
	}
	return out
}

func toThreadMessageOut(m models.Message) ThreadMessageOut {
	out := ThreadMessageOut{
		ID:        m.ID,
		ClientRef: clientRef(m),
		Sender:    UserMini{ID: m.SenderID},
		Recipient: UserMini{ID: m.RecipientID},
		Subject:   m.Subject,
		Body:      m.Body,
		ProductID: m.ProductID,
		IsRead:    m.IsRead,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
	if m.Sender != nil {
		out.Sender.Name = m.Sender.Name
		out.Sender.Email = m.Sender.Email
	}
	if m.Recipient != nil {
		out.Recipient.Name = m.Recipient.Name
		out.Recipient.Email = m.Recipient.Email
	}
	return out
}

func clientRef(m models.Message) string {
	if m.ClientRef == nil {
		return ""
	}
	return m.ClientRef.String()
}

func pageFrom(c *fiber.Ctx) repository.Page {
	return repository.Page{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", repository.DefaultLimit),
	}
}

// GetReceived lists messages addressed to the user, newest first.
func (h *MessageHandler) GetReceived(c *fiber.Ctx) error {
	return h.list(c, h.Repo.Received)
}

// GetSent lists messages written by the user, newest first.
func (h *MessageHandler) GetSent(c *fiber.Ctx) error {
	return h.list(c, h.Repo.Sent)
}

type listFunc func(ctx context.Context, userID uint, page repository.Page) ([]models.Message, int64, error)

func (h *MessageHandler) list(c *fiber.Ctx, fetch listFunc) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	page := pageFrom(c)
	msgs, total, err := fetch(c.UserContext(), userID, page)
	if err != nil {
		h.Log.Error("list messages failed", zap.Uint("user_id", userID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch messages")
	}

	out := make([]MessageOut, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageOut(m))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    out,
		"meta": fiber.Map{
			"page":  page.Page,
			"limit": page.Limit,
			"total": total,
		},
	})
}

// GetConversation returns every message between the user and a peer, oldest
// first.
func (h *MessageHandler) GetConversation(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	peerID, err := c.ParamsInt("peerId")
	if err != nil || peerID <= 0 {
		return fail(c, fiber.StatusBadRequest, "Invalid peer ID")
	}

	msgs, err := h.Repo.Conversation(c.UserContext(), userID, uint(peerID))
	if err != nil {
		h.Log.Error("fetch conversation failed", zap.Uint("user_id", userID), zap.Int("peer_id", peerID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch conversation")
	}

	out := make([]ThreadMessageOut, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toThreadMessageOut(m))
	}
	return c.JSON(fiber.Map{"success": true, "data": out})
}

type SendMessageReq struct {
	RecipientID uint   `json:"recipient_id"`
	Body        string `json:"body"`
	Subject     string `json:"subject"`
	ProductID   *uint  `json:"product_id"`
	ClientRef   string `json:"client_ref"`
}

// SendMessage stores a message. Resending with the same client_ref returns the
// stored message instead of creating a second one.
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req SendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request")
	}

	body := strings.TrimSpace(req.Body)
	errs := FieldErrors{}
	if body == "" {
		errs.Add("body", "Body is required")
	}
	if req.RecipientID == 0 {
		errs.Add("recipient_id", "Recipient is required")
	} else if req.RecipientID == userID {
		errs.Add("recipient_id", "Cannot send a message to yourself")
	}
	var ref *uuid.UUID
	if req.ClientRef != "" {
		parsed, err := uuid.Parse(req.ClientRef)
		if err != nil {
			errs.Add("client_ref", "client_ref must be a UUID")
		} else {
			ref = &parsed
		}
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	ctx := c.UserContext()
	if _, err := h.Catalog.FindUser(ctx, req.RecipientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "Recipient not found")
		}
		h.Log.Error("lookup recipient failed", zap.Uint("recipient_id", req.RecipientID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to send message")
	}
	if req.ProductID != nil {
		if _, err := h.Catalog.FindProduct(ctx, *req.ProductID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fail(c, fiber.StatusNotFound, "Product not found")
			}
			h.Log.Error("lookup product failed", zap.Uint("product_id", *req.ProductID), zap.Error(err))
			return fail(c, fiber.StatusInternalServerError, "Failed to send message")
		}
	}

	msg := models.Message{
		ClientRef:   ref,
		SenderID:    userID,
		RecipientID: req.RecipientID,
		ProductID:   req.ProductID,
		Subject:     strings.TrimSpace(req.Subject),
		Body:        body,
	}
	created, err := h.Repo.Create(ctx, &msg)
	if err != nil {
		h.Log.Error("create message failed", zap.Uint("sender_id", userID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to send message")
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
		h.Metrics.MessageSent()
		if h.Notify != nil {
			if err := h.Notify.NewMessage(ctx, msg); err != nil {
				h.Log.Warn("publish notification failed", zap.Uint("message_id", msg.ID), zap.Error(err))
			}
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"created": created,
		"data":    toMessageOut(msg),
	})
}

// MarkAsRead marks one received message read.
func (h *MessageHandler) MarkAsRead(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fail(c, fiber.StatusBadRequest, "Invalid message ID")
	}

	changed, err := h.Repo.MarkRead(c.UserContext(), userID, uint(id))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "Message not found")
	case errors.Is(err, repository.ErrForbidden):
		return fail(c, fiber.StatusForbidden, "Only the recipient can mark a message read")
	case err != nil:
		h.Log.Error("mark read failed", zap.Uint("user_id", userID), zap.Int("message_id", id), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to mark message as read")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"id": id, "is_read": true, "changed": changed},
	})
}

// DeleteMessage soft deletes a message for both participants.
func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fail(c, fiber.StatusBadRequest, "Invalid message ID")
	}

	err = h.Repo.Delete(c.UserContext(), userID, uint(id))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "Message not found")
	case err != nil:
		h.Log.Error("delete message failed", zap.Uint("user_id", userID), zap.Int("message_id", id), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to delete message")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Message deleted"})
}

// GetUnreadTotal returns the number of unread messages addressed to the user.
func (h *MessageHandler) GetUnreadTotal(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	count, err := h.Repo.CountUnread(c.UserContext(), userID)
	if err != nil {
		h.Log.Error("count unread failed", zap.Uint("user_id", userID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to count unread messages")
	}
	return c.JSON(fiber.Map{"success": true, "data": count})
}
