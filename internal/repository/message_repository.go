package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("not allowed for this user")
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Page) Offset() int {
	p = p.normalize()
	return (p.Page - 1) * p.Limit
}

type MessageRepository interface {
	Received(ctx context.Context, userID uint, page Page) ([]models.Message, int64, error)
	Sent(ctx context.Context, userID uint, page Page) ([]models.Message, int64, error)
	Conversation(ctx context.Context, userID, peerID uint) ([]models.Message, error)
	// Create stores msg, or returns the message already stored under the same
	// client ref by the same sender. created is false in the latter case.
	Create(ctx context.Context, msg *models.Message) (created bool, err error)
	// MarkRead flips is_read for the recipient. changed is false when the
	// message was already read.
	MarkRead(ctx context.Context, userID, messageID uint) (changed bool, err error)
	Delete(ctx context.Context, userID, messageID uint) error
	CountUnread(ctx context.Context, userID uint) (int64, error)
}

type CatalogRepository interface {
	FindUser(ctx context.Context, id uint) (models.User, error)
	FindProduct(ctx context.Context, id uint) (models.Product, error)
}

type GormRepository struct {
	DB *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{DB: db}
}

var (
	_ MessageRepository = (*GormRepository)(nil)
	_ CatalogRepository = (*GormRepository)(nil)
)

func (r *GormRepository) withParticipants(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).
		Preload("Sender").
		Preload("Recipient")
}

func (r *GormRepository) Received(ctx context.Context, userID uint, page Page) ([]models.Message, int64, error) {
	return r.list(ctx, "recipient_id = ?", userID, page)
}

func (r *GormRepository) Sent(ctx context.Context, userID uint, page Page) ([]models.Message, int64, error) {
	return r.list(ctx, "sender_id = ?", userID, page)
}

func (r *GormRepository) list(ctx context.Context, where string, userID uint, page Page) ([]models.Message, int64, error) {
	page = page.normalize()

	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Message{}).Where(where, userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var msgs []models.Message
	err := r.withParticipants(ctx).
		Where(where, userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

func (r *GormRepository) Conversation(ctx context.Context, userID, peerID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := r.withParticipants(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userID, peerID, peerID, userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *GormRepository) Create(ctx context.Context, msg *models.Message) (bool, error) {
	created := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if msg.ClientRef != nil {
			var existing models.Message
			err := tx.Where("client_ref = ? AND sender_id = ?", *msg.ClientRef, msg.SenderID).First(&existing).Error
			if err == nil {
				*msg = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if err := r.withParticipants(ctx).First(msg, msg.ID).Error; err != nil {
		return created, err
	}
	return created, nil
}

func (r *GormRepository) MarkRead(ctx context.Context, userID, messageID uint) (bool, error) {
	msg, err := r.participantMessage(ctx, userID, messageID)
	if err != nil {
		return false, err
	}
	if msg.RecipientID != userID {
		return false, ErrForbidden
	}
	if msg.IsRead {
		return false, nil
	}

	res := r.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_read = false", messageID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepository) Delete(ctx context.Context, userID, messageID uint) error {
	if _, err := r.participantMessage(ctx, userID, messageID); err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Delete(&models.Message{}, messageID).Error
}

func (r *GormRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND sender_id <> ? AND is_read = false", userID, userID).
		Count(&count).Error
	return count, err
}

func (r *GormRepository) FindUser(ctx context.Context, id uint) (models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

func (r *GormRepository) FindProduct(ctx context.Context, id uint) (models.Product, error) {
	var p models.Product
	if err := r.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Product{}, ErrNotFound
		}
		return models.Product{}, err
	}
	return p, nil
}

func (r *GormRepository) participantMessage(ctx context.Context, userID, messageID uint) (models.Message, error) {
	var msg models.Message
	err := r.DB.WithContext(ctx).
		Where("id = ? AND (sender_id = ? OR recipient_id = ?)", messageID, userID, userID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Message{}, ErrNotFound
	}
	return msg, err
}
