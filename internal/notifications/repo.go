package notifications

import (
	"context"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists notification rows and the read/sent stamps.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	ListByUser(ctx context.Context, userID int64, limit int, unreadOnly bool) ([]models.Notification, error)
	FindByID(ctx context.Context, id int64) (*models.Notification, error)
	MarkRead(ctx context.Context, id int64, at time.Time) error
	MarkAllRead(ctx context.Context, userID int64, at time.Time) error
	MarkSent(ctx context.Context, id int64, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&notifications).Error
}

func (r *repository) ListByUser(ctx context.Context, userID int64, limit int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var rows []models.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Notification, error) {
	var row models.Notification
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) MarkRead(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", at).Error
}

func (r *repository) MarkAllRead(ctx context.Context, userID int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", at).Error
}

func (r *repository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND sent_at IS NULL", id).
		Update("sent_at", at).Error
}
