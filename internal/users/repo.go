package users

import (
	"context"

	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Repository exposes the user reads and device-token writes the dispatch
// core needs. Account CRUD lives in the external auth system.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id int64) (*models.User, error)
	ListActiveByRoles(ctx context.Context, roles []string) ([]models.User, error)
	SetDeviceToken(ctx context.Context, userID int64, token *string) error
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

func (r *repository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) ListActiveByRoles(ctx context.Context, roles []string) ([]models.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("role = ANY(?) AND active", pq.Array(roles)).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repository) SetDeviceToken(ctx context.Context, userID int64, token *string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("device_token", token).Error
}
