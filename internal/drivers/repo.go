package drivers

import (
	"context"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository exposes driver profile reads and the availability writes the
// dispatch core performs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id int64) (*models.Driver, error)
	FindByIDs(ctx context.Context, ids []int64) ([]models.Driver, error)
	FindByUserID(ctx context.Context, userID int64) (*models.Driver, error)
	SetAvailability(ctx context.Context, driverID int64, available bool, onlineAt *time.Time) error
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

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Driver, error) {
	var driver models.Driver
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("id = ?", id).
		First(&driver).Error
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []int64) ([]models.Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []models.Driver
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("id IN ?", ids).
		Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID int64) (*models.Driver, error) {
	var driver models.Driver
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("user_id = ?", userID).
		First(&driver).Error
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

// SetAvailability flips the availability flag. When the driver is going
// online, onlineAt records the shift start; going offline leaves the last
// value in place for shift accounting.
func (r *repository) SetAvailability(ctx context.Context, driverID int64, available bool, onlineAt *time.Time) error {
	updates := map[string]any{
		"available":  available,
		"updated_at": time.Now().UTC(),
	}
	if onlineAt != nil {
		updates["last_online_at"] = *onlineAt
	}
	return r.db.WithContext(ctx).
		Model(&models.Driver{}).
		Where("id = ?", driverID).
		Updates(updates).Error
}
