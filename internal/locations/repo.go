package locations

import (
	"context"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists the GPS time series.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, location *models.DriverLocation) error
	Latest(ctx context.Context, driverID int64) (*models.DriverLocation, error)
	ListSince(ctx context.Context, driverID int64, since time.Time) ([]models.DriverLocation, error)
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

func (r *repository) Insert(ctx context.Context, location *models.DriverLocation) error {
	return r.db.WithContext(ctx).Create(location).Error
}

func (r *repository) Latest(ctx context.Context, driverID int64) (*models.DriverLocation, error) {
	var row models.DriverLocation
	err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("recorded_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListSince(ctx context.Context, driverID int64, since time.Time) ([]models.DriverLocation, error) {
	var rows []models.DriverLocation
	err := r.db.WithContext(ctx).
		Where("driver_id = ? AND recorded_at >= ?", driverID, since).
		Order("recorded_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
