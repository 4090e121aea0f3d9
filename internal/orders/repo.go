package orders

import (
	"context"

	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	FindByIDs(ctx context.Context, ids []int64) ([]models.Order, error)
	Save(ctx context.Context, order *models.Order) error
	CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []int64) ([]models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":       order.Status,
			"driver_id":    order.DriverID,
			"assigned_at":  order.AssignedAt,
			"picked_up_at": order.PickedUpAt,
			"delivered_at": order.DeliveredAt,
			"notes":        order.Notes,
			"updated_at":   order.UpdatedAt,
		}).Error
}

func (r *repository) CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	var entries []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
