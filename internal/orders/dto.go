package orders

import (
	"github.com/fleetline/dispatch-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// CreateOrderInput is the intake payload for a new delivery order.
type CreateOrderInput struct {
	Reference     string
	Total         decimal.Decimal
	PaymentMethod enums.PaymentMethod
	WarehouseID   int64
	Notes         string
}

// UpdateStatusInput moves an order through its lifecycle.
type UpdateStatusInput struct {
	OrderID int64
	Target  enums.OrderStatus
	Notes   string
}
