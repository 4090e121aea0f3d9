package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetline/dispatch-backend/internal/drivers"
	"github.com/fleetline/dispatch-backend/internal/notifications"
	"github.com/fleetline/dispatch-backend/internal/users"
	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// driverStatusTargets are the transitions a courier may apply to their own
// orders. Assignment moves go through the coordinator instead.
var driverStatusTargets = map[enums.OrderStatus]struct{}{
	enums.OrderStatusPickedUp:       {},
	enums.OrderStatusInTransit:      {},
	enums.OrderStatusOutForDelivery: {},
	enums.OrderStatusDelivered:      {},
	enums.OrderStatusRejected:       {},
}

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes order intake, reads and lifecycle updates.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, actor auth.Actor, orderID int64) (*models.Order, error)
	History(ctx context.Context, actor auth.Actor, orderID int64) ([]models.OrderStatusHistory, error)
	UpdateStatus(ctx context.Context, actor auth.Actor, input UpdateStatusInput) (*models.Order, error)
}

type service struct {
	tx            transactor
	repo          Repository
	driversRepo   drivers.Repository
	usersRepo     users.Repository
	notifications notifications.Service
	machine       *StateMachine
	logg          *logger.Logger
}

func NewService(
	tx transactor,
	repo Repository,
	driversRepo drivers.Repository,
	usersRepo users.Repository,
	notificationsSvc notifications.Service,
	machine *StateMachine,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil || repo == nil || driversRepo == nil || usersRepo == nil {
		return nil, errors.New("transactor and repositories are required")
	}
	if notificationsSvc == nil {
		return nil, errors.New("notifications service is required")
	}
	if machine == nil {
		machine = NewStateMachine()
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		tx:            tx,
		repo:          repo,
		driversRepo:   driversRepo,
		usersRepo:     usersRepo,
		notifications: notificationsSvc,
		machine:       machine,
		logg:          logg,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateOrderInput) (*models.Order, error) {
	if !actor.IsDispatchStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only dispatch staff may create orders")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}
	if input.WarehouseID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse id is required")
	}
	if input.Total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total cannot be negative")
	}

	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		reference = "ORD-" + strings.ToUpper(uuid.NewString()[:8])
	}

	now := time.Now().UTC()
	order := &models.Order{
		Reference:     reference,
		Status:        enums.OrderStatusPending,
		Total:         input.Total,
		PaymentMethod: input.PaymentMethod,
		WarehouseID:   input.WarehouseID,
		Notes:         input.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
		}
		return repo.CreateHistory(ctx, &models.OrderStatusHistory{
			OrderID:   order.ID,
			Status:    enums.OrderStatusPending,
			Notes:     "order created",
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID)
	s.logg.Info(ctx, "order created")
	return order, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID int64) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) History(ctx context.Context, actor auth.Actor, orderID int64) ([]models.OrderStatusHistory, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, order); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing order history")
	}
	return entries, nil
}

// UpdateStatus applies a lifecycle transition. Staff may apply any legal
// move except entering assigned, which belongs to the assignment
// coordinator; couriers may only advance their own orders through the
// delivery phase.
func (s *service) UpdateStatus(ctx context.Context, actor auth.Actor, input UpdateStatusInput) (*models.Order, error) {
	if input.Target == enums.OrderStatusAssigned {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the assignment endpoint to assign orders")
	}

	order, err := s.findOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeStatusChange(ctx, actor, order, input.Target); err != nil {
		return nil, err
	}

	history, err := s.machine.Apply(order, input.Target, input.Notes)
	if err != nil {
		return nil, err
	}

	// Returning to the pool means no courier owns the order anymore.
	if input.Target == enums.OrderStatusPending {
		order.DriverID = nil
	}

	var staffNotices []models.Notification
	if actor.Role == enums.UserRoleDriver {
		staffNotices, err = s.staffStatusNotices(ctx, order, input.Target)
		if err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving order")
		}
		if err := repo.CreateHistory(ctx, history); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording order history")
		}
		if len(staffNotices) > 0 {
			if err := s.notifications.RecordBatch(ctx, tx, staffNotices); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, notice := range staffNotices {
		s.notifications.Deliver(notice)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
	})
	s.logg.Info(ctx, "order status updated")
	return order, nil
}

func (s *service) findOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

func (s *service) authorizeRead(ctx context.Context, actor auth.Actor, order *models.Order) error {
	if actor.IsDispatchStaff() {
		return nil
	}
	if actor.Role == enums.UserRoleDriver {
		driver, err := s.driversRepo.FindByUserID(ctx, actor.UserID)
		if err == nil && order.DriverID != nil && *order.DriverID == driver.ID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this order")
}

func (s *service) authorizeStatusChange(ctx context.Context, actor auth.Actor, order *models.Order, target enums.OrderStatus) error {
	if actor.IsDispatchStaff() {
		return nil
	}
	if actor.Role != enums.UserRoleDriver {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to update order status")
	}
	if _, ok := driverStatusTargets[target]; !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "couriers cannot apply this status")
	}
	driver, err := s.driversRepo.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "driver profile not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading driver profile")
	}
	if order.DriverID == nil || *order.DriverID != driver.ID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to this courier")
	}
	return nil
}

// staffStatusNotices builds one in-app notice per active staff user when a
// courier moves an order, so dispatchers see progress without polling.
func (s *service) staffStatusNotices(ctx context.Context, order *models.Order, target enums.OrderStatus) ([]models.Notification, error) {
	roles := make([]string, 0, len(enums.DispatchStaffRoles))
	for _, role := range enums.DispatchStaffRoles {
		roles = append(roles, string(role))
	}
	staff, err := s.usersRepo.ListActiveByRoles(ctx, roles)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing staff users")
	}

	notices := make([]models.Notification, 0, len(staff))
	for _, user := range staff {
		notices = append(notices, models.Notification{
			UserID: user.ID,
			Type:   enums.NotificationTypeOrderStatus,
			Title:  "Order " + order.Reference + " updated",
			Body:   fmt.Sprintf("Order %s is now %s", order.Reference, target),
			Data: types.JSONMap{
				"order_id": fmt.Sprintf("%d", order.ID),
				"status":   string(target),
			},
		})
	}
	return notices, nil
}
