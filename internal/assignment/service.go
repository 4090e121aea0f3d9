package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetline/dispatch-backend/internal/drivers"
	"github.com/fleetline/dispatch-backend/internal/notifications"
	"github.com/fleetline/dispatch-backend/internal/orders"
	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/push"
	"github.com/fleetline/dispatch-backend/pkg/types"
	"gorm.io/gorm"
)

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the assignment coordinator: the only writer of Order.DriverID.
// Every mutation commits the order row, its history entry and the
// notification rows it produced in one transaction; push delivery happens
// after commit and never fails the operation.
type Service interface {
	Assign(ctx context.Context, actor auth.Actor, orderID, driverID int64) (*models.Order, error)
	BatchAssign(ctx context.Context, actor auth.Actor, input BatchInput) (*BatchResult, error)
	Unassign(ctx context.Context, actor auth.Actor, orderID int64) (*models.Order, error)
}

type service struct {
	tx            transactor
	orders        orders.Repository
	drivers       drivers.Repository
	notifications notifications.Service
	machine       *orders.StateMachine
	push          push.Client
	staffTopic    string
	logg          *logger.Logger
}

func NewService(
	tx transactor,
	ordersRepo orders.Repository,
	driversRepo drivers.Repository,
	notificationsSvc notifications.Service,
	machine *orders.StateMachine,
	pushClient push.Client,
	staffTopic string,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil || ordersRepo == nil || driversRepo == nil {
		return nil, errors.New("transactor and repositories are required")
	}
	if notificationsSvc == nil {
		return nil, errors.New("notifications service is required")
	}
	if machine == nil {
		machine = orders.NewStateMachine()
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		tx:            tx,
		orders:        ordersRepo,
		drivers:       driversRepo,
		notifications: notificationsSvc,
		machine:       machine,
		push:          pushClient,
		staffTopic:    staffTopic,
		logg:          logg,
	}, nil
}

// Assign hands one order to one driver. Pending orders transition to
// assigned; already-assigned orders are reassigned in place, keeping their
// original AssignedAt stamp. Both the new and the displaced courier get a
// notification, even when they are the same person.
func (s *service) Assign(ctx context.Context, actor auth.Actor, orderID, driverID int64) (*models.Order, error) {
	if !actor.IsDispatchStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only dispatch staff may assign orders")
	}

	driver, err := s.findDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.prepare(order, driver)
	if err != nil {
		return nil, err
	}

	notices := s.buildNotices(ctx, order, driver, outcome)
	if err := s.commit(ctx, order, outcome, notices); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, notices)

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID,
		"driver_id": driver.ID,
		"reassign":  outcome.reassigned,
	})
	s.logg.Info(ctx, "order assigned")
	return order, nil
}

// BatchAssign applies many pairs at once. Each pair gets its own
// transaction so one failure never rolls back the others; pair failures are
// reported in the result instead of aborting the batch. Drivers receiving
// several orders get a single grouped notification.
func (s *service) BatchAssign(ctx context.Context, actor auth.Actor, input BatchInput) (*BatchResult, error) {
	if !actor.IsDispatchStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only dispatch staff may assign orders")
	}
	if len(input.Pairs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one assignment pair is required")
	}

	orderByID, driverByID, err := s.bulkFetch(ctx, input.Pairs)
	if err != nil {
		return nil, err
	}

	var accessible map[int64]struct{}
	if input.AccessibleWarehouseIDs != nil {
		accessible = make(map[int64]struct{}, len(input.AccessibleWarehouseIDs))
		for _, id := range input.AccessibleWarehouseIDs {
			accessible[id] = struct{}{}
		}
	}

	result := &BatchResult{}
	assignedPerDriver := map[int64][]*models.Order{}

	for _, pair := range input.Pairs {
		order, ok := orderByID[pair.OrderID]
		if !ok {
			result.Errors = append(result.Errors, pairError(pair, pkgerrors.CodeNotFound, "order not found"))
			continue
		}
		if accessible != nil {
			if _, ok := accessible[order.WarehouseID]; !ok {
				// Outside the actor's warehouse scope; skipped, not an error.
				result.SkippedCount++
				continue
			}
		}
		driver, ok := driverByID[pair.DriverID]
		if !ok {
			result.Errors = append(result.Errors, pairError(pair, pkgerrors.CodeNotFound, "driver not found"))
			continue
		}

		outcome, err := s.prepare(order, driver)
		if err != nil {
			result.Errors = append(result.Errors, pairErrorFrom(pair, err))
			continue
		}

		// Only the displaced courier is notified per pair; the receiving
		// courier gets one grouped notice after the loop.
		notices := s.reassignedAwayNotices(ctx, order, outcome)
		if err := s.commit(ctx, order, outcome, notices); err != nil {
			result.Errors = append(result.Errors, pairErrorFrom(pair, err))
			continue
		}
		s.afterCommit(ctx, notices)

		result.AssignedCount++
		assignedPerDriver[driver.ID] = append(assignedPerDriver[driver.ID], order)
	}

	if err := s.notifyGrouped(ctx, driverByID, assignedPerDriver); err != nil {
		// Assignments are committed; a failed notice write is logged, not returned.
		s.logg.Error(ctx, "recording grouped assignment notifications", err)
	}

	if result.AssignedCount > 0 {
		s.notifyStaffTopic(ctx, fmt.Sprintf("%d orders assigned", result.AssignedCount))
	}

	return result, nil
}

// Unassign returns an assigned order to the pending pool. No notifications
// are produced; the pool change shows up through normal staff views.
func (s *service) Unassign(ctx context.Context, actor auth.Actor, orderID int64) (*models.Order, error) {
	if !actor.IsDispatchStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only dispatch staff may unassign orders")
	}

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	history, err := s.machine.Apply(order, enums.OrderStatusPending, "order unassigned")
	if err != nil {
		return nil, err
	}
	order.DriverID = nil

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving order")
		}
		return repo.CreateHistory(ctx, history)
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID)
	s.logg.Info(ctx, "order unassigned")
	return order, nil
}

type assignOutcome struct {
	history    *models.OrderStatusHistory
	reassigned bool
	previous   *int64 // driver id displaced by a reassignment
}

// prepare validates the move and mutates the order in memory. Pending
// orders go through the state machine; assigned orders swap couriers
// without changing status, keeping AssignedAt from the first assignment.
func (s *service) prepare(order *models.Order, driver *models.Driver) (*assignOutcome, error) {
	if driver.User == nil || !driver.User.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "driver is not available for assignment")
	}

	switch order.Status {
	case enums.OrderStatusPending:
		history, err := s.machine.Apply(order, enums.OrderStatusAssigned, fmt.Sprintf("assigned to driver %d", driver.ID))
		if err != nil {
			return nil, err
		}
		order.DriverID = &driver.ID
		return &assignOutcome{history: history}, nil

	case enums.OrderStatusAssigned:
		previous := order.DriverID
		now := time.Now().UTC()
		order.DriverID = &driver.ID
		order.UpdatedAt = now
		return &assignOutcome{
			history: &models.OrderStatusHistory{
				OrderID:   order.ID,
				Status:    enums.OrderStatusAssigned,
				Notes:     fmt.Sprintf("reassigned to driver %d", driver.ID),
				CreatedAt: now,
			},
			reassigned: true,
			previous:   previous,
		}, nil

	default:
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be assigned", order.Status),
		)
	}
}

func (s *service) commit(ctx context.Context, order *models.Order, outcome *assignOutcome, notices []*models.Notification) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving order")
		}
		if err := repo.CreateHistory(ctx, outcome.history); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording order history")
		}
		for _, notice := range notices {
			if err := s.notifications.Record(ctx, tx, notice); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) afterCommit(ctx context.Context, notices []*models.Notification) {
	for _, notice := range notices {
		s.notifications.Deliver(*notice)
	}
	s.notifyStaffTopic(ctx, "assignment updated")
}

// buildNotices covers a single assign: the receiving courier always hears
// about it, and on reassignment the displaced courier does too.
func (s *service) buildNotices(ctx context.Context, order *models.Order, driver *models.Driver, outcome *assignOutcome) []*models.Notification {
	noticeType := enums.NotificationTypeOrderAssigned
	title := "New delivery assigned"
	if outcome.reassigned {
		noticeType = enums.NotificationTypeOrderReassigned
		title = "Delivery reassigned to you"
	}

	notices := []*models.Notification{{
		UserID: driver.UserID,
		Type:   noticeType,
		Title:  title,
		Body:   fmt.Sprintf("Order %s is now yours", order.Reference),
		Data: types.JSONMap{
			"order_id": fmt.Sprintf("%d", order.ID),
		},
	}}

	return append(notices, s.reassignedAwayNotices(ctx, order, outcome)...)
}

func (s *service) reassignedAwayNotices(ctx context.Context, order *models.Order, outcome *assignOutcome) []*models.Notification {
	if !outcome.reassigned || outcome.previous == nil {
		return nil
	}
	previous, err := s.drivers.FindByID(ctx, *outcome.previous)
	if err != nil {
		return nil
	}
	return []*models.Notification{{
		UserID: previous.UserID,
		Type:   enums.NotificationTypeOrderReassigned,
		Title:  "Delivery reassigned",
		Body:   fmt.Sprintf("Order %s was reassigned to another courier", order.Reference),
		Data: types.JSONMap{
			"order_id": fmt.Sprintf("%d", order.ID),
		},
	}}
}

// notifyGrouped writes one notice per courier summarizing everything they
// received in this batch.
func (s *service) notifyGrouped(ctx context.Context, driverByID map[int64]*models.Driver, assignedPerDriver map[int64][]*models.Order) error {
	for driverID, assigned := range assignedPerDriver {
		driver := driverByID[driverID]
		if driver == nil {
			continue
		}

		notice := &models.Notification{
			UserID: driver.UserID,
			Type:   enums.NotificationTypeOrderAssigned,
			Data:   types.JSONMap{"count": fmt.Sprintf("%d", len(assigned))},
		}
		if len(assigned) == 1 {
			notice.Title = "New delivery assigned"
			notice.Body = fmt.Sprintf("Order %s is now yours", assigned[0].Reference)
			notice.Data["order_id"] = fmt.Sprintf("%d", assigned[0].ID)
		} else {
			notice.Title = "New deliveries assigned"
			notice.Body = fmt.Sprintf("You have %d new deliveries", len(assigned))
		}

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.notifications.Record(ctx, tx, notice)
		})
		if err != nil {
			return err
		}
		s.notifications.Deliver(*notice)
	}
	return nil
}

func (s *service) notifyStaffTopic(ctx context.Context, body string) {
	if s.push == nil || s.staffTopic == "" {
		return
	}
	if err := s.push.SendToTopic(ctx, s.staffTopic, "Dispatch update", body, nil); err != nil {
		s.logg.Warn(ctx, "staff topic push failed")
	}
}

func (s *service) bulkFetch(ctx context.Context, pairs []Pair) (map[int64]*models.Order, map[int64]*models.Driver, error) {
	orderIDs := make([]int64, 0, len(pairs))
	driverIDs := make([]int64, 0, len(pairs))
	seenOrders := map[int64]struct{}{}
	seenDrivers := map[int64]struct{}{}
	for _, pair := range pairs {
		if _, ok := seenOrders[pair.OrderID]; !ok {
			seenOrders[pair.OrderID] = struct{}{}
			orderIDs = append(orderIDs, pair.OrderID)
		}
		if _, ok := seenDrivers[pair.DriverID]; !ok {
			seenDrivers[pair.DriverID] = struct{}{}
			driverIDs = append(driverIDs, pair.DriverID)
		}
	}

	foundOrders, err := s.orders.FindByIDs(ctx, orderIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading orders")
	}
	foundDrivers, err := s.drivers.FindByIDs(ctx, driverIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading drivers")
	}

	orderByID := make(map[int64]*models.Order, len(foundOrders))
	for i := range foundOrders {
		orderByID[foundOrders[i].ID] = &foundOrders[i]
	}
	driverByID := make(map[int64]*models.Driver, len(foundDrivers))
	for i := range foundDrivers {
		driverByID[foundDrivers[i].ID] = &foundDrivers[i]
	}
	return orderByID, driverByID, nil
}

func (s *service) findOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

func (s *service) findDriver(ctx context.Context, driverID int64) (*models.Driver, error) {
	driver, err := s.drivers.FindByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "driver not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading driver")
	}
	return driver, nil
}

func pairError(pair Pair, code pkgerrors.Code, message string) PairError {
	return PairError{OrderID: pair.OrderID, DriverID: pair.DriverID, Code: code, Message: message}
}

func pairErrorFrom(pair Pair, err error) PairError {
	if typed := pkgerrors.As(err); typed != nil {
		return pairError(pair, typed.Code(), typed.Message())
	}
	return pairError(pair, pkgerrors.CodeInternal, err.Error())
}
