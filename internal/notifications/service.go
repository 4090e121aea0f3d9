package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"gorm.io/gorm"
)

// Service owns the in-app notification surface. Writes happen inside the
// caller's transaction so a notification row commits or rolls back together
// with the business change it describes; push delivery is enqueued
// separately after commit.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, notification *models.Notification) error
	RecordBatch(ctx context.Context, tx *gorm.DB, notifications []models.Notification) error
	Deliver(notification models.Notification)
	List(ctx context.Context, actor auth.Actor, limit int, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, actor auth.Actor, notificationID int64) error
	MarkAllRead(ctx context.Context, actor auth.Actor) error
}

type service struct {
	repo       Repository
	dispatcher *Dispatcher
	logg       *logger.Logger
}

func NewService(repo Repository, dispatcher *Dispatcher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("notifications repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{repo: repo, dispatcher: dispatcher, logg: logg}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, notification *models.Notification) error {
	if notification == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}
	if !notification.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification type %q", notification.Type))
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	return s.repo.WithTx(tx).Create(ctx, notification)
}

func (s *service) RecordBatch(ctx context.Context, tx *gorm.DB, notifications []models.Notification) error {
	now := time.Now().UTC()
	for i := range notifications {
		if !notifications[i].Type.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification type %q", notifications[i].Type))
		}
		if notifications[i].CreatedAt.IsZero() {
			notifications[i].CreatedAt = now
		}
	}
	return s.repo.WithTx(tx).CreateBatch(ctx, notifications)
}

// Deliver hands the stored notification to the push dispatcher. A nil
// dispatcher means push delivery is disabled; the in-app row already exists.
func (s *service) Deliver(notification models.Notification) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Enqueue(notification)
}

func (s *service) List(ctx context.Context, actor auth.Actor, limit int, unreadOnly bool) ([]models.Notification, error) {
	rows, err := s.repo.ListByUser(ctx, actor.UserID, limit, unreadOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing notifications")
	}
	return rows, nil
}

func (s *service) MarkRead(ctx context.Context, actor auth.Actor, notificationID int64) error {
	row, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading notification")
	}
	if row.UserID != actor.UserID {
		// Hide other users' notifications instead of acknowledging they exist.
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if row.ReadAt != nil {
		return nil
	}
	if err := s.repo.MarkRead(ctx, notificationID, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking notification read")
	}
	return nil
}

// MarkAllRead stamps every unread notification of the caller in one write.
func (s *service) MarkAllRead(ctx context.Context, actor auth.Actor) error {
	if err := s.repo.MarkAllRead(ctx, actor.UserID, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking notifications read")
	}
	return nil
}
