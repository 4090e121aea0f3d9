package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/fleetline/dispatch-backend/internal/users"
	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"gorm.io/gorm"
)

type stubRepo struct {
	created      []models.Notification
	row          *models.Notification
	markedRead   []int64
	markedAllFor []int64
	markedSent   []int64
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, notification *models.Notification) error {
	notification.ID = int64(len(s.created) + 1)
	s.created = append(s.created, *notification)
	return nil
}

func (s *stubRepo) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	s.created = append(s.created, notifications...)
	return nil
}

func (s *stubRepo) ListByUser(ctx context.Context, userID int64, limit int, unreadOnly bool) ([]models.Notification, error) {
	return s.created, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*models.Notification, error) {
	if s.row == nil || s.row.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.row, nil
}

func (s *stubRepo) MarkRead(ctx context.Context, id int64, at time.Time) error {
	s.markedRead = append(s.markedRead, id)
	return nil
}

func (s *stubRepo) MarkAllRead(ctx context.Context, userID int64, at time.Time) error {
	s.markedAllFor = append(s.markedAllFor, userID)
	return nil
}

func (s *stubRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	s.markedSent = append(s.markedSent, id)
	return nil
}

type stubUsersRepo struct {
	user          *models.User
	clearedTokens []int64
}

func (s *stubUsersRepo) WithTx(tx *gorm.DB) users.Repository { return s }

func (s *stubUsersRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUsersRepo) ListActiveByRoles(ctx context.Context, roles []string) ([]models.User, error) {
	panic("not implemented")
}

func (s *stubUsersRepo) SetDeviceToken(ctx context.Context, userID int64, token *string) error {
	if token == nil {
		s.clearedTokens = append(s.clearedTokens, userID)
		s.user.DeviceToken = nil
	}
	return nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: discardWriter{}})
}

func newTestService(t *testing.T, repo *stubRepo) Service {
	t.Helper()
	svc, err := NewService(repo, nil, testLogger())
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc
}

func TestRecordRejectsInvalidType(t *testing.T) {
	svc := newTestService(t, &stubRepo{})

	err := svc.Record(context.Background(), nil, &models.Notification{
		UserID: 1,
		Type:   enums.NotificationType("carrier_pigeon"),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR got %v", err)
	}
}

func TestRecordStampsCreatedAt(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo)

	n := &models.Notification{UserID: 1, Type: enums.NotificationTypeOrderAssigned, Title: "t", Body: "b"}
	if err := svc.Record(context.Background(), nil, n); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if n.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt stamped")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 row got %d", len(repo.created))
	}
}

func TestMarkReadHidesOtherUsersRows(t *testing.T) {
	repo := &stubRepo{row: &models.Notification{ID: 7, UserID: 99}}
	svc := newTestService(t, repo)

	err := svc.MarkRead(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleDriver}, 7)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for foreign notification got %v", err)
	}
	if len(repo.markedRead) != 0 {
		t.Fatal("foreign notification must not be marked read")
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	readAt := time.Now().UTC()
	repo := &stubRepo{row: &models.Notification{ID: 7, UserID: 1, ReadAt: &readAt}}
	svc := newTestService(t, repo)

	if err := svc.MarkRead(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleDriver}, 7); err != nil {
		t.Fatalf("marking an already-read notification must succeed, got %v", err)
	}
	if len(repo.markedRead) != 0 {
		t.Fatal("already-read notification must not be written again")
	}
}

func TestMarkReadStampsRow(t *testing.T) {
	repo := &stubRepo{row: &models.Notification{ID: 7, UserID: 1}}
	svc := newTestService(t, repo)

	if err := svc.MarkRead(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleDriver}, 7); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(repo.markedRead) != 1 || repo.markedRead[0] != 7 {
		t.Fatalf("unexpected mark read calls %v", repo.markedRead)
	}
}

func TestMarkAllReadScopesToActor(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo)

	if err := svc.MarkAllRead(context.Background(), auth.Actor{UserID: 5, Role: enums.UserRoleDriver}); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(repo.markedAllFor) != 1 || repo.markedAllFor[0] != 5 {
		t.Fatalf("unexpected mark-all calls %v", repo.markedAllFor)
	}
}

func TestDeliverWithoutDispatcherIsNoop(t *testing.T) {
	svc := newTestService(t, &stubRepo{})

	// Push delivery disabled; must not panic.
	svc.Deliver(models.Notification{ID: 1, UserID: 1})
}
