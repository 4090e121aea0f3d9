package drivers

import (
	"context"
	"testing"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"gorm.io/gorm"
)

type stubRepo struct {
	driver *models.Driver

	availabilityCalls []bool
	onlineStamps      []*time.Time
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*models.Driver, error) {
	panic("not implemented")
}

func (s *stubRepo) FindByIDs(ctx context.Context, ids []int64) ([]models.Driver, error) {
	panic("not implemented")
}

func (s *stubRepo) FindByUserID(ctx context.Context, userID int64) (*models.Driver, error) {
	if s.driver == nil || s.driver.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *s.driver
	return &clone, nil
}

func (s *stubRepo) SetAvailability(ctx context.Context, driverID int64, available bool, onlineAt *time.Time) error {
	s.availabilityCalls = append(s.availabilityCalls, available)
	s.onlineStamps = append(s.onlineStamps, onlineAt)
	return nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: discardWriter{}})
}

func newTestService(t *testing.T, repo *stubRepo) Service {
	t.Helper()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc
}

func courierActor() auth.Actor {
	return auth.Actor{UserID: 50, Role: enums.UserRoleDriver}
}

func TestProfileRequiresDriverRole(t *testing.T) {
	svc := newTestService(t, &stubRepo{})

	_, err := svc.Profile(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleManager})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN got %v", err)
	}
}

func TestProfileMissingRow(t *testing.T) {
	svc := newTestService(t, &stubRepo{})

	_, err := svc.Profile(context.Background(), courierActor())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND got %v", err)
	}
}

func TestGoingOnlineStampsShiftStart(t *testing.T) {
	repo := &stubRepo{driver: &models.Driver{ID: 10, UserID: 50, Available: false}}
	svc := newTestService(t, repo)

	driver, err := svc.SetAvailability(context.Background(), courierActor(), true)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !driver.Available {
		t.Fatal("expected driver online")
	}
	if driver.LastOnlineAt == nil {
		t.Fatal("expected LastOnlineAt stamped on going online")
	}
	if len(repo.onlineStamps) != 1 || repo.onlineStamps[0] == nil {
		t.Fatalf("expected online stamp passed to repository got %v", repo.onlineStamps)
	}
}

func TestGoingOfflineKeepsShiftStamp(t *testing.T) {
	shiftStart := time.Now().UTC().Add(-3 * time.Hour)
	repo := &stubRepo{driver: &models.Driver{ID: 10, UserID: 50, Available: true, LastOnlineAt: &shiftStart}}
	svc := newTestService(t, repo)

	driver, err := svc.SetAvailability(context.Background(), courierActor(), false)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if driver.Available {
		t.Fatal("expected driver offline")
	}
	if driver.LastOnlineAt == nil || !driver.LastOnlineAt.Equal(shiftStart) {
		t.Fatalf("shift stamp changed on going offline: %v", driver.LastOnlineAt)
	}
	if repo.onlineStamps[0] != nil {
		t.Fatal("going offline must not pass a new online stamp")
	}
}

func TestStayingOnlineKeepsOriginalStamp(t *testing.T) {
	shiftStart := time.Now().UTC().Add(-3 * time.Hour)
	repo := &stubRepo{driver: &models.Driver{ID: 10, UserID: 50, Available: true, LastOnlineAt: &shiftStart}}
	svc := newTestService(t, repo)

	driver, err := svc.SetAvailability(context.Background(), courierActor(), true)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if driver.LastOnlineAt == nil || !driver.LastOnlineAt.Equal(shiftStart) {
		t.Fatalf("repeated online toggle reset the shift stamp: %v", driver.LastOnlineAt)
	}
}
