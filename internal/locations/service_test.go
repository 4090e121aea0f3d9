package locations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetline/dispatch-backend/internal/drivers"
	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/config"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/types"
	"gorm.io/gorm"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRepo struct {
	inserted []models.DriverLocation
	latest   *models.DriverLocation
	trail    []models.DriverLocation
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Insert(ctx context.Context, location *models.DriverLocation) error {
	location.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *location)
	return nil
}

func (s *stubRepo) Latest(ctx context.Context, driverID int64) (*models.DriverLocation, error) {
	if s.latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.latest, nil
}

func (s *stubRepo) ListSince(ctx context.Context, driverID int64, since time.Time) ([]models.DriverLocation, error) {
	var rows []models.DriverLocation
	for _, row := range s.trail {
		if row.DriverID == driverID && !row.RecordedAt.Before(since) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

type stubDriversRepo struct {
	driver *models.Driver
}

func (s *stubDriversRepo) WithTx(tx *gorm.DB) drivers.Repository { return s }

func (s *stubDriversRepo) FindByID(ctx context.Context, id int64) (*models.Driver, error) {
	panic("not implemented")
}

func (s *stubDriversRepo) FindByIDs(ctx context.Context, ids []int64) ([]models.Driver, error) {
	panic("not implemented")
}

func (s *stubDriversRepo) FindByUserID(ctx context.Context, userID int64) (*models.Driver, error) {
	if s.driver == nil || s.driver.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.driver, nil
}

func (s *stubDriversRepo) SetAvailability(ctx context.Context, driverID int64, available bool, onlineAt *time.Time) error {
	panic("not implemented")
}

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
	scopes     []string
}

func (s *stubLimiter) MinIntervalAllow(ctx context.Context, scope string, interval time.Duration) (bool, time.Duration, error) {
	s.scopes = append(s.scopes, scope)
	return s.allowed, s.retryAfter, s.err
}

type stubPublisher struct {
	published int
	err       error
}

func (s *stubPublisher) PublishTracking(ctx context.Context, data []byte, attrs map[string]string) error {
	s.published++
	return s.err
}

type stubNotifications struct {
	recorded  []models.Notification
	delivered []models.Notification
}

func (s *stubNotifications) Record(ctx context.Context, tx *gorm.DB, n *models.Notification) error {
	s.recorded = append(s.recorded, *n)
	return nil
}

func (s *stubNotifications) RecordBatch(ctx context.Context, tx *gorm.DB, ns []models.Notification) error {
	s.recorded = append(s.recorded, ns...)
	return nil
}

func (s *stubNotifications) Deliver(n models.Notification) {
	s.delivered = append(s.delivered, n)
}

func (s *stubNotifications) List(ctx context.Context, actor auth.Actor, limit int, unreadOnly bool) ([]models.Notification, error) {
	panic("not implemented")
}

func (s *stubNotifications) MarkRead(ctx context.Context, actor auth.Actor, id int64) error {
	panic("not implemented")
}

func (s *stubNotifications) MarkAllRead(ctx context.Context, actor auth.Actor) error {
	panic("not implemented")
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: discardWriter{}})
}

type fixture struct {
	svc       *service
	repo      *stubRepo
	limiter   *stubLimiter
	publisher *stubPublisher
	notices   *stubNotifications
}

func newFixture(t *testing.T, driver *models.Driver) *fixture {
	t.Helper()
	repo := &stubRepo{}
	limiter := &stubLimiter{allowed: true}
	publisher := &stubPublisher{}
	notices := &stubNotifications{}

	svc, err := NewService(
		stubTxRunner{},
		repo,
		&stubDriversRepo{driver: driver},
		limiter,
		publisher,
		notices,
		config.LocationsConfig{MinSubmitInterval: 5 * time.Second, ShiftLimit: 12 * time.Hour},
		testLogger(),
	)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return &fixture{
		svc:       svc.(*service),
		repo:      repo,
		limiter:   limiter,
		publisher: publisher,
		notices:   notices,
	}
}

func onlineDriver() *models.Driver {
	onlineAt := time.Now().UTC().Add(-1 * time.Hour)
	return &models.Driver{
		ID:           10,
		UserID:       50,
		Code:         "DRV",
		Available:    true,
		LastOnlineAt: &onlineAt,
	}
}

func driverActor() auth.Actor {
	return auth.Actor{UserID: 50, Role: enums.UserRoleDriver}
}

func TestSubmitStoresAndPublishes(t *testing.T) {
	f := newFixture(t, onlineDriver())

	location, err := f.svc.Submit(context.Background(), driverActor(), SubmitInput{
		Point: types.GeoPoint{Lat: 40.4168, Lng: -3.7038},
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if location.DriverID != 10 {
		t.Fatalf("expected driver 10 got %d", location.DriverID)
	}
	if location.RecordedAt.IsZero() {
		t.Fatal("expected RecordedAt defaulted to now")
	}
	if len(f.repo.inserted) != 1 {
		t.Fatalf("expected 1 insert got %d", len(f.repo.inserted))
	}
	if f.publisher.published != 1 {
		t.Fatalf("expected 1 publish got %d", f.publisher.published)
	}
	if len(f.limiter.scopes) != 1 || f.limiter.scopes[0] != "driver_location:10" {
		t.Fatalf("unexpected limiter scope %v", f.limiter.scopes)
	}
}

func TestSubmitNonDriverForbidden(t *testing.T) {
	f := newFixture(t, onlineDriver())

	_, err := f.svc.Submit(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleDispatcher}, SubmitInput{
		Point: types.GeoPoint{Lat: 1, Lng: 1},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN got %v", err)
	}
}

func TestSubmitInvalidCoordinates(t *testing.T) {
	f := newFixture(t, onlineDriver())

	_, err := f.svc.Submit(context.Background(), driverActor(), SubmitInput{
		Point: types.GeoPoint{Lat: 91, Lng: 0},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR got %v", err)
	}
	if len(f.repo.inserted) != 0 {
		t.Fatal("invalid sample must not be stored")
	}
}

func TestSubmitThrottledReturnsRetryHint(t *testing.T) {
	f := newFixture(t, onlineDriver())
	f.limiter.allowed = false
	f.limiter.retryAfter = 3200 * time.Millisecond

	_, err := f.svc.Submit(context.Background(), driverActor(), SubmitInput{
		Point: types.GeoPoint{Lat: 1, Lng: 1},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeRateLimit) {
		t.Fatalf("expected RATE_LIMITED got %v", err)
	}
	typed := pkgerrors.As(err)
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map got %T", typed.Details())
	}
	// 3.2s remaining rounds up to a 4 second hint.
	if details["retry_after_seconds"] != 4 {
		t.Fatalf("expected retry_after_seconds=4 got %v", details["retry_after_seconds"])
	}
	if len(f.repo.inserted) != 0 {
		t.Fatal("throttled sample must not be stored")
	}
	if f.publisher.published != 0 {
		t.Fatal("throttled sample must not be published")
	}
}

func TestSubmitLimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t, onlineDriver())
	f.limiter.allowed = false
	f.limiter.err = errors.New("redis down")

	if _, err := f.svc.Submit(context.Background(), driverActor(), SubmitInput{
		Point: types.GeoPoint{Lat: 1, Lng: 1},
	}); err != nil {
		t.Fatalf("expected fail-open acceptance got %v", err)
	}
	if len(f.repo.inserted) != 1 {
		t.Fatal("sample must be stored when the limiter is down")
	}
}

func TestSubmitPublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, onlineDriver())
	f.publisher.err = errors.New("pubsub down")

	if _, err := f.svc.Submit(context.Background(), driverActor(), SubmitInput{
		Point: types.GeoPoint{Lat: 1, Lng: 1},
	}); err != nil {
		t.Fatalf("publish failure must not fail the submit, got %v", err)
	}
	if len(f.repo.inserted) != 1 {
		t.Fatal("sample must be stored despite publish failure")
	}
}

func TestSubmitShiftLimitNotice(t *testing.T) {
	driver := onlineDriver()
	shiftStart := time.Now().UTC().Add(-13 * time.Hour)
	driver.LastOnlineAt = &shiftStart
	f := newFixture(t, driver)

	if _, err := f.svc.Submit(context.Background(), driverActor(), SubmitInput{
		Point: types.GeoPoint{Lat: 1, Lng: 1},
	}); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(f.notices.recorded) != 1 {
		t.Fatalf("expected shift limit notice got %d", len(f.notices.recorded))
	}
	if f.notices.recorded[0].Type != enums.NotificationTypeShiftLimit {
		t.Fatalf("unexpected notice type %s", f.notices.recorded[0].Type)
	}
	if f.notices.recorded[0].UserID != 50 {
		t.Fatalf("notice targeted wrong user %d", f.notices.recorded[0].UserID)
	}
	if len(f.notices.delivered) != 1 {
		t.Fatal("shift limit notice must be delivered")
	}

	// Repeats on the next sample while the courier stays online.
	if _, err := f.svc.Submit(context.Background(), driverActor(), SubmitInput{
		Point: types.GeoPoint{Lat: 1, Lng: 1},
	}); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(f.notices.recorded) != 2 {
		t.Fatalf("expected repeated notice got %d", len(f.notices.recorded))
	}
}

func TestSubmitNoShiftNoticeWhenOffline(t *testing.T) {
	driver := onlineDriver()
	driver.Available = false
	shiftStart := time.Now().UTC().Add(-13 * time.Hour)
	driver.LastOnlineAt = &shiftStart
	f := newFixture(t, driver)

	if _, err := f.svc.Submit(context.Background(), driverActor(), SubmitInput{
		Point: types.GeoPoint{Lat: 1, Lng: 1},
	}); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(f.notices.recorded) != 0 {
		t.Fatal("offline courier must not get a shift limit notice")
	}
}

func TestLatestRequiresStaff(t *testing.T) {
	f := newFixture(t, onlineDriver())

	_, err := f.svc.Latest(context.Background(), driverActor(), 10)
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN got %v", err)
	}
}

func TestLatestNotFound(t *testing.T) {
	f := newFixture(t, onlineDriver())

	_, err := f.svc.Latest(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleAdmin}, 10)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND got %v", err)
	}
}

func TestHistoryRequiresStaff(t *testing.T) {
	f := newFixture(t, onlineDriver())

	_, err := f.svc.History(context.Background(), driverActor(), 10, time.Time{})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN got %v", err)
	}
}

func TestHistoryReturnsWindow(t *testing.T) {
	f := newFixture(t, onlineDriver())
	now := time.Now().UTC()
	f.repo.trail = []models.DriverLocation{
		{ID: 1, DriverID: 10, RecordedAt: now.Add(-3 * time.Hour)},
		{ID: 2, DriverID: 10, RecordedAt: now.Add(-10 * time.Minute)},
		{ID: 3, DriverID: 11, RecordedAt: now.Add(-5 * time.Minute)},
	}

	rows, err := f.svc.History(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleAdmin}, 10, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 2 {
		t.Fatalf("expected only the recent row for driver 10, got %+v", rows)
	}
}

func TestHistoryDefaultsToLastHour(t *testing.T) {
	f := newFixture(t, onlineDriver())
	now := time.Now().UTC()
	f.repo.trail = []models.DriverLocation{
		{ID: 1, DriverID: 10, RecordedAt: now.Add(-2 * time.Hour)},
		{ID: 2, DriverID: 10, RecordedAt: now.Add(-10 * time.Minute)},
	}

	rows, err := f.svc.History(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleAdmin}, 10, time.Time{})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 2 {
		t.Fatalf("expected the last hour only, got %+v", rows)
	}
}

func TestLatestReturnsNewestRow(t *testing.T) {
	f := newFixture(t, onlineDriver())
	f.repo.latest = &models.DriverLocation{ID: 3, DriverID: 10, Point: types.GeoPoint{Lat: 2, Lng: 2}}

	row, err := f.svc.Latest(context.Background(), auth.Actor{UserID: 1, Role: enums.UserRoleAdmin}, 10)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if row.ID != 3 {
		t.Fatalf("expected row 3 got %d", row.ID)
	}
}
