package locations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fleetline/dispatch-backend/internal/drivers"
	"github.com/fleetline/dispatch-backend/internal/notifications"
	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/config"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/types"
	"gorm.io/gorm"
)

// EventTypeLocationUpdate is the type attribute stamped on tracking events.
const EventTypeLocationUpdate = "location_update"

// TrackingEvent is the payload published to the tracking topic and relayed
// verbatim to realtime subscribers.
type TrackingEvent struct {
	Type            string         `json:"type"`
	DriverID        int64          `json:"driver_id"`
	Point           types.GeoPoint `json:"point"`
	CapturedAt      time.Time      `json:"captured_at"`
	DriverAvailable bool           `json:"driver_available"`
}

// SubmitInput is one GPS sample from a courier device.
type SubmitInput struct {
	Point      types.GeoPoint
	RecordedAt time.Time
}

type rateLimiter interface {
	MinIntervalAllow(ctx context.Context, scope string, interval time.Duration) (bool, time.Duration, error)
}

type eventPublisher interface {
	PublishTracking(ctx context.Context, data []byte, attrs map[string]string) error
}

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service ingests courier GPS samples: throttle, persist, publish.
type Service interface {
	Submit(ctx context.Context, actor auth.Actor, input SubmitInput) (*models.DriverLocation, error)
	Latest(ctx context.Context, actor auth.Actor, driverID int64) (*models.DriverLocation, error)
	History(ctx context.Context, actor auth.Actor, driverID int64, since time.Time) ([]models.DriverLocation, error)
}

type service struct {
	tx            transactor
	repo          Repository
	driversRepo   drivers.Repository
	limiter       rateLimiter
	publisher     eventPublisher
	notifications notifications.Service
	cfg           config.LocationsConfig
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(
	tx transactor,
	repo Repository,
	driversRepo drivers.Repository,
	limiter rateLimiter,
	publisher eventPublisher,
	notificationsSvc notifications.Service,
	cfg config.LocationsConfig,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil || repo == nil || driversRepo == nil {
		return nil, errors.New("transactor and repositories are required")
	}
	if notificationsSvc == nil {
		return nil, errors.New("notifications service is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.MinSubmitInterval <= 0 {
		cfg.MinSubmitInterval = 5 * time.Second
	}
	if cfg.ShiftLimit <= 0 {
		cfg.ShiftLimit = 12 * time.Hour
	}
	return &service{
		tx:            tx,
		repo:          repo,
		driversRepo:   driversRepo,
		limiter:       limiter,
		publisher:     publisher,
		notifications: notificationsSvc,
		cfg:           cfg,
		logg:          logg,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Submit accepts one GPS sample from the calling courier. Samples inside
// the minimum interval are rejected with a retry hint; a limiter outage
// fails open so tracking keeps flowing. The persisted row is authoritative,
// the published event is best effort.
func (s *service) Submit(ctx context.Context, actor auth.Actor, input SubmitInput) (*models.DriverLocation, error) {
	if actor.Role != enums.UserRoleDriver {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only drivers submit locations")
	}

	driver, err := s.driversRepo.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "driver profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading driver profile")
	}

	if !input.Point.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}

	ctx = s.logg.WithDriverID(ctx, driver.ID)

	if s.limiter != nil {
		scope := fmt.Sprintf("driver_location:%d", driver.ID)
		allowed, retryAfter, err := s.limiter.MinIntervalAllow(ctx, scope, s.cfg.MinSubmitInterval)
		if err != nil {
			// Limiter outage must not break tracking; accept the sample.
			s.logg.Warn(ctx, "location rate limiter unavailable, accepting sample")
		} else if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			return nil, pkgerrors.RateLimited("location submitted too frequently", seconds)
		}
	}

	now := s.now()
	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = now
	}

	location := &models.DriverLocation{
		DriverID:   driver.ID,
		Point:      input.Point,
		RecordedAt: recordedAt.UTC(),
		CreatedAt:  now,
	}
	if err := s.repo.Insert(ctx, location); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing location")
	}

	s.publishEvent(ctx, driver, location)
	s.checkShiftLimit(ctx, driver, now)

	return location, nil
}

func (s *service) Latest(ctx context.Context, actor auth.Actor, driverID int64) (*models.DriverLocation, error) {
	if !actor.IsDispatchStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only dispatch staff may read driver locations")
	}
	row, err := s.repo.Latest(ctx, driverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no location recorded for driver")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading latest location")
	}
	return row, nil
}

// History returns the stored trail for one driver from the given moment
// onward. A zero since defaults to the last hour.
func (s *service) History(ctx context.Context, actor auth.Actor, driverID int64, since time.Time) ([]models.DriverLocation, error) {
	if !actor.IsDispatchStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only dispatch staff may read driver locations")
	}
	if since.IsZero() {
		since = s.now().Add(-time.Hour)
	}
	rows, err := s.repo.ListSince(ctx, driverID, since.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading location history")
	}
	return rows, nil
}

// publishEvent emits the sample to the tracking topic. Publish failures are
// logged and swallowed; the row is already stored.
func (s *service) publishEvent(ctx context.Context, driver *models.Driver, location *models.DriverLocation) {
	if s.publisher == nil {
		return
	}

	event := TrackingEvent{
		Type:            EventTypeLocationUpdate,
		DriverID:        driver.ID,
		Point:           location.Point,
		CapturedAt:      location.RecordedAt,
		DriverAvailable: driver.Available,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logg.Error(ctx, "encoding tracking event", err)
		return
	}

	attrs := map[string]string{
		"type":      EventTypeLocationUpdate,
		"driver_id": fmt.Sprintf("%d", driver.ID),
	}
	if err := s.publisher.PublishTracking(ctx, payload, attrs); err != nil {
		s.logg.Warn(ctx, "tracking event publish failed")
	}
}

// checkShiftLimit nudges couriers who have been online past the shift
// limit. The notice repeats on later samples until they go offline.
func (s *service) checkShiftLimit(ctx context.Context, driver *models.Driver, now time.Time) {
	if !driver.Available || driver.LastOnlineAt == nil {
		return
	}
	online := now.Sub(*driver.LastOnlineAt)
	if online < s.cfg.ShiftLimit {
		return
	}

	notice := &models.Notification{
		UserID: driver.UserID,
		Type:   enums.NotificationTypeShiftLimit,
		Title:  "Shift limit reached",
		Body:   fmt.Sprintf("You have been online for %s, take a break", online.Round(time.Minute)),
		Data:   types.JSONMap{"online_hours": fmt.Sprintf("%.1f", online.Hours())},
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.notifications.Record(ctx, tx, notice)
	})
	if err != nil {
		s.logg.Error(ctx, "recording shift limit notification", err)
		return
	}
	s.notifications.Deliver(*notice)
}
