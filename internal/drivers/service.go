package drivers

import (
	"context"
	"errors"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"gorm.io/gorm"
)

// Service handles driver profile self-service.
type Service interface {
	Profile(ctx context.Context, actor auth.Actor) (*models.Driver, error)
	SetAvailability(ctx context.Context, actor auth.Actor, available bool) (*models.Driver, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("drivers repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Profile(ctx context.Context, actor auth.Actor) (*models.Driver, error) {
	return s.ownProfile(ctx, actor)
}

// SetAvailability toggles whether the driver accepts work. Going online
// stamps LastOnlineAt so shift length can be computed; going offline keeps
// the old stamp.
func (s *service) SetAvailability(ctx context.Context, actor auth.Actor, available bool) (*models.Driver, error) {
	driver, err := s.ownProfile(ctx, actor)
	if err != nil {
		return nil, err
	}

	var onlineAt *time.Time
	if available && !driver.Available {
		now := time.Now().UTC()
		onlineAt = &now
	}

	if err := s.repo.SetAvailability(ctx, driver.ID, available, onlineAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating driver availability")
	}

	driver.Available = available
	if onlineAt != nil {
		driver.LastOnlineAt = onlineAt
	}

	ctx = s.logg.WithDriverID(ctx, driver.ID)
	s.logg.Info(ctx, "driver availability updated")
	return driver, nil
}

func (s *service) ownProfile(ctx context.Context, actor auth.Actor) (*models.Driver, error) {
	if actor.Role != enums.UserRoleDriver {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only drivers have a courier profile")
	}
	driver, err := s.repo.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "driver profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading driver profile")
	}
	return driver, nil
}
