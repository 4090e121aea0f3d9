package notifications

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/fleetline/dispatch-backend/internal/users"
	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/push"
)

// Dispatcher delivers stored notifications over push, off the request path.
// Enqueue never blocks; when the queue is full the delivery attempt is
// dropped and only the durable in-app row remains.
type Dispatcher struct {
	queue chan deliveryJob

	users    users.Repository
	repo     Repository
	push     push.Client
	logg     *logger.Logger
	shutdown sync.Once
	done     chan struct{}
}

type deliveryJob struct {
	notificationID int64
	userID         int64
	title          string
	body           string
	data           map[string]string
}

func NewDispatcher(queueSize int, usersRepo users.Repository, repo Repository, pushClient push.Client, logg *logger.Logger) (*Dispatcher, error) {
	if usersRepo == nil || repo == nil || logg == nil {
		return nil, errors.New("users repository, notifications repository and logger are required")
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		queue: make(chan deliveryJob, queueSize),
		users: usersRepo,
		repo:  repo,
		push:  pushClient,
		logg:  logg,
		done:  make(chan struct{}),
	}, nil
}

// Enqueue schedules a push delivery attempt for a stored notification.
// Returns false when the queue is saturated and the attempt was dropped.
func (d *Dispatcher) Enqueue(n models.Notification) bool {
	job := deliveryJob{
		notificationID: n.ID,
		userID:         n.UserID,
		title:          n.Title,
		body:           n.Body,
		data:           pushData(n),
	}
	select {
	case d.queue <- job:
		return true
	default:
		ctx := d.logg.WithUserID(context.Background(), n.UserID)
		d.logg.Warn(ctx, "notification delivery queue full, dropping push attempt")
		return false
	}
}

// Run consumes the queue until ctx is cancelled. Call in its own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.shutdown.Do(func() { close(d.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.queue:
			d.deliver(ctx, job)
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) deliver(ctx context.Context, job deliveryJob) {
	if d.push == nil {
		return
	}

	ctx = d.logg.WithFields(ctx, map[string]any{
		"user_id":         job.userID,
		"notification_id": job.notificationID,
	})

	deliverCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	user, err := d.users.FindByID(deliverCtx, job.userID)
	if err != nil {
		d.logg.Warn(ctx, "notification delivery skipped, user lookup failed")
		return
	}
	if user.DeviceToken == nil || *user.DeviceToken == "" {
		return
	}

	_, err = d.push.SendToToken(deliverCtx, *user.DeviceToken, job.title, job.body, job.data)
	if errors.Is(err, push.ErrInvalidToken) {
		// Stale token; clear it so future attempts are skipped upfront.
		if clearErr := d.users.SetDeviceToken(deliverCtx, job.userID, nil); clearErr != nil {
			d.logg.Error(ctx, "clearing stale device token", clearErr)
		}
		return
	}
	if err != nil {
		d.logg.Warn(ctx, "push delivery failed")
		return
	}

	if err := d.repo.MarkSent(deliverCtx, job.notificationID, time.Now().UTC()); err != nil {
		d.logg.Error(ctx, "marking notification sent", err)
	}
}

func pushData(n models.Notification) map[string]string {
	data := map[string]string{
		"notification_id": strconv.FormatInt(n.ID, 10),
		"type":            string(n.Type),
	}
	for k, v := range n.Data {
		data[k] = v
	}
	return data
}
