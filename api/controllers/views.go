package controllers

import (
	"time"

	"github.com/fleetline/dispatch-backend/pkg/db/models"
	"github.com/fleetline/dispatch-backend/pkg/types"
	"github.com/shopspring/decimal"
)

type orderView struct {
	ID            int64           `json:"id"`
	Reference     string          `json:"reference"`
	Status        string          `json:"status"`
	DriverID      *int64          `json:"driver_id"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	WarehouseID   int64           `json:"warehouse_id"`
	Notes         string          `json:"notes,omitempty"`
	AssignedAt    *time.Time      `json:"assigned_at"`
	PickedUpAt    *time.Time      `json:"picked_up_at"`
	DeliveredAt   *time.Time      `json:"delivered_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func newOrderView(order *models.Order) orderView {
	return orderView{
		ID:            order.ID,
		Reference:     order.Reference,
		Status:        string(order.Status),
		DriverID:      order.DriverID,
		Total:         order.Total,
		PaymentMethod: string(order.PaymentMethod),
		WarehouseID:   order.WarehouseID,
		Notes:         order.Notes,
		AssignedAt:    order.AssignedAt,
		PickedUpAt:    order.PickedUpAt,
		DeliveredAt:   order.DeliveredAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

type historyView struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newHistoryViews(entries []models.OrderStatusHistory) []historyView {
	views := make([]historyView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, historyView{
			ID:        entry.ID,
			Status:    string(entry.Status),
			Notes:     entry.Notes,
			CreatedAt: entry.CreatedAt,
		})
	}
	return views
}

type driverView struct {
	ID           int64      `json:"id"`
	Code         string     `json:"code"`
	Vehicle      string     `json:"vehicle"`
	Available    bool       `json:"available"`
	WarehouseID  *int64     `json:"warehouse_id"`
	LastOnlineAt *time.Time `json:"last_online_at"`
}

func newDriverView(driver *models.Driver) driverView {
	return driverView{
		ID:           driver.ID,
		Code:         driver.Code,
		Vehicle:      string(driver.Vehicle),
		Available:    driver.Available,
		WarehouseID:  driver.WarehouseID,
		LastOnlineAt: driver.LastOnlineAt,
	}
}

type locationView struct {
	ID         int64          `json:"id"`
	DriverID   int64          `json:"driver_id"`
	Point      types.GeoPoint `json:"point"`
	RecordedAt time.Time      `json:"recorded_at"`
}

func newLocationView(location *models.DriverLocation) locationView {
	return locationView{
		ID:         location.ID,
		DriverID:   location.DriverID,
		Point:      location.Point,
		RecordedAt: location.RecordedAt,
	}
}

func newLocationViews(rows []models.DriverLocation) []locationView {
	views := make([]locationView, 0, len(rows))
	for i := range rows {
		views = append(views, newLocationView(&rows[i]))
	}
	return views
}

type notificationView struct {
	ID        int64             `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	ReadAt    *time.Time        `json:"read_at"`
	CreatedAt time.Time         `json:"created_at"`
}

func newNotificationViews(rows []models.Notification) []notificationView {
	views := make([]notificationView, 0, len(rows))
	for _, row := range rows {
		views = append(views, notificationView{
			ID:        row.ID,
			Type:      string(row.Type),
			Title:     row.Title,
			Body:      row.Body,
			Data:      row.Data,
			ReadAt:    row.ReadAt,
			CreatedAt: row.CreatedAt,
		})
	}
	return views
}
