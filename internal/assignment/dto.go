package assignment

import (
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
)

// Pair couples one order with the driver it should go to.
type Pair struct {
	OrderID  int64
	DriverID int64
}

// BatchInput is a bulk assignment request. AccessibleWarehouseIDs is the
// actor's warehouse scope: nil means unrestricted, a non-nil set skips pairs
// whose order belongs to a warehouse outside it, without error.
type BatchInput struct {
	Pairs                  []Pair
	AccessibleWarehouseIDs []int64
}

// PairError reports why one pair in a batch failed; other pairs proceed.
type PairError struct {
	OrderID  int64          `json:"order_id"`
	DriverID int64          `json:"driver_id"`
	Code     pkgerrors.Code `json:"code"`
	Message  string         `json:"message"`
}

// BatchResult summarizes a bulk assignment run.
type BatchResult struct {
	AssignedCount int         `json:"assigned_count"`
	SkippedCount  int         `json:"skipped_count"`
	Errors        []PairError `json:"errors,omitempty"`
}
