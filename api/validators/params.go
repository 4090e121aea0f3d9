package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
)

// ParseIDParam extracts a positive numeric id from the chi route.
func ParseIDParam(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "path parameter must be a positive id").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryTime reads an optional RFC3339 timestamp; absent returns zero.
func ParseQueryTime(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be an RFC3339 timestamp").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

func ParseQueryBool(r *http.Request, key string) bool {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	value, err := strconv.ParseBool(raw)
	return err == nil && value
}
