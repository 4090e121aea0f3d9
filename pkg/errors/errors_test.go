package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	base := New(CodeNotFound, "order not found")
	wrapped := fmt.Errorf("loading order: %w", base)

	require.True(t, HasCode(wrapped, CodeNotFound))
	require.False(t, HasCode(wrapped, CodeForbidden))
	require.False(t, HasCode(stdErrors.New("plain"), CodeNotFound))
	require.False(t, HasCode(nil, CodeNotFound))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeInternal, cause, "saving order")

	require.ErrorIs(t, err, cause)
	require.Equal(t, CodeInternal, err.Code())
	require.Equal(t, "saving order", err.Message())
}

func TestRateLimitedCarriesRetryHint(t *testing.T) {
	err := RateLimited("too many samples", 4)

	require.Equal(t, CodeRateLimit, err.Code())
	details, ok := err.Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, 4, details["retry_after_seconds"])

	meta := MetadataFor(err.Code())
	require.Equal(t, http.StatusTooManyRequests, meta.HTTPStatus)
	require.True(t, meta.Retryable)
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_NEW"))
	require.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeStateConflict, "cannot assign").WithDetails(map[string]any{"current_status": "delivered"})
	typed := As(fmt.Errorf("outer: %w", err))

	require.NotNil(t, typed)
	require.Equal(t, CodeStateConflict, typed.Code())
	require.Nil(t, As(stdErrors.New("plain")))
}
