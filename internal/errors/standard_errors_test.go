package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAndKindOf(t *testing.T) {
	err := New(KindNotFound, "chunk missing")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindConflict))
}

func TestKindOfNonStandardError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(assertError{}))
	assert.Equal(t, Kind(""), KindOf(nil))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestWrapPreservesCause(t *testing.T) {
	cause := assertError{}
	wrapped := Wrap(KindStorageUnavailable, "insert chunk", cause)
	assert.Equal(t, KindStorageUnavailable, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestNewTimeoutDetails(t *testing.T) {
	err := NewTimeout("vector_search", 5*time.Second, 7*time.Second)
	assert.Equal(t, KindTimeout, err.ErrorInfo.Kind)
	assert.Equal(t, "vector_search", err.ErrorInfo.Details["operation"])
	assert.Equal(t, "5s", err.ErrorInfo.Details["timeout"])
	assert.Equal(t, "7s", err.ErrorInfo.Details["elapsed"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindTimeout, "x")))
	assert.True(t, IsRetryable(New(KindStorageUnavailable, "x")))
	assert.True(t, IsRetryable(NewCircuitOpen("l2-cache")))
	assert.False(t, IsRetryable(New(KindInvalidArgument, "x")))
	assert.False(t, IsRetryable(New(KindConflict, "x")))
}

func TestWithDetailAndTraceID(t *testing.T) {
	err := New(KindInternal, "boom").WithDetail("retries", 3).WithTraceID("trace-1")
	assert.Equal(t, 3, err.ErrorInfo.Details["retries"])
	assert.Equal(t, "trace-1", err.ErrorInfo.TraceID)
}
