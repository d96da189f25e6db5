package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReqError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("disk I/O error")

	reqErr := New(ErrCodeItemPut, "failed to store fragment", originalErr)

	require.NotNil(t, reqErr)
	assert.Equal(t, originalErr, errors.Unwrap(reqErr))
	assert.True(t, errors.Is(reqErr, originalErr))
}

func TestReqError_Error_ReturnsFormattedMessage(t *testing.T) {
	err := New(ErrCodeUnknownKind, "unknown task kind: reindex", nil)
	assert.Equal(t, "[ERR_412_UNKNOWN_KIND] unknown task kind: reindex", err.Error())
}

func TestReqError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeStoreOpen, "open a", nil)
	err2 := New(ErrCodeStoreOpen, "open b", nil)
	err3 := New(ErrCodeStoreClear, "clear", nil)

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestReqError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeItemDelete, "delete failed", nil).
		WithDetail("request_id", "r1").
		WithDetail("fragment_id", "abc")

	assert.Equal(t, "r1", err.Details["request_id"])
	assert.Equal(t, "abc", err.Details["fragment_id"])
}

func TestReqError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeStoreOpen, CategoryStoreFatal},
		{ErrCodeStoreClear, CategoryStoreFatal},
		{ErrCodeStoreLocked, CategoryStoreFatal},
		{ErrCodeItemPut, CategoryStoreItem},
		{ErrCodeItemDelete, CategoryStoreItem},
		{ErrCodeItemRead, CategoryStoreItem},
		{ErrCodeDocNotFound, CategoryNotFound},
		{ErrCodeDocConflict, CategoryConflict},
		{ErrCodeDaemonUnavailable, CategoryTransport},
		{ErrCodeInvalidURL, CategoryParse},
		{ErrCodeEmptyURL, CategoryParse},
		{ErrCodeMalformedMessage, CategoryProtocol},
		{ErrCodeUnknownKind, CategoryProtocol},
		{ErrCodeInvalidMode, CategoryProtocol},
		{ErrCodeWorkerPoisoned, CategoryStoreFatal},
		{ErrCodeTaskCanceled, CategoryCanceled},
		{ErrCodeWorkerClosed, CategoryCanceled},
		{ErrCodeInternal, CategoryInternal},
		{"BAD", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, "msg", nil).Category)
		})
	}
}

func TestReqError_SeverityFromCode(t *testing.T) {
	assert.Equal(t, SeverityFatal, New(ErrCodeStoreOpen, "x", nil).Severity)
	assert.Equal(t, SeverityFatal, New(ErrCodeWorkerPoisoned, "x", nil).Severity)
	assert.Equal(t, SeverityWarning, New(ErrCodeInvalidURL, "x", nil).Severity)
	assert.Equal(t, SeverityWarning, New(ErrCodeDaemonUnavailable, "x", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeItemPut, "x", nil).Severity)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeDaemonUnavailable, "dial", nil)))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", New(ErrCodeDaemonTimeout, "t", nil))))
	assert.False(t, IsRetryable(New(ErrCodeItemPut, "put", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	assert.True(t, IsFatal(StoreFatalError(ErrCodeStoreClear, "clear failed", nil)))
	assert.True(t, IsFatal(fmt.Errorf("task: %w", New(ErrCodeStoreOpen, "open", nil))))
	assert.False(t, IsFatal(StoreItemError(ErrCodeItemPut, "put", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestToInfo(t *testing.T) {
	t.Run("structured error keeps category and code", func(t *testing.T) {
		info := ToInfo(fmt.Errorf("ctx: %w", ProtocolError(ErrCodeUnknownKind, "unknown task kind: x", nil)))
		require.NotNil(t, info)
		assert.Equal(t, CategoryProtocol, info.Category)
		assert.Equal(t, ErrCodeUnknownKind, info.Code)
		assert.Equal(t, "unknown task kind: x", info.Message)
	})

	t.Run("plain error is internal", func(t *testing.T) {
		info := ToInfo(errors.New("boom"))
		assert.Equal(t, CategoryInternal, info.Category)
		assert.Equal(t, "boom", info.Message)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ToInfo(nil))
	})

	t.Run("info is an error", func(t *testing.T) {
		var err error = &Info{Category: CategoryCanceled, Message: "task canceled"}
		assert.Equal(t, "Canceled: task canceled", err.Error())
	})
}

func TestGetCodeAndCategory(t *testing.T) {
	err := fmt.Errorf("outer: %w", ParseError("not a url", nil))
	assert.Equal(t, ErrCodeInvalidURL, GetCode(err))
	assert.Equal(t, CategoryParse, GetCategory(err))
	assert.Equal(t, "", GetCode(errors.New("x")))
	assert.Equal(t, CategoryInternal, GetCategory(errors.New("x")))
}
