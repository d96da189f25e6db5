package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI(t *testing.T) {
	// Given: a fatal store error with a hint and a detail
	err := New(ErrCodeCorruptIndex, "index is corrupted", nil).
		WithSuggestion("Run 'reqfind clear' and reindex").
		WithDetail("path", "/data/index.db")

	// When: formatting for the terminal
	result := FormatForCLI(err)

	// Then: message, hint, detail and code appear in that order
	assert.Equal(t,
		"Error: index is corrupted\n"+
			"  Hint: Run 'reqfind clear' and reindex\n"+
			"  path: /data/index.db\n"+
			"  Code: ERR_204_CORRUPT_INDEX (StoreFatalError)\n",
		result)
}

func TestFormatForCLI_WrappedAndPlainErrors(t *testing.T) {
	wrapped := fmt.Errorf("index task: %w", New(ErrCodeItemPut, "fragment not stored", nil))
	assert.Contains(t, FormatForCLI(wrapped), "Error: fragment not stored\n")

	plain := FormatForCLI(errors.New("boom"))
	assert.Contains(t, plain, "Error: boom\n")
	assert.Contains(t, plain, ErrCodeInternal)

	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(ErrCodeDaemonUnavailable, "failed to connect", cause).
		WithSuggestion("Start the daemon with: reqfind serve")

	data, ferr := FormatJSON(err)
	require.NoError(t, ferr)

	var got struct {
		Error struct {
			Category   string `json:"category"`
			Code       string `json:"code"`
			Message    string `json:"message"`
			Suggestion string `json:"suggestion"`
			Cause      string `json:"cause"`
			Retryable  bool   `json:"retryable"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, string(CategoryTransport), got.Error.Category)
	assert.Equal(t, ErrCodeDaemonUnavailable, got.Error.Code)
	assert.Equal(t, "failed to connect", got.Error.Message)
	assert.Equal(t, "Start the daemon with: reqfind serve", got.Error.Suggestion)
	assert.Equal(t, "connection refused", got.Error.Cause)
	assert.True(t, got.Error.Retryable)
}

func TestFormatJSON_PlainAndNil(t *testing.T) {
	data, err := FormatJSON(errors.New("boom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"code":"`+ErrCodeInternal+`"`)

	data, err = FormatJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestLogAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Warn("task_failed", LogAttr(New(ErrCodeStoreLocked, "index locked", errors.New("flock held"))))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	group, ok := entry["error"].(map[string]any)
	require.True(t, ok, "ReqError logs as a group")
	assert.Equal(t, ErrCodeStoreLocked, group["code"])
	assert.Equal(t, "index locked", group["message"])
	assert.Equal(t, "flock held", group["cause"])
	assert.Equal(t, string(CategoryStoreFatal), group["category"])

	plain := LogAttr(errors.New("boom"))
	assert.Equal(t, "error", plain.Key)
	assert.Equal(t, slog.KindString, plain.Value.Kind())
	assert.Equal(t, "boom", plain.Value.String())
}
