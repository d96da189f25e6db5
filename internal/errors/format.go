package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// asReqError returns the ReqError in err's chain, wrapping anything else as internal.
func asReqError(err error) *ReqError {
	var re *ReqError
	if errors.As(err, &re) {
		return re
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI renders err for the terminal: message, then hint, details and code.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	re := asReqError(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", re.Message)
	if re.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", re.Suggestion)
	}
	for _, k := range slices.Sorted(maps.Keys(re.Details)) {
		fmt.Fprintf(&sb, "  %s: %s\n", k, re.Details[k])
	}
	fmt.Fprintf(&sb, "  Code: %s (%s)\n", re.Code, re.Category)
	return sb.String()
}

type jsonError struct {
	Error struct {
		Info
		Details    map[string]string `json:"details,omitempty"`
		Suggestion string            `json:"suggestion,omitempty"`
		Cause      string            `json:"cause,omitempty"`
		Retryable  bool              `json:"retryable"`
	} `json:"error"`
}

// FormatJSON renders err as {"error": {...}} for commands run with --json.
// The category, code and message fields match the task protocol's error form.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return []byte("null"), nil
	}
	re := asReqError(err)

	var je jsonError
	je.Error.Info = *ToInfo(re)
	je.Error.Details = re.Details
	je.Error.Suggestion = re.Suggestion
	je.Error.Retryable = re.Retryable
	if re.Cause != nil {
		je.Error.Cause = re.Cause.Error()
	}
	return json.Marshal(je)
}

// LogAttr returns err as an "error" log attribute. A ReqError becomes a group
// carrying its code and category; any other error stays a plain string.
func LogAttr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	var re *ReqError
	if !errors.As(err, &re) {
		return slog.String("error", err.Error())
	}
	attrs := []any{
		slog.String("code", re.Code),
		slog.String("category", string(re.Category)),
		slog.String("message", re.Message),
	}
	if re.Cause != nil {
		attrs = append(attrs, slog.String("cause", re.Cause.Error()))
	}
	return slog.Group("error", attrs...)
}
