// Package mcp exposes the URL index over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// Custom MCP error codes for reqfind.
const (
	// ErrCodeStoreUnavailable indicates the index store could not be opened.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeCanceled indicates the task was canceled before it ran.
	ErrCodeCanceled = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var reqErr *reqerrors.ReqError
	if errors.As(err, &reqErr) {
		return mapReqError(reqErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeCanceled, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapReqError(re *reqerrors.ReqError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	switch re.Category {
	case reqerrors.CategoryProtocol, reqerrors.CategoryParse:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case reqerrors.CategoryStoreFatal:
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: message}
	case reqerrors.CategoryCanceled:
		return &MCPError{Code: ErrCodeCanceled, Message: message}
	case reqerrors.CategoryTransport:
		if re.Code == reqerrors.ErrCodeDaemonTimeout {
			return &MCPError{Code: ErrCodeTimeout, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
