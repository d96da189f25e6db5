// Package errors provides structured error handling for reqfind.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 20X: Fatal index store errors
//   - 21X: Per-item index store errors
//   - 22X: Document store errors
//   - 3XX: Transport errors
//   - 40X: URL parse errors
//   - 41X: Protocol errors
//   - 5XX: Worker and internal errors
package errors

// Category is the error category reported to callers in task responses.
type Category string

const (
	// CategoryParse marks a URL that could not be structurally decomposed.
	CategoryParse Category = "ParseError"
	// CategoryStoreItem marks a single fragment that failed inside a bulk operation.
	CategoryStoreItem Category = "StoreItemError"
	// CategoryStoreFatal marks an index store that could not be opened or cleared.
	CategoryStoreFatal Category = "StoreFatalError"
	// CategoryProtocol marks a malformed task message or unknown task kind.
	CategoryProtocol Category = "ProtocolError"
	// CategoryCanceled marks a queued task that was removed before it started.
	CategoryCanceled Category = "Canceled"
	// CategoryConflict marks a document revision mismatch.
	CategoryConflict Category = "Conflict"
	// CategoryNotFound marks a missing document.
	CategoryNotFound Category = "NotFound"
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "ConfigError"
	// CategoryTransport indicates daemon connection errors.
	CategoryTransport Category = "TransportError"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "InternalError"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Fatal index store errors (200-209)
	ErrCodeStoreOpen    = "ERR_201_STORE_OPEN"
	ErrCodeStoreClear   = "ERR_202_STORE_CLEAR"
	ErrCodeStoreLocked  = "ERR_203_STORE_LOCKED"
	ErrCodeCorruptIndex = "ERR_204_CORRUPT_INDEX"

	// Per-item index store errors (210-219)
	ErrCodeItemPut    = "ERR_211_ITEM_PUT"
	ErrCodeItemDelete = "ERR_212_ITEM_DELETE"
	ErrCodeItemRead   = "ERR_213_ITEM_READ"

	// Document store errors (220-229)
	ErrCodeDocNotFound = "ERR_221_DOC_NOT_FOUND"
	ErrCodeDocConflict = "ERR_222_DOC_CONFLICT"

	// Transport errors (300-399)
	ErrCodeDaemonUnavailable = "ERR_301_DAEMON_UNAVAILABLE"
	ErrCodeDaemonTimeout     = "ERR_302_DAEMON_TIMEOUT"

	// URL parse errors (400-409)
	ErrCodeInvalidURL = "ERR_401_INVALID_URL"
	ErrCodeEmptyURL   = "ERR_402_EMPTY_URL"

	// Protocol errors (410-419)
	ErrCodeMalformedMessage = "ERR_411_MALFORMED_MESSAGE"
	ErrCodeUnknownKind      = "ERR_412_UNKNOWN_KIND"
	ErrCodeInvalidPayload   = "ERR_413_INVALID_PAYLOAD"
	ErrCodeInvalidMode      = "ERR_414_INVALID_MODE"

	// Worker and internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeWorkerPoisoned = "ERR_502_WORKER_POISONED"
	ErrCodeTaskCanceled   = "ERR_503_TASK_CANCELED"
	ErrCodeWorkerClosed   = "ERR_504_WORKER_CLOSED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "211" from "ERR_211_ITEM_PUT")
	num := code[4:7]

	switch num[0] {
	case '1':
		return CategoryConfig
	case '2':
		switch num[1] {
		case '0':
			return CategoryStoreFatal
		case '1':
			return CategoryStoreItem
		}
		if code == ErrCodeDocConflict {
			return CategoryConflict
		}
		return CategoryNotFound
	case '3':
		return CategoryTransport
	case '4':
		if num[1] == '0' {
			return CategoryParse
		}
		return CategoryProtocol
	}

	switch code {
	case ErrCodeWorkerPoisoned:
		return CategoryStoreFatal
	case ErrCodeTaskCanceled, ErrCodeWorkerClosed:
		return CategoryCanceled
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryStoreFatal:
		return SeverityFatal
	case CategoryParse:
		// Parse errors degrade to a fallback fragment
		return SeverityWarning
	}

	// Retryable transport errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeDaemonUnavailable, ErrCodeDaemonTimeout:
		return true
	default:
		return false
	}
}
