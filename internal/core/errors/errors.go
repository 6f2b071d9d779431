package errors

const (
	HttpInternalError       = "internal_error"
	HttpInvalidJsonError    = "invalid_json"
	HttpInvalidCommandError = "invalid_command"
	HttpUnknownAccountError = "unknown_account"
	HttpConflictError       = "conflict"
)

// ErrorResponse is the error response body for ledger API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
