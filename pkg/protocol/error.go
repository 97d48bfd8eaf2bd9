package protocol

// ErrorCode classifies request failures delivered on error events.
type ErrorCode string

const (
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeForbidden      ErrorCode = "forbidden"
	CodeRateLimited    ErrorCode = "rate_limited"
	CodeIllegalMove    ErrorCode = "illegal_move"
	CodeNotFound       ErrorCode = "not_found"
	CodeInvalidContent ErrorCode = "invalid_content"
)

// ErrorPayload is the payload of error/moveError/chatError events.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}
