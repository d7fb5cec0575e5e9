package protocol

import "github.com/amcp-dev/amcp/errors"

// ErrorCode is a wire-level error identifier shared across the HTTP, WS,
// and SSE surfaces, and the ACP ingest path, so a client only ever learns
// one error vocabulary regardless of which transport it used.
type ErrorCode string

const (
	ErrBadRequest       ErrorCode = "BAD_REQUEST"
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	ErrAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	ErrSessionBusy      ErrorCode = "SESSION_BUSY"
	ErrAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	ErrInternal         ErrorCode = "INTERNAL_ERROR"
	ErrToolError        ErrorCode = "TOOL_ERROR"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrProtocol         ErrorCode = "PROTOCOL_ERROR"
	ErrUnsupported      ErrorCode = "UNSUPPORTED_ACTION"
)

// httpStatus maps each ErrorCode to the HTTP status the REST surface
// answers with; the WS/SSE surfaces carry the code itself and ignore this.
var httpStatus = map[ErrorCode]int{
	ErrBadRequest:      400,
	ErrValidation:      400,
	ErrSessionNotFound: 404,
	ErrToolNotFound:    404,
	ErrAgentNotFound:   404,
	ErrSessionBusy:     409,
	ErrAlreadyExists:   409,
	ErrInternal:        500,
	ErrToolError:       500,
	ErrTimeout:         504,
	ErrProtocol:        400,
	ErrUnsupported:     400,
}

// codeToErrorCode maps this module's errors.Code (used internally by
// sessionmgr, permission, tools) onto the wire-level ErrorCode a client
// actually sees.
var codeToErrorCode = map[errors.Code]ErrorCode{
	errors.CodeNotFound:        ErrSessionNotFound,
	errors.CodeInvalidArgument: ErrValidation,
	errors.CodePermissionDenied: ErrForbidden,
	errors.CodeAlreadyExists:   ErrAlreadyExists,
	errors.CodeBusy:            ErrSessionBusy,
	errors.CodeCanceled:        ErrProtocol,
	errors.CodeInternal:        ErrInternal,
	errors.CodeUnavailable:     ErrInternal,
	errors.CodeTimeout:         ErrTimeout,
}

// ErrForbidden covers the permission-denied case; kept separate from the
// httpStatus/codeToErrorCode literals above for readability.
const ErrForbidden ErrorCode = "FORBIDDEN"

func init() {
	httpStatus[ErrForbidden] = 403
}

// Error is a protocol-level error carrying a stable code, a human message,
// and optional structured details, ready to render on any transport.
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// NewError builds a protocol Error directly from a code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError converts any error into a protocol Error, preserving an
// existing one unchanged and translating an internal errors.Code via
// codeToErrorCode, defaulting to ErrInternal otherwise.
func WrapError(err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	code, ok := codeToErrorCode[errors.CodeOf(err)]
	if !ok {
		code = ErrInternal
	}
	return &Error{Code: code, Message: err.Error()}
}

// ToHTTPResponse renders the error as a JSON body and the status code the
// REST surface should answer with.
func (e *Error) ToHTTPResponse() (map[string]interface{}, int) {
	status, ok := httpStatus[e.Code]
	if !ok {
		status = 500
	}
	return map[string]interface{}{
		"error":   e.Message,
		"code":    string(e.Code),
		"details": e.Details,
	}, status
}

// ToWSMessage renders the error as a WebSocket error frame, optionally
// correlated to the request that caused it via messageID.
func (e *Error) ToWSMessage(messageID string) map[string]interface{} {
	msg := map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"code":    string(e.Code),
			"message": e.Message,
			"details": e.Details,
		},
	}
	if messageID != "" {
		msg["id"] = messageID
	}
	return msg
}
