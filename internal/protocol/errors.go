package protocol

import "net/http"

// Error codes carried by ERROR messages and failed RESULTs.
const (
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	ErrBadRequest = "E_BAD_REQUEST"
	ErrUnknownOp  = "E_UNKNOWN_OP"
	ErrForbidden  = "E_FORBIDDEN"
	ErrNotFound   = "E_NOT_FOUND"
	ErrConflict   = "E_CONFLICT"
	ErrInternal   = "E_INTERNAL"
)

var codeStatus = map[string]int{
	ErrProtoBadRequest: http.StatusBadRequest,
	ErrProtoVersion:    http.StatusBadRequest,
	ErrBadRequest:      http.StatusBadRequest,
	ErrUnknownOp:       http.StatusBadRequest,
	ErrForbidden:       http.StatusForbidden,
	ErrNotFound:        http.StatusNotFound,
	ErrConflict:        http.StatusConflict,
	ErrInternal:        http.StatusInternalServerError,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := codeStatus[code]
	return ok
}

// HTTPStatus is the status an HTTP endpoint answers with for code.
// Unknown codes map to 500.
func HTTPStatus(code string) int {
	if s, ok := codeStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
