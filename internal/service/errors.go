package service

import "errors"

// Code classifies lifecycle errors so callers can branch on the failure
// class without string matching.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeInvalidState Code = "invalid_state"
	CodeForbidden    Code = "forbidden"
	CodeRoomFull     Code = "room_full"
)

// Error is the single error type surfaced by lifecycle operations.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Lifecycle errors.
var (
	ErrRoomNotFound     = &Error{Code: CodeNotFound, Message: "room not found"}
	ErrPlayerNotFound   = &Error{Code: CodeNotFound, Message: "player not seated in room"}
	ErrRoomFull         = &Error{Code: CodeRoomFull, Message: "room is at capacity"}
	ErrNotHost          = &Error{Code: CodeForbidden, Message: "only the host can start a round"}
	ErrNotEnoughPlayers = &Error{Code: CodeInvalidState, Message: "at least two players are required"}
	ErrRoundNotActive   = &Error{Code: CodeInvalidState, Message: "no trading window is open"}
	ErrRoundInProgress  = &Error{Code: CodeInvalidState, Message: "a round is already in progress"}
	ErrInvalidRoomName  = &Error{Code: CodeInvalidState, Message: "room name must be 3 to 50 characters"}
	ErrInvalidCapacity  = &Error{Code: CodeInvalidState, Message: "max players must be between 2 and 8"}
)

// CodeOf extracts the error code, if err is a lifecycle error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
