/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrInvalidPhase        = errors.New("invalid phase")
	ErrAlreadyStarted      = &phaseError{msg: "round already started"}
	ErrInsufficientPlayers = errors.New("insufficient players")
	ErrConnectionFailure   = errors.New("connection failure")

	ErrNotHost            = errors.New("only the host may do that")
	ErrNotSpy             = errors.New("only the spy may guess the location")
	ErrInvalidVote        = errors.New("invalid vote")
	ErrUnknownPlayer      = errors.New("player is not in this room")
	ErrRoundNotExpired    = errors.New("round has not expired")
	ErrInvalidEvent       = errors.New("invalid event")
	ErrUnknownLocation    = errors.New("unknown location")
	ErrInvalidPlayer      = errors.New("invalid player")
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")
)

// phaseError is an ErrInvalidPhase with a more specific message.
type phaseError struct {
	msg string
}

func (e *phaseError) Error() string { return e.msg }

func (e *phaseError) Unwrap() error { return ErrInvalidPhase }

// ErrorCode maps an error returned by this package to the string clients
// receive in the "error" field of a failed response.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, ErrAlreadyStarted):
		return "AlreadyStarted"
	case errors.Is(err, ErrInvalidPhase):
		return "InvalidPhase"
	case errors.Is(err, ErrInsufficientPlayers):
		return "InsufficientPlayers"
	case errors.Is(err, ErrConnectionFailure):
		return "ConnectionFailure"
	case errors.Is(err, ErrNotHost):
		return "NotHost"
	case errors.Is(err, ErrNotSpy):
		return "NotSpy"
	case errors.Is(err, ErrInvalidVote):
		return "InvalidVote"
	case errors.Is(err, ErrUnknownPlayer):
		return "UnknownPlayer"
	case errors.Is(err, ErrRoundNotExpired):
		return "RoundNotExpired"
	case errors.Is(err, ErrInvalidEvent):
		return "InvalidEvent"
	case errors.Is(err, ErrUnknownLocation):
		return "UnknownLocation"
	case errors.Is(err, ErrInvalidPlayer):
		return "InvalidPlayer"
	case errors.Is(err, ErrCodeSpaceExhausted):
		return "CodeSpaceExhausted"
	default:
		return "ServerError"
	}
}
