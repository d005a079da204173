package core

import "errors"

var (
	// ErrRoomFull is returned by admission when the call already holds
	// domain.RoomCapacity peers.
	ErrRoomFull = errors.New("room is full")

	ErrDeliveryFailed     = errors.New("delivery failed")
	ErrBackpressure       = errors.New("backpressure")
	ErrConnClosed         = errors.New("connection closed")
	ErrDuplicateSession   = errors.New("duplicate session id")
	ErrOccupancyUnderflow = errors.New("occupancy underflow")
)
