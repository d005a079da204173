// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

// RoomCapacity is the number of peers a call can hold at once.
const RoomCapacity = 2

var ErrEmptyCallID = errors.New("empty call id")

// CallID names a room. It is opaque: the relay never parses it.
type CallID string

// CallIDFromPath returns the last segment of a request path verbatim.
func CallIDFromPath(path string) (CallID, error) {
	id := path[strings.LastIndexByte(path, '/')+1:]
	if id == "" {
		return "", ErrEmptyCallID
	}
	return CallID(id), nil
}
