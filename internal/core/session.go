package core

import (
	"github.com/dkeye/callrelay/internal/domain"
)

type SessionID string

// Session binds one live connection to the call it was admitted into.
// CallID is fixed at construction.
type Session struct {
	id     SessionID
	callID domain.CallID
	meta   domain.PeerMeta
	signal SignalConnection
}

func NewSession(id SessionID, callID domain.CallID, meta domain.PeerMeta, signal SignalConnection) *Session {
	return &Session{id: id, callID: callID, meta: meta, signal: signal}
}

func (s *Session) ID() SessionID            { return s.id }
func (s *Session) CallID() domain.CallID    { return s.callID }
func (s *Session) Meta() domain.PeerMeta    { return s.meta }
func (s *Session) Signal() SignalConnection { return s.signal }

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	CallID    domain.CallID `json:"call_id"`
	Occupancy int           `json:"occupancy"`
}
