package orch

import (
	"sync/atomic"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

type State int32

const (
	Pending State = iota
	Admitted
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Admitted:
		return "admitted"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Ticket tracks one connection from admission to close. It holds a
// room slot from Admit until Abort or OnDisconnect gives it back.
type Ticket struct {
	callID  domain.CallID
	state   atomic.Int32
	session atomic.Pointer[core.Session]
}

func (t *Ticket) CallID() domain.CallID { return t.callID }
func (t *Ticket) State() State          { return State(t.state.Load()) }

// Session is nil until the ticket is activated.
func (t *Ticket) Session() *core.Session { return t.session.Load() }

func (t *Ticket) transition(from, to State) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}
