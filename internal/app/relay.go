package app

import (
	"fmt"

	"github.com/dkeye/callrelay/internal/core"
)

type ForwardResult int

const (
	// NoPeer means the sender is alone in its call; the frame is dropped.
	NoPeer ForwardResult = iota
	Delivered
	Failed
)

func (r ForwardResult) String() string {
	switch r {
	case NoPeer:
		return "no_peer"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("ForwardResult(%d)", int(r))
	}
}

// DeliveryError reports a frame the peer's transport refused.
// It matches core.ErrDeliveryFailed and the transport cause with errors.Is.
type DeliveryError struct {
	Peer *core.Session
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%v to %s: %v", core.ErrDeliveryFailed, e.Peer.ID(), e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{core.ErrDeliveryFailed, e.Err} }

// Relay hands a frame to the other session of the sender's call.
// Frames are never buffered here: the peer's SignalConnection owns the queue.
type Relay struct {
	dir *SessionDirectory
}

func NewRelay(dir *SessionDirectory) *Relay {
	return &Relay{dir: dir}
}

func (r *Relay) Forward(from *core.Session, f core.Frame) (ForwardResult, error) {
	peer, ok := r.dir.FindPeer(from.CallID(), from.ID())
	if !ok {
		return NoPeer, nil
	}
	if err := peer.Signal().TrySend(f); err != nil {
		return Failed, &DeliveryError{Peer: peer, Err: err}
	}
	return Delivered, nil
}
