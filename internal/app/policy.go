package app

import (
	"fmt"

	"github.com/dkeye/callrelay/internal/core"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a peer whose transport refused a frame.
// The sender is never affected.
type Policy interface {
	OnBackPressure(peer *core.Session, err error) BackpressureAction
}

// DropPolicy loses the frame and keeps the peer connected.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(*core.Session, error) BackpressureAction { return DropFrame }

// KickPolicy disconnects the peer so its slot frees up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(*core.Session, error) BackpressureAction { return KickMember }

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown slow peer policy %q", name)
	}
}
