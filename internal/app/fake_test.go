package app

import (
	"sync"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

// fakeSignal records frames instead of writing them anywhere.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSignal) received() []core.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Frame(nil), f.frames...)
}

func newTestSession(sid, call string) (*core.Session, *fakeSignal) {
	sig := &fakeSignal{}
	meta := domain.NewPeerMeta("tok-"+sid, "127.0.0.1:0", "test")
	return core.NewSession(core.SessionID(sid), domain.CallID(call), meta, sig), sig
}
