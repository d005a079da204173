package orch

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
	closed atomic.Bool
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

func (f *fakeSignal) Close() { f.closed.Store(true) }

func (f *fakeSignal) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = string(fr.Payload)
	}
	return out
}

func newTestOrch(policy app.Policy) *Orchestrator {
	return New(app.NewRoomRegistry(4), app.NewSessionDirectory(4), policy, nil)
}

func join(t *testing.T, o *Orchestrator, call, sid string) (*Ticket, *fakeSignal) {
	t.Helper()
	tk, err := o.Admit(domain.CallID(call))
	if err != nil {
		t.Fatalf("admit %s: %v", sid, err)
	}
	sig := &fakeSignal{}
	if _, err := o.Activate(tk, core.SessionID(sid), domain.NewPeerMeta("", "", ""), sig); err != nil {
		t.Fatalf("activate %s: %v", sid, err)
	}
	return tk, sig
}

func TestOrchestratorScenario(t *testing.T) {
	o := newTestOrch(nil)

	ta, _ := join(t, o, "r1", "A")
	tb, sb := join(t, o, "r1", "B")

	if _, err := o.Admit("r1"); !errors.Is(err, core.ErrRoomFull) {
		t.Fatalf("C err = %v, want ErrRoomFull", err)
	}
	if got := o.Registry.Occupancy("r1"); got != 2 {
		t.Fatalf("occupancy after C = %d, want 2", got)
	}

	o.OnFrame(ta, core.TextFrame([]byte("ping")))
	if got := sb.payloads(); len(got) != 1 || got[0] != "ping" {
		t.Fatalf("B got %v", got)
	}

	o.OnDisconnect(tb)
	if got := o.Registry.Occupancy("r1"); got != 1 {
		t.Fatalf("occupancy after B left = %d, want 1", got)
	}
	if tb.State() != Closed {
		t.Fatalf("B state = %s", tb.State())
	}

	join(t, o, "r1", "D")
	if got := o.Room("r1").Occupancy; got != 2 {
		t.Fatalf("occupancy after D = %d, want 2", got)
	}
}

func TestOrchestratorLoneSenderDropsFrame(t *testing.T) {
	o := newTestOrch(nil)
	ta, sa := join(t, o, "solo", "A")
	o.OnFrame(ta, core.TextFrame([]byte("anyone?")))
	if len(sa.payloads()) != 0 {
		t.Fatal("lone sender received a frame")
	}
}

func TestOrchestratorDisconnectIdempotent(t *testing.T) {
	o := newTestOrch(nil)
	ta, _ := join(t, o, "r1", "A")
	join(t, o, "r1", "B")

	o.OnDisconnect(ta)
	o.OnDisconnect(ta)

	if got := o.Registry.Occupancy("r1"); got != 1 {
		t.Fatalf("occupancy = %d, want 1", got)
	}
	if o.Directory.Len() != 1 {
		t.Fatalf("directory len = %d, want 1", o.Directory.Len())
	}
}

func TestOrchestratorAbortReleasesOnce(t *testing.T) {
	o := newTestOrch(nil)
	tk, err := o.Admit("r1")
	if err != nil {
		t.Fatal(err)
	}
	o.Abort(tk)
	o.Abort(tk)
	o.OnDisconnect(tk)
	if got := o.Registry.Occupancy("r1"); got != 0 {
		t.Fatalf("occupancy = %d, want 0", got)
	}
	if _, err := o.Activate(tk, "late", domain.PeerMeta{}, &fakeSignal{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("activate after abort err = %v", err)
	}
}

func TestOrchestratorFramesAfterCloseIgnored(t *testing.T) {
	o := newTestOrch(nil)
	ta, _ := join(t, o, "r1", "A")
	_, sb := join(t, o, "r1", "B")
	o.OnDisconnect(ta)
	o.OnFrame(ta, core.TextFrame([]byte("late")))
	if len(sb.payloads()) != 0 {
		t.Fatal("frame from closed session was relayed")
	}
}

func TestOrchestratorKickPolicyClosesSlowPeer(t *testing.T) {
	o := newTestOrch(app.KickPolicy{})
	ta, sa := join(t, o, "r1", "A")
	_, sb := join(t, o, "r1", "B")
	sb.err = core.ErrBackpressure

	o.OnFrame(ta, core.TextFrame([]byte("x")))
	if !sb.closed.Load() {
		t.Fatal("slow peer not closed")
	}
	if sa.closed.Load() {
		t.Fatal("sender closed")
	}
}

func TestOrchestratorDropPolicyKeepsSlowPeer(t *testing.T) {
	o := newTestOrch(app.DropPolicy{})
	ta, _ := join(t, o, "r1", "A")
	_, sb := join(t, o, "r1", "B")
	sb.err = core.ErrBackpressure

	o.OnFrame(ta, core.TextFrame([]byte("x")))
	if sb.closed.Load() {
		t.Fatal("slow peer closed under drop policy")
	}
}

func TestOrchestratorEvictRoom(t *testing.T) {
	o := newTestOrch(nil)
	_, sa := join(t, o, "r1", "A")
	_, sb := join(t, o, "r1", "B")
	_, sc := join(t, o, "r2", "C")

	if n := o.EvictRoom("r1"); n != 2 {
		t.Fatalf("evicted = %d, want 2", n)
	}
	if !sa.closed.Load() || !sb.closed.Load() {
		t.Fatal("members of r1 not closed")
	}
	if sc.closed.Load() {
		t.Fatal("member of r2 closed")
	}
	if n := o.EvictRoom("empty"); n != 0 {
		t.Fatalf("evicted = %d from empty room", n)
	}
}

func TestOrchestratorConcurrentJoinLeave(t *testing.T) {
	o := newTestOrch(nil)
	var wg sync.WaitGroup
	var seq atomic.Int64
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tk, err := o.Admit("busy")
				if err != nil {
					if !errors.Is(err, core.ErrRoomFull) {
						t.Errorf("admit: %v", err)
					}
					continue
				}
				if n := o.Registry.Occupancy("busy"); n > domain.RoomCapacity {
					t.Errorf("occupancy %d over capacity", n)
				}
				sid := core.SessionID(strconv.FormatInt(seq.Add(1), 10))
				if _, err := o.Activate(tk, sid, domain.PeerMeta{}, &fakeSignal{}); err != nil {
					t.Errorf("activate: %v", err)
					continue
				}
				o.OnFrame(tk, core.TextFrame([]byte("x")))
				o.OnDisconnect(tk)
			}
		}()
	}
	wg.Wait()

	if got := o.Registry.Occupancy("busy"); got != 0 {
		t.Fatalf("final occupancy = %d, want 0", got)
	}
	if got := o.Directory.Len(); got != 0 {
		t.Fatalf("final sessions = %d, want 0", got)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Pending: "pending", Admitted: "admitted", Active: "active", Closed: "closed", State(9): "unknown"} {
		if s.String() != want {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
