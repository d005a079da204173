package app

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

func TestRoomRegistryAdmitUpToCapacity(t *testing.T) {
	r := NewRoomRegistry(4)
	for i := 0; i < domain.RoomCapacity; i++ {
		if err := r.TryAdmit("r1"); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	if err := r.TryAdmit("r1"); !errors.Is(err, core.ErrRoomFull) {
		t.Fatalf("third admit err = %v, want ErrRoomFull", err)
	}
	if got := r.Occupancy("r1"); got != domain.RoomCapacity {
		t.Fatalf("occupancy = %d, want %d", got, domain.RoomCapacity)
	}
	if err := r.TryAdmit("r2"); err != nil {
		t.Fatalf("other room: %v", err)
	}
}

func TestRoomRegistryReleaseResetsRoom(t *testing.T) {
	r := NewRoomRegistry(0)
	_ = r.TryAdmit("r1")
	_ = r.TryAdmit("r1")

	if err := r.Release("r1"); err != nil {
		t.Fatal(err)
	}
	if got := r.Occupancy("r1"); got != 1 {
		t.Fatalf("occupancy = %d, want 1", got)
	}
	if err := r.Release("r1"); err != nil {
		t.Fatal(err)
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0 after both released", got)
	}
	if err := r.TryAdmit("r1"); err != nil {
		t.Fatalf("admit after reset: %v", err)
	}
}

func TestRoomRegistryReleaseUnderflow(t *testing.T) {
	r := NewRoomRegistry(1)
	if err := r.Release("ghost"); !errors.Is(err, core.ErrOccupancyUnderflow) {
		t.Fatalf("err = %v, want ErrOccupancyUnderflow", err)
	}
	if got := r.Occupancy("ghost"); got != 0 {
		t.Fatalf("occupancy = %d, want 0", got)
	}
}

func TestRoomRegistryConcurrentAdmit(t *testing.T) {
	r := NewRoomRegistry(8)
	const attempts = 64

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			switch err := r.TryAdmit("hot"); {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, core.ErrRoomFull):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if admitted.Load() != domain.RoomCapacity {
		t.Fatalf("admitted = %d, want %d", admitted.Load(), domain.RoomCapacity)
	}
	if rejected.Load() != attempts-domain.RoomCapacity {
		t.Fatalf("rejected = %d", rejected.Load())
	}
}

func TestRoomRegistryChurnKeepsBounds(t *testing.T) {
	r := NewRoomRegistry(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if err := r.TryAdmit("churn"); err != nil {
					continue
				}
				if n := r.Occupancy("churn"); n < 1 || n > domain.RoomCapacity {
					t.Errorf("occupancy %d out of bounds", n)
				}
				if err := r.Release("churn"); err != nil {
					t.Errorf("release: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	if got := r.Occupancy("churn"); got != 0 {
		t.Fatalf("final occupancy = %d, want 0", got)
	}
}

func TestRoomRegistrySnapshotSorted(t *testing.T) {
	r := NewRoomRegistry(4)
	_ = r.TryAdmit("b")
	_ = r.TryAdmit("a")
	_ = r.TryAdmit("b")

	got := r.Snapshot()
	want := []core.RoomInfo{{CallID: "a", Occupancy: 1}, {CallID: "b", Occupancy: 2}}
	if len(got) != len(want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
