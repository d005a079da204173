package app

import (
	"fmt"
	"hash/maphash"
	"sort"
	"sync"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultShards = 64

type roomShard struct {
	mu        sync.Mutex
	occupancy map[domain.CallID]int
}

// RoomRegistry counts peers per call. Each call id hashes to one shard,
// so admission for unrelated calls never contends on the same lock.
// A call whose occupancy drops to zero is forgotten.
type RoomRegistry struct {
	seed   maphash.Seed
	shards []roomShard
}

func NewRoomRegistry(shards int) *RoomRegistry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &RoomRegistry{
		seed:   maphash.MakeSeed(),
		shards: make([]roomShard, shards),
	}
	for i := range r.shards {
		r.shards[i].occupancy = make(map[domain.CallID]int)
	}
	return r
}

func (r *RoomRegistry) shard(id domain.CallID) *roomShard {
	h := maphash.String(r.seed, string(id))
	return &r.shards[h%uint64(len(r.shards))]
}

// TryAdmit takes one slot in the call or fails with core.ErrRoomFull.
func (r *RoomRegistry) TryAdmit(id domain.CallID) error {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.occupancy[id]
	if n >= domain.RoomCapacity {
		log.Debug().Str("module", "app.registry").Str("call_id", string(id)).Int("occupancy", n).Msg("admission rejected")
		return core.ErrRoomFull
	}
	s.occupancy[id] = n + 1
	log.Debug().Str("module", "app.registry").Str("call_id", string(id)).Int("occupancy", n+1).Msg("admitted")
	return nil
}

// Release gives back one slot. Releasing an empty call is a pairing bug
// and reported as core.ErrOccupancyUnderflow.
func (r *RoomRegistry) Release(id domain.CallID) error {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.occupancy[id]
	switch {
	case n <= 0:
		return fmt.Errorf("release %q: %w", id, core.ErrOccupancyUnderflow)
	case n == 1:
		delete(s.occupancy, id)
	default:
		s.occupancy[id] = n - 1
	}
	log.Debug().Str("module", "app.registry").Str("call_id", string(id)).Int("occupancy", n-1).Msg("released")
	return nil
}

func (r *RoomRegistry) Occupancy(id domain.CallID) int {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupancy[id]
}

// Len returns the number of calls with at least one peer.
func (r *RoomRegistry) Len() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		total += len(s.occupancy)
		s.mu.Unlock()
	}
	return total
}

// Snapshot lists occupied calls ordered by call id. Shards are read one
// at a time, so the result is not a single point-in-time view.
func (r *RoomRegistry) Snapshot() []core.RoomInfo {
	out := make([]core.RoomInfo, 0)
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id, n := range s.occupancy {
			out = append(out, core.RoomInfo{CallID: id, Occupancy: n})
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out
}
