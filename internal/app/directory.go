package app

import (
	"fmt"
	"hash/maphash"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type dirShard struct {
	mu     sync.RWMutex
	byCall map[domain.CallID][]*core.Session
}

// SessionDirectory indexes live sessions by call id. It does not own the
// sessions: whoever calls Add is responsible for calling Remove.
type SessionDirectory struct {
	seed   maphash.Seed
	shards []dirShard

	// bySID maps core.SessionID to domain.CallID. Mutated only while
	// holding the shard lock of the stored call id.
	bySID sync.Map
	count atomic.Int64
}

func NewSessionDirectory(shards int) *SessionDirectory {
	if shards <= 0 {
		shards = DefaultShards
	}
	d := &SessionDirectory{
		seed:   maphash.MakeSeed(),
		shards: make([]dirShard, shards),
	}
	for i := range d.shards {
		d.shards[i].byCall = make(map[domain.CallID][]*core.Session)
	}
	return d
}

func (d *SessionDirectory) shard(id domain.CallID) *dirShard {
	h := maphash.String(d.seed, string(id))
	return &d.shards[h%uint64(len(d.shards))]
}

func (d *SessionDirectory) Add(s *core.Session) error {
	sh := d.shard(s.CallID())
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, loaded := d.bySID.LoadOrStore(s.ID(), s.CallID()); loaded {
		return fmt.Errorf("add %s: %w", s.ID(), core.ErrDuplicateSession)
	}
	sh.byCall[s.CallID()] = append(sh.byCall[s.CallID()], s)
	d.count.Add(1)
	log.Info().Str("module", "app.directory").Str("sid", string(s.ID())).Str("call_id", string(s.CallID())).Msg("session added")
	return nil
}

// Remove unregisters sid. Removing an unknown sid is a no-op.
func (d *SessionDirectory) Remove(sid core.SessionID) (*core.Session, bool) {
	v, ok := d.bySID.Load(sid)
	if !ok {
		return nil, false
	}
	callID := v.(domain.CallID)
	sh := d.shard(callID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := d.bySID.LoadAndDelete(sid); !ok {
		return nil, false
	}

	var removed *core.Session
	members := sh.byCall[callID]
	if i := slices.IndexFunc(members, func(s *core.Session) bool { return s.ID() == sid }); i >= 0 {
		removed = members[i]
		members = slices.Delete(members, i, i+1)
	}
	if len(members) == 0 {
		delete(sh.byCall, callID)
	} else {
		sh.byCall[callID] = members
	}
	d.count.Add(-1)
	log.Info().Str("module", "app.directory").Str("sid", string(sid)).Str("call_id", string(callID)).Msg("session removed")
	return removed, removed != nil
}

// FindPeer returns the session sharing callID with self. When several
// candidates exist the one with the lowest session id is chosen.
func (d *SessionDirectory) FindPeer(callID domain.CallID, self core.SessionID) (*core.Session, bool) {
	sh := d.shard(callID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	var peer *core.Session
	for _, s := range sh.byCall[callID] {
		if s.ID() == self {
			continue
		}
		if peer == nil || s.ID() < peer.ID() {
			peer = s
		}
	}
	return peer, peer != nil
}

// Members returns a copy of the sessions registered under callID.
func (d *SessionDirectory) Members(callID domain.CallID) []*core.Session {
	sh := d.shard(callID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return slices.Clone(sh.byCall[callID])
}

func (d *SessionDirectory) Len() int { return int(d.count.Load()) }
