package orch

import (
	"hash/maphash"
	"sync"

	"github.com/dkeye/callrelay/internal/domain"
)

const lockStripes = 256

// callLocks serializes admission against disconnect bookkeeping for a
// single call id. Unrelated calls share a stripe only on hash collision.
type callLocks struct {
	seed    maphash.Seed
	stripes [lockStripes]sync.Mutex
}

func newCallLocks() *callLocks {
	return &callLocks{seed: maphash.MakeSeed()}
}

func (l *callLocks) of(id domain.CallID) *sync.Mutex {
	return &l.stripes[maphash.String(l.seed, string(id))%lockStripes]
}
