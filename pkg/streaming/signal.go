// ABOUTME: Metadata change subscriptions
// ABOUTME: Connection tokens let subscribers detach without holding the controller
package streaming

import (
	"slices"
	"sync"

	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
)

// MetadataFunc receives the complete metadata map. It must not modify it.
type MetadataFunc func(metadata.Map)

type metadataSignal struct {
	mu    sync.Mutex
	next  uint64
	slots map[uint64]MetadataFunc
}

// Connection is a subscription returned by OnMetadata
type Connection struct {
	sig *metadataSignal
	id  uint64
}

// Disconnect stops further callbacks. It is safe to call more than once.
func (c *Connection) Disconnect() {
	if c == nil || c.sig == nil {
		return
	}
	c.sig.mu.Lock()
	delete(c.sig.slots, c.id)
	c.sig.mu.Unlock()
}

func (s *metadataSignal) connect(fn MetadataFunc) *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slots == nil {
		s.slots = make(map[uint64]MetadataFunc)
	}
	s.next++
	s.slots[s.next] = fn
	return &Connection{sig: s, id: s.next}
}

// emit calls subscribers in subscription order, outside the lock
func (s *metadataSignal) emit(m metadata.Map) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	fns := make([]MetadataFunc, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.slots[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}
