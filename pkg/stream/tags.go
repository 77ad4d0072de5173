// ABOUTME: Tag collection shared between transport goroutines and the tick loop
// ABOUTME: Keeps the latest value per tag and counts changes since the last read
package stream

import (
	"bytes"
	"sync"

	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
)

type tagStore struct {
	mu    sync.Mutex
	tags  []metadata.Tag
	dirty int
}

// set stores tags, replacing earlier ones with the same container and name.
// Only tags whose value changed count as dirty.
func (s *tagStore) set(tags ...metadata.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tag := range tags {
		idx := -1
		for i, have := range s.tags {
			if have.Container == tag.Container && have.Name == tag.Name {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			s.tags = append(s.tags, tag)
		case s.tags[idx].DataType == tag.DataType && bytes.Equal(s.tags[idx].Data, tag.Data):
			continue
		default:
			s.tags[idx] = tag
		}
		s.dirty++
	}
}

// take returns a copy of all tags and the dirty count, then clears the count
func (s *tagStore) take() ([]metadata.Tag, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]metadata.Tag, len(s.tags))
	copy(out, s.tags)
	dirty := s.dirty
	s.dirty = 0
	return out, dirty
}
