// Package store holds the in-memory ordered collection of captured images
// for one session, partitioned by eye side. Appends come from the capture
// controller, deletions and selection flags from the review stage, and
// classification tags from the analysis run; the session state machine
// guarantees those stages never run concurrently, the mutex here only
// protects against incidental cross-goroutine reads.
package store

import (
	"fmt"
	"sync"
	"time"

	"odescreen/types"
)

type counterKey struct {
	eye  types.Eye
	mode types.CaptureMode
}

// Store is the ordered image collection. Insertion order is capture order.
type Store struct {
	mu            sync.Mutex
	images        []*types.CapturedImage
	counters      map[counterKey]int
	lastID        int64
	selectionMode bool
}

// New returns an empty store with zeroed per-(eye,mode) counters.
func New() *Store {
	return &Store{
		counters: make(map[counterKey]int),
	}
}

// nextID produces a creation-time-based identifier. Two appends inside the
// same nanosecond must not collide, so the previous ID acts as a floor.
func (s *Store) nextID() int64 {
	id := time.Now().UnixNano()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Append creates a CapturedImage for the given eye and mode and assigns the
// next sequence name of that (eye, mode) partition. The name is never
// reassigned, even if earlier images are deleted later.
func (s *Store) Append(eye types.Eye, mode types.CaptureMode, score float64, pixels []byte) (*types.CapturedImage, error) {
	if !eye.Valid() {
		return nil, fmt.Errorf("invalid eye %q", eye)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey{eye: eye, mode: mode}
	s.counters[key]++

	img := &types.CapturedImage{
		ID:             s.nextID(),
		PixelData:      pixels,
		Eye:            eye,
		CaptureMode:    mode,
		SequenceName:   fmt.Sprintf("%s%s%d", eye.Letter(), mode.Letter(), s.counters[key]),
		DetectionScore: score,
	}
	s.images = append(s.images, img)
	return img, nil
}

// Images returns the images in capture order. The returned slice is a copy;
// the elements are shared pointers that the analysis stage tags in place.
func (s *Store) Images() []*types.CapturedImage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.CapturedImage, len(s.images))
	copy(out, s.images)
	return out
}

// ImagesForEye returns the eye's images in capture order.
func (s *Store) ImagesForEye(eye types.Eye) []*types.CapturedImage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.CapturedImage
	for _, img := range s.images {
		if img.Eye == eye {
			out = append(out, img)
		}
	}
	return out
}

// Count returns the total number of stored images.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// CountForEye returns the number of images captured for one eye.
func (s *Store) CountForEye(eye types.Eye) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, img := range s.images {
		if img.Eye == eye {
			n++
		}
	}
	return n
}

// SelectionMode reports whether the review multi-select mode is active.
func (s *Store) SelectionMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionMode
}

// SetSelectionMode toggles the review multi-select mode. Leaving the mode
// clears every selection flag without deleting any image.
func (s *Store) SetSelectionMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectionMode = on
	if !on {
		for _, img := range s.images {
			img.Selected = false
		}
	}
}

// ToggleSelected flips the selection flag of the image with the given ID.
// It is a no-op outside selection mode.
func (s *Store) ToggleSelected(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.selectionMode {
		return false
	}
	for _, img := range s.images {
		if img.ID == id {
			img.Selected = !img.Selected
			return true
		}
	}
	return false
}

// SelectedCount returns the number of currently selected images.
func (s *Store) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, img := range s.images {
		if img.Selected {
			n++
		}
	}
	return n
}

// DeleteSelected removes every selected image. Remaining images keep their
// sequence names and the partition counters are untouched, so future
// captures continue numbering where they left off. Emptying the store
// force-exits selection mode; otherwise remaining selections are cleared.
func (s *Store) DeleteSelected() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.images[:0]
	deleted := 0
	for _, img := range s.images {
		if img.Selected {
			deleted++
			continue
		}
		kept = append(kept, img)
	}
	s.images = kept

	if len(s.images) == 0 {
		s.selectionMode = false
	} else {
		for _, img := range s.images {
			img.Selected = false
		}
	}
	return deleted
}

// Reset clears all images, selection state and partition counters. Used only
// when a brand-new session starts.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.images = nil
	s.counters = make(map[counterKey]int)
	s.selectionMode = false
}

// Metadata returns the per-image metadata rows for a session document.
func (s *Store) Metadata() []types.ImageMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.ImageMeta, 0, len(s.images))
	for i, img := range s.images {
		out = append(out, types.ImageMeta{
			ID:           img.ID,
			Ordinal:      i + 1,
			Eye:          img.Eye,
			SequenceName: img.SequenceName,
		})
	}
	return out
}
