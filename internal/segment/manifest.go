package segment

import "slices"

// Manifest maps segment indices to the per-frame sizes announced by the
// stream list. Each index is recorded once, which is what keeps a segment
// from being requested twice across manifest refreshes.
type Manifest struct {
	sizes map[int][]int
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{sizes: make(map[int][]int)}
}

// Add records sizes for index. Returns false if the index is already known,
// in which case the existing sizes are kept.
func (m *Manifest) Add(index int, sizes []int) bool {
	if _, ok := m.sizes[index]; ok {
		return false
	}
	m.sizes[index] = slices.Clone(sizes)
	return true
}

// Sizes returns the recorded sizes for index.
func (m *Manifest) Sizes(index int) ([]int, bool) {
	s, ok := m.sizes[index]
	return s, ok
}

// Has reports whether index is known.
func (m *Manifest) Has(index int) bool {
	_, ok := m.sizes[index]
	return ok
}

// Len returns the number of known segments.
func (m *Manifest) Len() int {
	return len(m.sizes)
}

// Indices returns the known segment indices in ascending order.
func (m *Manifest) Indices() []int {
	idx := make([]int, 0, len(m.sizes))
	for i := range m.sizes {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	return idx
}

// Reset forgets every segment.
func (m *Manifest) Reset() {
	clear(m.sizes)
}
