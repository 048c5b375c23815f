// Package vertex holds the double-buffered vertex positions of a stream.
package vertex

import "github.com/Faultbox/stmesh/pkg/math"

// Root is the whole-object translation carried in every frame header,
// buffered the same way as vertex positions.
type Root struct {
	Current  math.Vec3
	Previous math.Vec3
	Pose     math.Vec3
}

// Store keeps three position arrays per mesh: the latest decoded state,
// the state before the latest decode, and the blended pose handed to the
// renderer. Array lengths are fixed at construction.
type Store struct {
	Current  [][]math.Vec3
	Previous [][]math.Vec3
	Pose     [][]math.Vec3
	Root     Root
}

// New allocates a store for meshes with the given vertex counts.
// Negative counts are treated as zero.
func New(counts []int) *Store {
	s := &Store{
		Current:  make([][]math.Vec3, len(counts)),
		Previous: make([][]math.Vec3, len(counts)),
		Pose:     make([][]math.Vec3, len(counts)),
	}
	for i, n := range counts {
		if n < 0 {
			n = 0
		}
		s.Current[i] = make([]math.Vec3, n)
		s.Previous[i] = make([]math.Vec3, n)
		s.Pose[i] = make([]math.Vec3, n)
	}
	return s
}

// MeshCount returns the number of meshes.
func (s *Store) MeshCount() int {
	return len(s.Current)
}

// VertexCount returns the vertex count of a mesh, or 0 if out of range.
func (s *Store) VertexCount(mesh int) int {
	if mesh < 0 || mesh >= len(s.Current) {
		return 0
	}
	return len(s.Current[mesh])
}

// Counts returns the vertex count of every mesh.
func (s *Store) Counts() []int {
	counts := make([]int, len(s.Current))
	for i, v := range s.Current {
		counts[i] = len(v)
	}
	return counts
}

// InRange reports whether (mesh, v) addresses an existing vertex.
func (s *Store) InRange(mesh, v int) bool {
	return mesh >= 0 && mesh < len(s.Current) && v >= 0 && v < len(s.Current[mesh])
}

// Snapshot copies the current positions and root into the previous buffers.
func (s *Store) Snapshot() {
	for i := range s.Current {
		copy(s.Previous[i], s.Current[i])
	}
	s.Root.Previous = s.Root.Current
}

// Blend writes previous + (current - previous) * w into the pose buffers.
// Current and previous are left untouched.
func (s *Store) Blend(w float32) {
	for i, cur := range s.Current {
		prev := s.Previous[i]
		pose := s.Pose[i]
		for j := range cur {
			pose[j] = prev[j].Lerp(cur[j], w)
		}
	}
	s.Root.Pose = s.Root.Previous.Lerp(s.Root.Current, w)
}

// Reset zeroes every buffer without reallocating.
func (s *Store) Reset() {
	for i := range s.Current {
		clear(s.Current[i])
		clear(s.Previous[i])
		clear(s.Pose[i])
	}
	s.Root = Root{}
}
