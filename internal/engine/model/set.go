package model

import (
	"github.com/Faultbox/stmesh/pkg/formats"
	"github.com/Faultbox/stmesh/pkg/math"
)

// Set is the collection of streamed meshes of one session. It receives the
// player output and defers normal and bounds work until Sync. Normals and
// bounds follow the last keyframe shape, not the blended pose.
type Set struct {
	Meshes []*StreamMesh
	Root   math.Vec3

	opts         BuildOptions
	shape        [][]math.Vec3
	shapeRoot    math.Vec3
	poseDirty    bool
	normalsDirty bool
	poses        int
	rebuilds     int
}

// NewSet creates an empty set.
func NewSet(opts BuildOptions) *Set {
	return &Set{opts: opts}
}

// Build replaces the meshes with ones built from topology records.
func (s *Set) Build(infos []*formats.MeshInfo) {
	s.Meshes = make([]*StreamMesh, len(infos))
	for i, info := range infos {
		s.Meshes[i] = NewStreamMesh(info, s.opts)
	}
	s.Root = math.Vec3{}
	s.shape = make([][]math.Vec3, len(infos))
	s.shapeRoot = math.Vec3{}
	s.poseDirty = false
	s.normalsDirty = false
	s.poses = 0
	s.rebuilds = 0
}

// UpdatePose copies per-mesh positions.
func (s *Set) UpdatePose(meshes [][]math.Vec3) {
	n := min(len(meshes), len(s.Meshes))
	for i := 0; i < n; i++ {
		s.Meshes[i].SetPositions(meshes[i])
	}
	s.poseDirty = true
	s.poses++
}

// UpdateRoot records the whole-object translation.
func (s *Set) UpdateRoot(root math.Vec3) {
	s.Root = root
}

// NormalsDirty copies the decoded keyframe shape and schedules a normal and
// bounds rebuild from it on the next Sync.
func (s *Set) NormalsDirty(meshes [][]math.Vec3, root math.Vec3) {
	n := min(len(meshes), len(s.shape))
	for i := 0; i < n; i++ {
		s.shape[i] = append(s.shape[i][:0], meshes[i]...)
	}
	s.shapeRoot = root
	s.normalsDirty = true
}

// Sync applies pending rebuilds. It returns true if vertex data changed
// since the previous call and needs uploading.
func (s *Set) Sync() bool {
	rebuilt := false
	if s.normalsDirty {
		for i, m := range s.Meshes {
			m.RecalculateNormals(s.shape[i])
			m.RecalculateBounds(s.shape[i])
		}
		s.normalsDirty = false
		s.rebuilds++
		rebuilt = true
	}
	changed := s.poseDirty || rebuilt
	s.poseDirty = false
	return changed
}

// Bounds returns the union of all mesh bounds of the last keyframe shape in
// world space, its root included.
func (s *Set) Bounds() Bounds {
	if len(s.Meshes) == 0 {
		return Bounds{}
	}
	b := s.Meshes[0].Bounds
	for _, m := range s.Meshes[1:] {
		b = b.Union(m.Bounds)
	}
	return Bounds{Min: b.Min.Add(s.shapeRoot), Max: b.Max.Add(s.shapeRoot)}
}

// Counters returns how many poses were received and how many normal
// rebuilds ran since the last Build.
func (s *Set) Counters() (poses, rebuilds int) {
	return s.poses, s.rebuilds
}
