package model

import (
	"github.com/Faultbox/stmesh/pkg/formats"
	"github.com/Faultbox/stmesh/pkg/math"
)

// StreamMesh is one streamed mesh: fixed topology, positions replaced every
// interpolation step.
type StreamMesh struct {
	Name      string
	Vertices  []Vertex
	Indices   []uint32
	SubMeshes []SubMesh
	Bounds    Bounds

	opts BuildOptions
}

// NewStreamMesh builds a mesh from its topology record. Positions start at
// the origin until the first pose arrives.
func NewStreamMesh(info *formats.MeshInfo, opts BuildOptions) *StreamMesh {
	m := &StreamMesh{
		Name:     info.Name,
		Vertices: make([]Vertex, info.VertexCount),
		opts:     opts,
	}

	tris := info.TriangleIndices()
	m.Indices = make([]uint32, len(tris))
	for i, idx := range tris {
		m.Indices[i] = uint32(idx)
	}

	start := int32(0)
	for i := 0; i < info.SubMeshCount; i++ {
		count := int32(info.IndicesCounts[i])
		sub := SubMesh{StartIndex: start, IndexCount: count}
		if i < len(info.MaterialNames) {
			sub.Material = info.MaterialNames[i]
		}
		m.SubMeshes = append(m.SubMeshes, sub)
		start += count
	}

	return m
}

// SetPositions copies positions into the vertex buffer. Extra positions are
// ignored; missing ones keep their previous value.
func (m *StreamMesh) SetPositions(positions []math.Vec3) {
	n := min(len(positions), len(m.Vertices))
	for i := 0; i < n; i++ {
		p := positions[i]
		m.Vertices[i].Position = [3]float32{p.X, p.Y, p.Z}
	}
}

// Position returns the position of vertex i.
func (m *StreamMesh) Position(i int) math.Vec3 {
	p := m.Vertices[i].Position
	return math.Vec3{X: p[0], Y: p[1], Z: p[2]}
}

// shape returns one point per vertex, taken from positions where given and
// from the vertex buffer elsewhere.
func (m *StreamMesh) shape(positions []math.Vec3) []math.Vec3 {
	if len(positions) >= len(m.Vertices) {
		return positions[:len(m.Vertices)]
	}
	pts := make([]math.Vec3, len(m.Vertices))
	copy(pts, positions)
	for i := len(positions); i < len(pts); i++ {
		pts[i] = m.Position(i)
	}
	return pts
}

// RecalculateNormals rebuilds smooth vertex normals for the given shape, or
// for the vertex buffer positions when positions is nil. Each triangle
// contributes its unnormalized face normal, so larger faces weigh more.
// Degenerate triangles contribute nothing.
func (m *StreamMesh) RecalculateNormals(positions []math.Vec3) {
	pts := m.shape(positions)
	sums := make([]math.Vec3, len(m.Vertices))

	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		if int(i0) >= len(sums) || int(i1) >= len(sums) || int(i2) >= len(sums) {
			continue
		}
		v0 := pts[i0]
		face := pts[i1].Sub(v0).Cross(pts[i2].Sub(v0))
		sums[i0] = sums[i0].Add(face)
		sums[i1] = sums[i1].Add(face)
		sums[i2] = sums[i2].Add(face)
	}

	if m.opts.WeldSeams {
		weld(pts, sums)
	}

	for i, s := range sums {
		n := s.Normalize()
		if n == (math.Vec3{}) {
			// Unreferenced or degenerate vertex
			n = math.Vec3{Y: 1}
		}
		m.Vertices[i].Normal = [3]float32{n.X, n.Y, n.Z}
	}
}

// weld sums normals of vertices sharing a quantized position.
func weld(pts, sums []math.Vec3) {
	const epsilon float32 = 0.0001

	groups := make(map[[3]int32][]int)
	for i, p := range pts {
		key := [3]int32{
			int32(p.X / epsilon),
			int32(p.Y / epsilon),
			int32(p.Z / epsilon),
		}
		groups[key] = append(groups[key], i)
	}

	for _, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		var total math.Vec3
		for _, idx := range idxs {
			total = total.Add(sums[idx])
		}
		for _, idx := range idxs {
			sums[idx] = total
		}
	}
}

// RecalculateBounds rebuilds the bounding box of the given shape, or of the
// vertex buffer positions when positions is nil. An empty mesh has zero
// bounds.
func (m *StreamMesh) RecalculateBounds(positions []math.Vec3) {
	pts := m.shape(positions)
	if len(pts) == 0 {
		m.Bounds = Bounds{}
		return
	}
	b := Bounds{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b.Min = b.Min.Min(p)
		b.Max = b.Max.Max(p)
	}
	m.Bounds = b
}

// TriangleCount returns the number of triangles across all submeshes.
func (m *StreamMesh) TriangleCount() int {
	return len(m.Indices) / 3
}
