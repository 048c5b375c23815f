// Package model holds CPU-side copies of streamed meshes ready for GPU upload.
package model

import "github.com/Faultbox/stmesh/pkg/math"

// Vertex is the interleaved GPU vertex layout: position then normal.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
}

// VertexStride is the size of Vertex in bytes.
const VertexStride = 6 * 4

// SubMesh is a contiguous range of the index buffer drawn with one material.
type SubMesh struct {
	Material   string
	StartIndex int32
	IndexCount int32
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min math.Vec3
	Max math.Vec3
}

// Center returns the middle of the box.
func (b Bounds) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the box extent on each axis.
func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// Union returns the smallest box containing both.
func (b Bounds) Union(other Bounds) Bounds {
	return Bounds{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// BuildOptions contains options for mesh building.
type BuildOptions struct {
	// WeldSeams averages normals of vertices that share a position, hiding
	// the hard edges left where the exporter split vertices at UV seams.
	WeldSeams bool
}
