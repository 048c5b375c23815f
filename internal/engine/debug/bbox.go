// Package debug provides debug visualization utilities.
package debug

import "github.com/Faultbox/stmesh/internal/engine/model"

// BoundsLineVertexCount is the number of vertices of a box wireframe (12 edges × 2).
const BoundsLineVertexCount = 24

// BoundsLines returns line vertices for the edges of b, grown by padding on
// every side. Format: [x, y, z] per vertex.
func BoundsLines(b model.Bounds, padding float32) []float32 {
	minX, minY, minZ := b.Min.X-padding, b.Min.Y-padding, b.Min.Z-padding
	maxX, maxY, maxZ := b.Max.X+padding, b.Max.Y+padding, b.Max.Z+padding

	return []float32{
		// Bottom face
		minX, minY, minZ, maxX, minY, minZ,
		maxX, minY, minZ, maxX, minY, maxZ,
		maxX, minY, maxZ, minX, minY, maxZ,
		minX, minY, maxZ, minX, minY, minZ,
		// Top face
		minX, maxY, minZ, maxX, maxY, minZ,
		maxX, maxY, minZ, maxX, maxY, maxZ,
		maxX, maxY, maxZ, minX, maxY, maxZ,
		minX, maxY, maxZ, minX, maxY, minZ,
		// Vertical edges
		minX, minY, minZ, minX, maxY, minZ,
		maxX, minY, minZ, maxX, maxY, minZ,
		maxX, minY, maxZ, maxX, maxY, maxZ,
		minX, minY, maxZ, minX, maxY, maxZ,
	}
}
