package formats

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Mesh info errors.
var (
	ErrInvalidMeshInfo = errors.New("invalid mesh info")
)

// MeshInfo describes one streamed mesh. Positions are streamed; topology and
// vertex count are fixed for the session.
type MeshInfo struct {
	Name          string   `json:"name"`
	VertexCount   int      `json:"vertexCount"`
	SubMeshCount  int      `json:"subMeshCount"`
	Indices       []int    `json:"indices"`
	IndicesCounts []int    `json:"indicesCounts"`
	MaterialNames []string `json:"materialNames"`
}

// ParseMeshInfo parses and validates a mesh info document.
func ParseMeshInfo(data []byte) (*MeshInfo, error) {
	var info MeshInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing mesh info: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// Validate checks counts and index ranges.
func (m *MeshInfo) Validate() error {
	if m.VertexCount < 0 {
		return fmt.Errorf("%w: %s: vertex count %d", ErrInvalidMeshInfo, m.Name, m.VertexCount)
	}
	if len(m.IndicesCounts) < m.SubMeshCount {
		return fmt.Errorf("%w: %s: %d index counts for %d submeshes",
			ErrInvalidMeshInfo, m.Name, len(m.IndicesCounts), m.SubMeshCount)
	}

	total := 0
	for _, n := range m.IndicesCounts[:m.SubMeshCount] {
		if n < 0 {
			return fmt.Errorf("%w: %s: negative index count", ErrInvalidMeshInfo, m.Name)
		}
		total += n
	}
	if total > len(m.Indices) {
		return fmt.Errorf("%w: %s: index counts sum to %d, have %d indices",
			ErrInvalidMeshInfo, m.Name, total, len(m.Indices))
	}

	for _, idx := range m.Indices {
		if idx < 0 || idx >= m.VertexCount {
			return fmt.Errorf("%w: %s: index %d out of range", ErrInvalidMeshInfo, m.Name, idx)
		}
	}
	return nil
}

// SubMesh returns the triangle indices of submesh i.
// Returns nil if i is out of range.
func (m *MeshInfo) SubMesh(i int) []int {
	if i < 0 || i >= m.SubMeshCount {
		return nil
	}
	offset := 0
	for _, n := range m.IndicesCounts[:i] {
		offset += n
	}
	return m.Indices[offset : offset+m.IndicesCounts[i]]
}

// TriangleIndices returns the indices of all submeshes in order.
func (m *MeshInfo) TriangleIndices() []int {
	total := 0
	for _, n := range m.IndicesCounts[:m.SubMeshCount] {
		total += n
	}
	return m.Indices[:total]
}
