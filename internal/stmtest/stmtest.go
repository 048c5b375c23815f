// Package stmtest builds synthetic STM frames and segments for tests.
package stmtest

import (
	gomath "math"

	"github.com/Faultbox/stmesh/pkg/formats"
	"github.com/Faultbox/stmesh/pkg/math"
	"github.com/Faultbox/stmesh/pkg/quant"
)

// Vertex is one raw keyframe vertex record.
type Vertex struct {
	Index  uint16 // Vertex index within the mesh
	Mesh   uint8  // Mesh index
	Packed uint16 // Three 5-bit sub-cell offsets
}

// Keyframe assembles a keyframe frame package by package.
type Keyframe struct {
	Root     math.Vec3
	packages [][]byte
}

// NewKeyframe starts a keyframe with the given root offset.
func NewKeyframe(root math.Vec3) *Keyframe {
	return &Keyframe{Root: root}
}

// Package appends a package with the given origin bytes and vertices.
func (k *Keyframe) Package(ox, oy, oz byte, verts ...Vertex) *Keyframe {
	return k.PackageWithCount(ox, oy, oz, len(verts), verts...)
}

// PackageWithCount appends a package whose declared vertex count may differ
// from the number of records written, for truncation tests.
func (k *Keyframe) PackageWithCount(ox, oy, oz byte, count int, verts ...Vertex) *Keyframe {
	pkg := []byte{ox, oy, oz, 0, 0, 0}
	formats.PutUint24(pkg[3:], count)
	for _, v := range verts {
		pkg = append(pkg,
			byte(v.Index), byte(v.Index>>8),
			v.Mesh,
			byte(v.Packed), byte(v.Packed>>8),
		)
	}
	k.packages = append(k.packages, pkg)
	return k
}

// Bytes returns the encoded frame.
func (k *Keyframe) Bytes() []byte {
	h := formats.FrameHeader{
		Type:         formats.FrameKeyframe,
		PackageCount: len(k.packages),
		Root:         k.Root,
	}
	buf := h.AppendHeader(nil)
	for _, p := range k.packages {
		buf = append(buf, p...)
	}
	return buf
}

// Delta encodes a delta frame from raw per-axis bytes in trace order.
func Delta(root math.Vec3, triples ...[3]byte) []byte {
	h := formats.FrameHeader{Type: formats.FrameDelta, Root: root}
	buf := h.AppendHeader(nil)
	for _, t := range triples {
		buf = append(buf, t[0], t[1], t[2])
	}
	return buf
}

// Frame encodes a bare header of any type followed by payload.
func Frame(t formats.FrameType, root math.Vec3, payload []byte) []byte {
	h := formats.FrameHeader{Type: t, Root: root}
	return append(h.AppendHeader(nil), payload...)
}

// Segment concatenates frames into a segment blob and returns the per-frame
// sizes a stream list would carry for it.
func Segment(frames ...[]byte) (blob []byte, sizes []int) {
	for _, f := range frames {
		blob = append(blob, f...)
		sizes = append(sizes, len(f))
	}
	return blob, sizes
}

// EncodePosition quantizes pos into package origin bytes and a packed
// sub-cell offset. Positions outside the grid are clamped.
func EncodePosition(p quant.Params, pos math.Vec3) (origin [3]byte, packed uint16) {
	qk := float64(p.CellQuantum())
	sqk := float64(p.SubCellQuantum())
	hk := p.HalfCells()

	axes := [3]float32{pos.X, pos.Y, pos.Z}
	for i, a := range axes {
		cell := int(gomath.Floor(float64(a) / qk))
		raw := clamp(cell+hk, 0, 255)
		rem := float64(a) - float64(raw-hk)*qk
		off := clamp(int(gomath.Round(rem/sqk)), 0, 31)
		origin[i] = byte(raw)
		packed |= uint16(off) << (5 * i)
	}
	return origin, packed
}

// EncodeDelta quantizes one delta axis to the biased squared byte encoding.
func EncodeDelta(v float32) byte {
	mag := gomath.Round(gomath.Sqrt(gomath.Abs(float64(v)) * 16384))
	d := int(mag)
	if v < 0 {
		d = -d
	}
	return byte(clamp(d, -128, 127) + 128)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
