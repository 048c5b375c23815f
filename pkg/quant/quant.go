// Package quant decodes the quantized vertex positions carried by STM frames.
//
// Keyframes place every vertex inside a package: a cell of a cubic grid of
// PackageSize cells per axis spanning [-AreaRange, AreaRange). The package
// origin is one byte per axis and each vertex adds a 5-bit sub-cell offset per
// axis. Delta frames carry one biased byte per axis whose magnitude is squared,
// which gives finer steps near zero.
package quant

import (
	"errors"
	"fmt"

	"github.com/Faultbox/stmesh/pkg/math"
)

// DeltaScale is the scale applied to squared delta components, (1/128)^2.
const DeltaScale float32 = 1.0 / 16384.0

// deltaBias is the byte value that encodes a zero delta.
const deltaBias = 128

// subCells is the number of sub-cell steps per grid cell (5-bit fields).
const subCells = 32

// offsetMask selects one 5-bit offset field.
const offsetMask = 0x1F

// ErrInvalidParams is returned by Validate for unusable grid parameters.
var ErrInvalidParams = errors.New("invalid quantization parameters")

// Params holds the per-session quantization constants.
type Params struct {
	AreaRange   int // Half-extent of the quantized volume
	PackageSize int // Grid resolution per axis
}

// Validate checks that the parameters define a usable grid.
func (p Params) Validate() error {
	if p.AreaRange <= 0 {
		return fmt.Errorf("%w: area range %d", ErrInvalidParams, p.AreaRange)
	}
	if p.PackageSize < 2 {
		return fmt.Errorf("%w: package size %d", ErrInvalidParams, p.PackageSize)
	}
	return nil
}

// HalfCells returns hk, the number of grid cells on each side of the origin.
func (p Params) HalfCells() int {
	return p.PackageSize / 2
}

// CellQuantum returns qk, the edge length of one grid cell.
func (p Params) CellQuantum() float32 {
	return float32(p.AreaRange) / float32(p.HalfCells())
}

// SubCellQuantum returns sqk, the step of one 5-bit offset unit.
func (p Params) SubCellQuantum() float32 {
	return p.CellQuantum() / subCells
}

// DecodeKeyframeOrigin maps a package grid byte to a coordinate on one axis.
func (p Params) DecodeKeyframeOrigin(raw byte) float32 {
	return float32(int(raw)-p.HalfCells()) * p.CellQuantum()
}

// DecodeKeyframeOrigins decodes the three origin bytes of a package.
func (p Params) DecodeKeyframeOrigins(x, y, z byte) math.Vec3 {
	return math.Vec3{
		X: p.DecodeKeyframeOrigin(x),
		Y: p.DecodeKeyframeOrigin(y),
		Z: p.DecodeKeyframeOrigin(z),
	}
}

// DecodeKeyframeOffset unpacks three 5-bit fields, low bits first, into a
// sub-cell offset. Bit 15 is unused.
func (p Params) DecodeKeyframeOffset(packed uint16) math.Vec3 {
	sqk := p.SubCellQuantum()
	return math.Vec3{
		X: float32(packed&offsetMask) * sqk,
		Y: float32((packed>>5)&offsetMask) * sqk,
		Z: float32((packed>>10)&offsetMask) * sqk,
	}
}

// DecodeDeltaComponent reconstructs one delta axis: d = b - 128,
// result = sign(d) * d^2 * scale.
func DecodeDeltaComponent(b byte, scale float32) float32 {
	d := int(b) - deltaBias
	sq := float32(d*d) * scale
	if d < 0 {
		return -sq
	}
	return sq
}

// DecodeDelta decodes a 3-byte delta triple with DeltaScale.
func DecodeDelta(x, y, z byte) math.Vec3 {
	return math.Vec3{
		X: DecodeDeltaComponent(x, DeltaScale),
		Y: DecodeDeltaComponent(y, DeltaScale),
		Z: DecodeDeltaComponent(z, DeltaScale),
	}
}
