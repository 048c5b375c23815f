package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"github.com/Faultbox/stmesh/pkg/math"
)

// FrameHeaderSize is the size of the fixed frame header in bytes.
const FrameHeaderSize = 21

// Frame header field offsets.
const (
	offsetType         = 0
	offsetPackageCount = 5
	offsetCompressed   = 8
	offsetRoot         = 9
)

// Frame format errors.
var (
	ErrShortFrameHeader = errors.New("frame shorter than header")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// FrameType identifies the payload layout of a frame.
type FrameType uint8

// Frame type constants.
const (
	FrameDelta    FrameType = 0x0E // Incremental corrections in trace order
	FrameKeyframe FrameType = 0x0F // Absolute positions, rebuilds the trace
)

// String returns a human-readable frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameDelta:
		return "Delta"
	case FrameKeyframe:
		return "Keyframe"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
	}
}

// Valid reports whether t is a known frame type.
func (t FrameType) Valid() bool {
	return t == FrameDelta || t == FrameKeyframe
}

// FrameHeader is the fixed 21-byte prefix of every frame.
type FrameHeader struct {
	Type         FrameType
	PackageCount int       // Keyframe packages; carried but unused by deltas
	Compressed   bool      // Currently ignored by the decoder
	Root         math.Vec3 // Whole-object translation
}

// ParseFrameHeader parses the header at the start of data.
// Unknown frame types are returned together with ErrUnknownFrameType so
// callers can still log the header.
func ParseFrameHeader(data []byte) (FrameHeader, error) {
	if len(data) < FrameHeaderSize {
		return FrameHeader{}, fmt.Errorf("%w: %d bytes", ErrShortFrameHeader, len(data))
	}

	h := FrameHeader{
		Type:         FrameType(data[offsetType]),
		PackageCount: Uint24(data[offsetPackageCount:]),
		Compressed:   data[offsetCompressed] == 0x01,
		Root: math.Vec3{
			X: Float32(data[offsetRoot:]),
			Y: Float32(data[offsetRoot+4:]),
			Z: Float32(data[offsetRoot+8:]),
		},
	}

	if !h.Type.Valid() {
		return h, fmt.Errorf("%w: %s", ErrUnknownFrameType, h.Type)
	}
	return h, nil
}

// Uint24 reads a little-endian 3-byte unsigned integer.
func Uint24(b []byte) int {
	_ = b[2]
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

// Float32 reads a little-endian IEEE 754 float.
func Float32(b []byte) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(b))
}

// PutUint24 writes v as a little-endian 3-byte integer.
func PutUint24(b []byte, v int) {
	_ = b[2]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// AppendHeader appends the encoded header to buf.
func (h FrameHeader) AppendHeader(buf []byte) []byte {
	var hdr [FrameHeaderSize]byte
	hdr[offsetType] = byte(h.Type)
	PutUint24(hdr[offsetPackageCount:], h.PackageCount)
	if h.Compressed {
		hdr[offsetCompressed] = 0x01
	}
	binary.LittleEndian.PutUint32(hdr[offsetRoot:], gomath.Float32bits(h.Root.X))
	binary.LittleEndian.PutUint32(hdr[offsetRoot+4:], gomath.Float32bits(h.Root.Y))
	binary.LittleEndian.PutUint32(hdr[offsetRoot+8:], gomath.Float32bits(h.Root.Z))
	return append(buf, hdr[:]...)
}
