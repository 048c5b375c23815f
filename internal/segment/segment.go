// Package segment slices decompressed stream segments into frames and keeps
// them in playback order.
package segment

import (
	"errors"
	"fmt"

	"github.com/Faultbox/stmesh/pkg/formats"
)

// Slicing errors.
var (
	ErrSegmentTruncated = errors.New("segment shorter than manifest sizes")
	ErrInvalidSize      = errors.New("invalid frame size in manifest")
	ErrTrailingBytes    = errors.New("segment longer than manifest sizes")
)

// Frame is one buffered frame: its logical time and raw bytes.
type Frame struct {
	Time     float64 // Seconds since stream start
	Segment  int     // Segment index the frame came from
	Subframe int     // Position within the segment
	Data     []byte
}

// Timing converts segment and subframe positions into logical time.
type Timing struct {
	SegmentDuration  float64 // Seconds covered by one segment
	SubframeDuration float64 // Seconds between frames within a segment
}

// TimingFor derives timing from channel info: a segment holds
// CombinedFrames frames spaced FrameInterval apart.
func TimingFor(info *formats.ChannelInfo) Timing {
	return Timing{
		SegmentDuration:  info.SegmentDuration(),
		SubframeDuration: float64(info.FrameInterval),
	}
}

// FrameTime returns the logical time of subframe n of segment index.
func (t Timing) FrameTime(index, n int) float64 {
	return float64(index)*t.SegmentDuration + float64(n)*t.SubframeDuration
}

// Slice cuts blob into consecutive frames of the given sizes. Frames share
// the blob's backing array.
//
// A blob shorter than the sizes yields the frames that fit together with
// ErrSegmentTruncated. A longer blob yields every frame together with
// ErrTrailingBytes. A negative size rejects the whole segment.
func Slice(index int, sizes []int, blob []byte, t Timing) ([]Frame, error) {
	for i, n := range sizes {
		if n < 0 {
			return nil, fmt.Errorf("%w: segment %d frame %d size %d", ErrInvalidSize, index, i, n)
		}
	}

	frames := make([]Frame, 0, len(sizes))
	off := 0
	for i, n := range sizes {
		if len(blob)-off < n {
			return frames, fmt.Errorf("%w: segment %d frame %d needs %d bytes at offset %d, have %d",
				ErrSegmentTruncated, index, i, n, off, len(blob)-off)
		}
		frames = append(frames, Frame{
			Time:     t.FrameTime(index, i),
			Segment:  index,
			Subframe: i,
			Data:     blob[off : off+n : off+n],
		})
		off += n
	}

	if off < len(blob) {
		return frames, fmt.Errorf("%w: segment %d has %d extra bytes", ErrTrailingBytes, index, len(blob)-off)
	}
	return frames, nil
}
