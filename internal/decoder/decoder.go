// Package decoder applies STM keyframe and delta frames to a vertex store.
//
// A keyframe writes absolute positions and records the order in which
// vertices were written (the trace). Each following delta frame carries one
// 3-byte correction per trace entry, in trace order. Any corruption seen in a
// keyframe disables deltas until the next keyframe.
package decoder

import (
	"errors"
	"fmt"

	"github.com/Faultbox/stmesh/internal/vertex"
	"github.com/Faultbox/stmesh/pkg/formats"
	"github.com/Faultbox/stmesh/pkg/quant"
)

// Decode errors. None of them are fatal to a session.
var (
	ErrTruncatedFrame   = errors.New("truncated frame")
	ErrUnknownFrameType = formats.ErrUnknownFrameType
	ErrIndexOutOfRange  = errors.New("vertex index out of range")
	ErrDesync           = errors.New("delta frame does not match trace")
)

// Sizes of the keyframe payload records.
const (
	packageHeaderSize = 6 // origin[3] + vertexCount(3)
	vertexRecordSize  = 5 // vertexIndex(2) + meshIndex(1) + packed(2)
	deltaRecordSize   = 3
)

// Ref addresses one vertex of one mesh.
type Ref struct {
	Mesh   int
	Vertex int
}

// Trace is the ordered list of vertices written by the last keyframe.
type Trace []Ref

// Result reports the outcome of one Decode call.
type Result struct {
	Type         formats.FrameType
	Applied      int   // Vertices written or corrected
	OutOfRange   int   // Keyframe vertices skipped for bad indices
	NormalsDirty bool  // Keyframe positions changed; normals and bounds are stale
	Err          error // First error of the frame, nil on success
}

// IsKeyframe reports whether the decoded frame was a keyframe.
func (r Result) IsKeyframe() bool {
	return r.Type == formats.FrameKeyframe
}

// Decoder is the stateful frame parser. It only ever writes the Current
// buffers of its store; copying Current into Previous before each decode is
// the caller's job. Not safe for concurrent use.
type Decoder struct {
	params  quant.Params
	store   *vertex.Store
	trace   Trace
	corrupt bool
}

// New creates a decoder writing into store.
func New(params quant.Params, store *vertex.Store) (*Decoder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("decoder: nil vertex store")
	}
	return &Decoder{params: params, store: store}, nil
}

// Trace returns the trace of the last keyframe. The slice is owned by the
// decoder and must not be modified.
func (d *Decoder) Trace() Trace {
	return d.trace
}

// Corrupt reports whether deltas are currently rejected.
func (d *Decoder) Corrupt() bool {
	return d.corrupt
}

// Store returns the vertex store the decoder writes into.
func (d *Decoder) Store() *vertex.Store {
	return d.store
}

// Reset clears the trace and the corruption flag.
func (d *Decoder) Reset() {
	d.trace = d.trace[:0]
	d.corrupt = false
}

// Decode applies one frame to the store.
func (d *Decoder) Decode(buf []byte) Result {
	h, err := formats.ParseFrameHeader(buf)
	if err != nil {
		d.corrupt = true
		if errors.Is(err, formats.ErrShortFrameHeader) {
			err = fmt.Errorf("%w: %w", ErrTruncatedFrame, err)
		}
		return Result{Type: h.Type, Err: err}
	}

	payload := buf[formats.FrameHeaderSize:]
	if h.Type == formats.FrameKeyframe {
		return d.decodeKeyframe(h, payload)
	}
	return d.decodeDelta(h, payload)
}

func (d *Decoder) decodeKeyframe(h formats.FrameHeader, payload []byte) Result {
	res := Result{Type: h.Type}
	d.trace = d.trace[:0]
	d.corrupt = false
	d.store.Root.Current = h.Root

	current := d.store.Current
	pos := 0
	for pkg := 0; pkg < h.PackageCount; pkg++ {
		if len(payload)-pos < packageHeaderSize {
			res.Err = fmt.Errorf("%w: package %d header at offset %d",
				ErrTruncatedFrame, pkg, formats.FrameHeaderSize+pos)
			break
		}
		origin := d.params.DecodeKeyframeOrigins(payload[pos], payload[pos+1], payload[pos+2])
		count := formats.Uint24(payload[pos+3:])
		pos += packageHeaderSize

		if len(payload)-pos < count*vertexRecordSize {
			// Keep the records that fit, then report truncation.
			count = (len(payload) - pos) / vertexRecordSize
			res.Err = fmt.Errorf("%w: package %d declares more vertices than remain",
				ErrTruncatedFrame, pkg)
		}

		for i := 0; i < count; i++ {
			rec := payload[pos : pos+vertexRecordSize]
			pos += vertexRecordSize

			v := int(rec[0]) | int(rec[1])<<8
			m := int(rec[2])
			packed := uint16(rec[3]) | uint16(rec[4])<<8

			if !d.store.InRange(m, v) {
				res.OutOfRange++
				d.corrupt = true
				continue
			}
			current[m][v] = origin.Add(d.params.DecodeKeyframeOffset(packed))
			d.trace = append(d.trace, Ref{Mesh: m, Vertex: v})
			res.Applied++
		}

		if res.Err != nil {
			break
		}
	}

	if res.Err != nil {
		d.corrupt = true
	} else if res.OutOfRange > 0 {
		res.Err = fmt.Errorf("%w: %d vertices skipped", ErrIndexOutOfRange, res.OutOfRange)
	}
	res.NormalsDirty = res.Applied > 0 || res.Err == nil
	return res
}

func (d *Decoder) decodeDelta(h formats.FrameHeader, payload []byte) Result {
	res := Result{Type: h.Type}
	if d.corrupt {
		res.Err = fmt.Errorf("%w: trace is corrupt", ErrDesync)
		return res
	}
	if len(payload) != len(d.trace)*deltaRecordSize {
		d.corrupt = true
		res.Err = fmt.Errorf("%w: %d payload bytes for %d trace entries",
			ErrDesync, len(payload), len(d.trace))
		return res
	}

	d.store.Root.Current = h.Root
	current := d.store.Current
	for i, ref := range d.trace {
		b := payload[i*deltaRecordSize:]
		delta := quant.DecodeDelta(b[0], b[1], b[2])
		current[ref.Mesh][ref.Vertex] = current[ref.Mesh][ref.Vertex].Add(delta)
	}
	res.Applied = len(d.trace)
	return res
}
