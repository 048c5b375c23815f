// Package transport fetches channel resources asynchronously.
//
// Fetch never blocks the caller: each request runs on its own goroutine,
// bounded by a semaphore, and its Result is delivered on a single channel
// that the tick loop drains.
package transport

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
)

// Kind identifies what a request fetches, which decides how the result is
// parsed.
type Kind int

const (
	KindChannel Kind = iota
	KindTexture
	KindMaterial
	KindMesh
	KindStreamList
	KindSegment
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindTexture:
		return "texture"
	case KindMaterial:
		return "material"
	case KindMesh:
		return "mesh"
	case KindStreamList:
		return "stream-list"
	case KindSegment:
		return "segment"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Static reports whether resources of this kind never change during a
// session and may be served from cache.
func (k Kind) Static() bool {
	switch k {
	case KindChannel, KindTexture, KindMaterial, KindMesh:
		return true
	}
	return false
}

// Request describes one resource fetch.
type Request struct {
	Kind    Kind
	URL     string
	Ordinal int // Position within its kind in the channel info lists
	Segment int // Segment index, for KindSegment
	Size    int // Expected decompressed size, for KindSegment; 0 if unknown
	Tag     int // Opaque caller value, returned unchanged
}

// Result is a completed fetch.
type Result struct {
	Request Request
	Data    []byte
	Err     error
}

// Fetcher is the transport used by the receiver.
type Fetcher interface {
	// Fetch starts req in the background. The result is delivered on
	// Results unless the fetcher is closed first.
	Fetch(ctx context.Context, req Request)
	// Results returns the completion channel.
	Results() <-chan Result
	// SetSession sets the session id sent with every request.
	SetSession(id string)
	// Close cancels in-flight requests and waits for their goroutines.
	Close() error
}

// ErrDecompress is returned when a compressed payload is corrupt or
// inflates past its limit.
var ErrDecompress = errors.New("decompressing payload")

// SizeSlack is added to an expected payload size to form its
// decompression limit, so a slightly long segment still reaches the
// slicer and is reported there.
const SizeSlack = 64 << 10

// SizeLimit returns the decompression limit for a payload expected to
// inflate to size bytes. A size of 0 or less means no limit.
func SizeLimit(size int) int {
	if size <= 0 {
		return 0
	}
	return size + SizeSlack
}

// FetchError reports a failed resource fetch.
type FetchError struct {
	URL    string
	Status int // HTTP status, 0 if the request never got a response
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Decompress inflates gzip or zlib payloads, detected by their headers.
// Data with neither header is returned unchanged. A positive limit caps the
// inflated size.
func Decompress(data []byte, limit int) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)
	switch {
	case isGzip(data):
		r, err = gzip.NewReader(bytes.NewReader(data))
	case isZlib(data):
		r, err = zlib.NewReader(bytes.NewReader(data))
	default:
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	defer r.Close()

	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, int64(limit)+1)
	}
	out, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	if limit > 0 && len(out) > limit {
		return nil, fmt.Errorf("%w: inflates past %d bytes", ErrDecompress, limit)
	}
	return out, nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1F && data[1] == 0x8B
}

// isZlib checks the CMF/FLG pair: deflate method, window <= 32K and the
// header checksum.
func isZlib(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	cmf, flg := data[0], data[1]
	return cmf&0x0F == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
