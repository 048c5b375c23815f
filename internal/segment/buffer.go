package segment

import (
	"fmt"
	"sort"
	"strings"
)

// Order selects how a Buffer places incoming frames.
type Order int

const (
	// OrderArrival appends frames in the order segments are received.
	OrderArrival Order = iota
	// OrderTime inserts frames by logical time. Frames that would land
	// before the read cursor are dropped as late.
	OrderTime
)

// String returns the configuration name of the order.
func (o Order) String() string {
	switch o {
	case OrderArrival:
		return "arrival"
	case OrderTime:
		return "time"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// ParseOrder parses a configuration name. The empty string means arrival.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", "arrival":
		return OrderArrival, nil
	case "time":
		return OrderTime, nil
	default:
		return OrderArrival, fmt.Errorf("unknown buffer order %q", s)
	}
}

// Buffer is the ordered list of received frames plus a read cursor.
// Frames are never removed while a session runs.
type Buffer struct {
	order  Order
	frames []Frame
	cursor int
	late   int
}

// NewBuffer creates an empty buffer with the given ordering policy.
func NewBuffer(order Order) *Buffer {
	return &Buffer{order: order}
}

// Order returns the buffer's ordering policy.
func (b *Buffer) Order() Order {
	return b.order
}

// Append adds frames according to the buffer's policy and returns how many
// were kept.
func (b *Buffer) Append(frames ...Frame) int {
	if b.order == OrderArrival {
		b.frames = append(b.frames, frames...)
		return len(frames)
	}

	kept := 0
	for _, f := range frames {
		// Upper bound keeps equal times in arrival order.
		pos := sort.Search(len(b.frames), func(i int) bool {
			return b.frames[i].Time > f.Time
		})
		if pos < b.cursor {
			b.late++
			continue
		}
		b.frames = append(b.frames, Frame{})
		copy(b.frames[pos+1:], b.frames[pos:])
		b.frames[pos] = f
		kept++
	}
	return kept
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	return len(b.frames)
}

// At returns frame i.
func (b *Buffer) At(i int) Frame {
	return b.frames[i]
}

// Cursor returns the index of the next unread frame.
func (b *Buffer) Cursor() int {
	return b.cursor
}

// SetCursor moves the read cursor, clamped to [0, Len].
func (b *Buffer) SetCursor(i int) {
	b.cursor = max(0, min(i, len(b.frames)))
}

// Peek returns the frame at the cursor, if any.
func (b *Buffer) Peek() (Frame, bool) {
	if b.cursor >= len(b.frames) {
		return Frame{}, false
	}
	return b.frames[b.cursor], true
}

// Advance moves the cursor past the current frame.
func (b *Buffer) Advance() {
	if b.cursor < len(b.frames) {
		b.cursor++
	}
}

// Unread returns the number of frames at or after the cursor.
func (b *Buffer) Unread() int {
	return len(b.frames) - b.cursor
}

// Late returns the number of frames dropped for arriving behind the cursor.
func (b *Buffer) Late() int {
	return b.late
}

// Reset drops every frame and rewinds the cursor.
func (b *Buffer) Reset() {
	clear(b.frames)
	b.frames = b.frames[:0]
	b.cursor = 0
	b.late = 0
}
