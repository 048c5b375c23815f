package formats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// ErrNoSegmentIndex is returned when a segment name has no integer file stem.
var ErrNoSegmentIndex = errors.New("segment name has no integer index")

// StreamInfo is one line of a stream list: a segment resource and the
// decompressed byte size of each frame it contains, in order.
type StreamInfo struct {
	Name string `json:"name"`
	Size []int  `json:"size"`
}

// Index returns the segment index parsed from the resource name.
func (s StreamInfo) Index() (int, error) {
	return SegmentIndex(s.Name)
}

// TotalSize returns the expected decompressed size of the segment.
func (s StreamInfo) TotalSize() int {
	total := 0
	for _, n := range s.Size {
		total += n
	}
	return total
}

// ParseStreamList parses a newline-delimited list of StreamInfo objects.
// Blank and malformed lines are skipped and counted, matching the lenient
// server contract: a partially written list is still usable.
func ParseStreamList(data []byte) (infos []StreamInfo, skipped int) {
	// Lines have no length limit; an oversized one is just malformed.
	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		var info StreamInfo
		if err := json.Unmarshal(line, &info); err != nil || info.Name == "" {
			skipped++
			continue
		}
		infos = append(infos, info)
	}
	return infos, skipped
}

// SegmentIndex extracts the integer file stem from a segment URL or name,
// e.g. "http://host/ch/stream/12.stm" -> 12.
func SegmentIndex(name string) (int, error) {
	p := name
	if u, err := url.Parse(name); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))

	idx, err := strconv.Atoi(stem)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoSegmentIndex, name)
	}
	return idx, nil
}
