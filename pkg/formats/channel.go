package formats

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Faultbox/stmesh/pkg/quant"
)

// ErrInvalidChannel is returned when channel info cannot drive a session.
var ErrInvalidChannel = errors.New("invalid channel info")

// ChannelInfo is the session description served as the channel's stream file.
// It is immutable once received and fixes the quantization constants.
type ChannelInfo struct {
	AreaRange      int      `json:"area_range"`
	PackageSize    int      `json:"package_size"`
	FrameInterval  float32  `json:"frame_interval"`  // Seconds between frames
	CombinedFrames int      `json:"combined_frames"` // Frames per stream segment
	StreamInfo     string   `json:"stream_info"`     // Stream list URL
	Textures       []string `json:"textures"`
	Materials      []string `json:"materials"`
	Meshes         []string `json:"meshes"`
}

// ParseChannelInfo parses and validates a channel info document.
func ParseChannelInfo(data []byte) (*ChannelInfo, error) {
	var info ChannelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing channel info: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// ParseChannelInfoFile parses channel info from disk.
func ParseChannelInfoFile(path string) (*ChannelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading channel info: %w", err)
	}
	return ParseChannelInfo(data)
}

// Validate checks the fields the decoder and reassembler depend on.
func (c *ChannelInfo) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChannel, err)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("%w: frame interval %v", ErrInvalidChannel, c.FrameInterval)
	}
	if c.CombinedFrames <= 0 {
		return fmt.Errorf("%w: combined frames %d", ErrInvalidChannel, c.CombinedFrames)
	}
	return nil
}

// Params returns the quantization parameters of the session.
func (c *ChannelInfo) Params() quant.Params {
	return quant.Params{AreaRange: c.AreaRange, PackageSize: c.PackageSize}
}

// SegmentDuration returns the logical length of one stream segment in seconds.
func (c *ChannelInfo) SegmentDuration() float64 {
	return float64(c.CombinedFrames) * float64(c.FrameInterval)
}

// ResourceCount returns the number of texture, material and mesh resources.
func (c *ChannelInfo) ResourceCount() int {
	return len(c.Textures) + len(c.Materials) + len(c.Meshes)
}
