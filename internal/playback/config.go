package playback

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fogleman/ease"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid playback config")

// Easing maps the linear interpolation weight in [0, 1) to a blend factor.
type Easing func(t float64) float64

var easings = map[string]Easing{
	"linear":       ease.Linear,
	"in-quad":      ease.InQuad,
	"out-quad":     ease.OutQuad,
	"in-out-quad":  ease.InOutQuad,
	"in-out-cubic": ease.InOutCubic,
	"in-out-sine":  ease.InOutSine,
}

// EasingByName looks up a named easing curve. The empty name is linear.
func EasingByName(name string) (Easing, error) {
	if name == "" {
		return ease.Linear, nil
	}
	fn, ok := easings[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown easing %q (have %s)", name, strings.Join(EasingNames(), ", "))
	}
	return fn, nil
}

// EasingNames returns the supported easing names, sorted.
func EasingNames() []string {
	names := make([]string, 0, len(easings))
	for n := range easings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config holds the scheduler timing. All durations are in seconds.
type Config struct {
	FrameInterval         float64 // From channel info
	StreamRefreshInterval float64 // Stream list refresh period
	VertexUpdateInterval  float64 // Period between frame decodes
	InterpolateFrames     int     // Blend sub-steps per frame
	SubframesPerKeyframe  int     // Deltas following each keyframe
	Easing                Easing  // Nil means linear
}

// DefaultConfig returns the stock player timing.
func DefaultConfig() Config {
	return Config{
		FrameInterval:         0.1,
		StreamRefreshInterval: 10,
		VertexUpdateInterval:  0.1,
		InterpolateFrames:     5,
		SubframesPerKeyframe:  4,
	}
}

// Validate checks that every period is positive.
func (c Config) Validate() error {
	switch {
	case c.FrameInterval <= 0:
		return fmt.Errorf("%w: frame interval %v", ErrInvalidConfig, c.FrameInterval)
	case c.StreamRefreshInterval <= 0:
		return fmt.Errorf("%w: stream refresh interval %v", ErrInvalidConfig, c.StreamRefreshInterval)
	case c.VertexUpdateInterval <= 0:
		return fmt.Errorf("%w: vertex update interval %v", ErrInvalidConfig, c.VertexUpdateInterval)
	case c.InterpolateFrames < 1:
		return fmt.Errorf("%w: interpolate frames %d", ErrInvalidConfig, c.InterpolateFrames)
	case c.SubframesPerKeyframe < 0:
		return fmt.Errorf("%w: subframes per keyframe %d", ErrInvalidConfig, c.SubframesPerKeyframe)
	}
	return nil
}

// InterpolationStep returns the period between blend sub-steps.
func (c Config) InterpolationStep() float64 {
	return c.FrameInterval / float64(c.InterpolateFrames)
}

// KeyframeGroup returns the number of frames from one keyframe to the next.
func (c Config) KeyframeGroup() int {
	return c.SubframesPerKeyframe + 1
}
