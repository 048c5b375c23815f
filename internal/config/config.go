// Package config handles player configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Faultbox/stmesh/internal/playback"
	"github.com/Faultbox/stmesh/internal/segment"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds all player settings.
type Config struct {
	Stream   StreamConfig   `yaml:"stream"`
	Playback PlaybackConfig `yaml:"playback"`
	Network  NetworkConfig  `yaml:"network"`
	Graphics GraphicsConfig `yaml:"graphics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StreamConfig selects the channel to play.
type StreamConfig struct {
	ServerAddress   string   `yaml:"server_address"`    // Base URL ending in "/"
	Channel         string   `yaml:"channel"`           // Channel name under the server
	StreamFile      string   `yaml:"stream_file"`       // Channel info file, or full URL
	ReferFromServer bool     `yaml:"refer_from_server"` // Build the URL from server and channel
	LocalDirs       []string `yaml:"local_dirs"`        // Directories serving non-http URLs
}

// PlaybackConfig holds scheduler timing.
type PlaybackConfig struct {
	StreamRefreshInterval time.Duration `yaml:"stream_refresh_interval"`
	VertexUpdateInterval  time.Duration `yaml:"vertex_update_interval"`
	InterpolateFrames     int           `yaml:"interpolate_frames"`
	SubframesPerKeyframe  int           `yaml:"subframes_per_keyframe"`
	Easing                string        `yaml:"easing"`       // See playback.EasingNames
	BufferOrder           string        `yaml:"buffer_order"` // "arrival" or "time"
}

// NetworkConfig holds HTTP settings.
type NetworkConfig struct {
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests"`
	UserAgent             string        `yaml:"user_agent"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	Fullscreen    bool   `yaml:"fullscreen"`
	VSync         bool   `yaml:"vsync"`
	Headless      bool   `yaml:"headless"` // No window; log stats instead
	Wireframe     bool   `yaml:"wireframe"`
	ShowBounds    bool   `yaml:"show_bounds"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			ServerAddress:   "http://127.0.0.1:8000/",
			Channel:         "default",
			StreamFile:      "stream.json",
			ReferFromServer: true,
		},
		Playback: PlaybackConfig{
			StreamRefreshInterval: 10 * time.Second,
			VertexUpdateInterval:  100 * time.Millisecond,
			InterpolateFrames:     5,
			SubframesPerKeyframe:  4,
			Easing:                "linear",
			BufferOrder:           "arrival",
		},
		Network: NetworkConfig{
			RequestTimeout:        30 * time.Second,
			MaxConcurrentRequests: 8,
			UserAgent:             "stmplayer/1.0",
		},
		Graphics: GraphicsConfig{
			Width:         1280,
			Height:        720,
			Fullscreen:    false,
			VSync:         true,
			ScreenshotDir: "screenshots",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks ranges and names.
func (c *Config) Validate() error {
	if c.Stream.StreamFile == "" {
		return fmt.Errorf("%w: stream.stream_file is empty", ErrInvalid)
	}
	if c.Stream.ReferFromServer && c.Stream.ServerAddress == "" {
		return fmt.Errorf("%w: stream.server_address is empty", ErrInvalid)
	}
	if c.Playback.StreamRefreshInterval <= 0 {
		return fmt.Errorf("%w: playback.stream_refresh_interval must be positive", ErrInvalid)
	}
	if c.Playback.VertexUpdateInterval <= 0 {
		return fmt.Errorf("%w: playback.vertex_update_interval must be positive", ErrInvalid)
	}
	if c.Playback.InterpolateFrames < 1 {
		return fmt.Errorf("%w: playback.interpolate_frames must be at least 1", ErrInvalid)
	}
	if c.Playback.SubframesPerKeyframe < 0 {
		return fmt.Errorf("%w: playback.subframes_per_keyframe is negative", ErrInvalid)
	}
	if _, err := playback.EasingByName(c.Playback.Easing); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := segment.ParseOrder(c.Playback.BufferOrder); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Network.MaxConcurrentRequests < 1 {
		return fmt.Errorf("%w: network.max_concurrent_requests must be at least 1", ErrInvalid)
	}
	if !c.Graphics.Headless && (c.Graphics.Width <= 0 || c.Graphics.Height <= 0) {
		return fmt.Errorf("%w: graphics size %dx%d", ErrInvalid, c.Graphics.Width, c.Graphics.Height)
	}
	return nil
}

// PlayerConfig converts the playback section. The frame interval is a
// placeholder until the channel info provides the real one.
func (c *Config) PlayerConfig() (playback.Config, error) {
	easing, err := playback.EasingByName(c.Playback.Easing)
	if err != nil {
		return playback.Config{}, err
	}
	return playback.Config{
		FrameInterval:         playback.DefaultConfig().FrameInterval,
		StreamRefreshInterval: c.Playback.StreamRefreshInterval.Seconds(),
		VertexUpdateInterval:  c.Playback.VertexUpdateInterval.Seconds(),
		InterpolateFrames:     c.Playback.InterpolateFrames,
		SubframesPerKeyframe:  c.Playback.SubframesPerKeyframe,
		Easing:                easing,
	}, nil
}
