package config

import (
	"flag"
	"strings"
)

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagServer     = flag.String("server", "", "Stream server base URL")
	flagChannel    = flag.String("channel", "", "Channel name")
	flagStream     = flag.String("stream", "", "Channel info file name, or a full URL or path")
	flagLocal      = flag.String("local", "", "Directory serving non-http URLs")
	flagHeadless   = flag.Bool("headless", false, "Run without a window")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagEasing     = flag.String("easing", "", "Interpolation easing curve")
	flagOrder      = flag.String("order", "", "Frame buffer order: arrival or time")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagServer != "" {
		cfg.Stream.ServerAddress = *flagServer
		if !strings.HasSuffix(cfg.Stream.ServerAddress, "/") {
			cfg.Stream.ServerAddress += "/"
		}
	}
	if *flagChannel != "" {
		cfg.Stream.Channel = *flagChannel
	}
	if *flagStream != "" {
		cfg.Stream.StreamFile = *flagStream
		// A URL or path names the channel info directly.
		if strings.Contains(*flagStream, "/") {
			cfg.Stream.ReferFromServer = false
		}
	}
	if *flagLocal != "" {
		cfg.Stream.LocalDirs = append(cfg.Stream.LocalDirs, *flagLocal)
	}
	if *flagHeadless {
		cfg.Graphics.Headless = true
	}
	if *flagWindowed {
		cfg.Graphics.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagEasing != "" {
		cfg.Playback.Easing = *flagEasing
	}
	if *flagOrder != "" {
		cfg.Playback.BufferOrder = *flagOrder
	}
}
