// Package app wires configuration, transport and the receiver into the
// viewer and headless hosts.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/stmesh/internal/assets"
	"github.com/Faultbox/stmesh/internal/config"
	"github.com/Faultbox/stmesh/internal/logger"
	"github.com/Faultbox/stmesh/internal/playback"
	"github.com/Faultbox/stmesh/internal/receiver"
	"github.com/Faultbox/stmesh/internal/segment"
	"github.com/Faultbox/stmesh/internal/transport"
	"github.com/Faultbox/stmesh/pkg/formats"
)

// statsInterval is how often the session counters are logged.
const statsInterval = 5 * time.Second

// App owns one player process.
type App struct {
	cfg     *config.Config
	rcfg    receiver.Config
	assets  *assets.Manager
	fetcher *transport.HTTPFetcher
	recv    *receiver.Receiver
	log     *zap.Logger
}

// New validates the config and prepares the transport. The receiver is
// created by Run once the host has a sink for it.
func New(cfg *config.Config) (*App, error) {
	rcfg, err := receiverConfig(cfg)
	if err != nil {
		return nil, err
	}

	am := assets.NewManager()
	for _, dir := range cfg.Stream.LocalDirs {
		if err := am.AddDir(dir); err != nil {
			am.Close()
			return nil, fmt.Errorf("local dir: %w", err)
		}
	}

	a := &App{
		cfg:    cfg,
		rcfg:   rcfg,
		assets: am,
		fetcher: transport.NewHTTPFetcher(transport.Options{
			Timeout:       cfg.Network.RequestTimeout,
			MaxConcurrent: cfg.Network.MaxConcurrentRequests,
			UserAgent:     cfg.Network.UserAgent,
			Assets:        am,
		}),
		log: logger.Named("app"),
	}
	return a, nil
}

// receiverConfig converts the file config into receiver settings.
func receiverConfig(cfg *config.Config) (receiver.Config, error) {
	pc, err := cfg.PlayerConfig()
	if err != nil {
		return receiver.Config{}, err
	}
	order, err := segment.ParseOrder(cfg.Playback.BufferOrder)
	if err != nil {
		return receiver.Config{}, err
	}
	return receiver.Config{
		ServerAddress:   cfg.Stream.ServerAddress,
		Channel:         cfg.Stream.Channel,
		StreamFile:      cfg.Stream.StreamFile,
		ReferFromServer: cfg.Stream.ReferFromServer,
		Playback:        pc,
		Order:           order,
	}, nil
}

// Run plays the configured channel until ctx is done or the viewer window
// is closed.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Graphics.Headless {
		return a.runHeadless(ctx)
	}
	return a.runViewer(ctx)
}

// Close stops the transport and releases cached assets.
func (a *App) Close() {
	a.log.Info("closing")
	if err := a.fetcher.Close(); err != nil {
		a.log.Warn("closing transport", zap.Error(err))
	}
	a.assets.Close()
}

// start creates the receiver around sink and requests the channel.
func (a *App) start(ctx context.Context, sink playback.Sink, onReady func([]*formats.MeshInfo)) error {
	hooks := receiver.Hooks{
		OnAsset: func(kind transport.Kind, ordinal int, url string, data []byte) {
			a.log.Debug("asset received",
				zap.Stringer("kind", kind),
				zap.Int("ordinal", ordinal),
				zap.String("url", url),
				zap.Int("bytes", len(data)))
		},
		OnReady: func(meshes []*formats.MeshInfo) {
			vertices := 0
			for _, m := range meshes {
				vertices += m.VertexCount
			}
			a.log.Info("playback starting",
				zap.Int("meshes", len(meshes)),
				zap.Int("vertices", vertices))
			if onReady != nil {
				onReady(meshes)
			}
		},
	}

	recv, err := receiver.New(a.rcfg, a.fetcher, sink, hooks)
	if err != nil {
		return err
	}
	a.recv = recv
	return recv.Initialize(ctx)
}

// seek handles the seek actions relative to the frame on screen.
func (a *App) seek(delta int, fromStart bool) {
	p := a.recv.Player()
	target := 0
	if !fromStart {
		target = p.Stats().Cursor - 1 + delta*p.Config().KeyframeGroup()
	}
	if err := p.SeekTo(target); err != nil {
		if errors.Is(err, playback.ErrNotPlaying) {
			a.log.Debug("seek ignored before playback")
			return
		}
		a.log.Warn("seek failed", zap.Int("target", target), zap.Error(err))
	}
}

func (a *App) logStats() {
	s := a.recv.Stats()
	a.log.Info("stats",
		zap.Stringer("state", s.Player.State),
		zap.Int("cursor", s.Player.Cursor),
		zap.Int("buffered", s.Player.Buffered),
		zap.Int("segments", s.Segments),
		zap.Int("received", s.Received),
		zap.Int("decoded", s.Player.Decoded),
		zap.Int("keyframes", s.Player.Keyframes),
		zap.Int("deltas", s.Player.Deltas),
		zap.Int("dropped", s.Player.Dropped),
		zap.Int("parse_errors", s.Player.ParseErrors),
		zap.Int("out_of_range", s.Player.OutOfRange),
		zap.Int("late", s.Player.Late),
		zap.Int("errors", s.Errors))
}
