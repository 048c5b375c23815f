// Package playback schedules frame decodes and pose blending on a tick.
//
// The Player is driven by a single caller at a fixed rate. Each Tick it may
// ask for a stream list refresh, decode the next buffered frame, and advance
// the blend between the previous and current decoded poses. The blended pose
// is pushed to a Sink; decoded positions are never modified by blending.
package playback

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/stmesh/internal/decoder"
	"github.com/Faultbox/stmesh/internal/logger"
	"github.com/Faultbox/stmesh/internal/segment"
	"github.com/Faultbox/stmesh/pkg/formats"
	"github.com/Faultbox/stmesh/pkg/math"
)

// Seek errors.
var (
	ErrNotPlaying = errors.New("player has no decoder")
	ErrSeekTarget = errors.New("invalid seek target")
)

// State is the player lifecycle state.
type State int

const (
	StateIdle      State = iota // No session
	StateBuffering              // Channel known, waiting for mesh topology
	StatePlaying                // Decoding and blending
	StateSeeking                // Inside SeekTo
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StateSeeking:
		return "seeking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sink receives the blended output of every interpolation sub-step.
type Sink interface {
	// UpdatePose receives per-mesh blended positions. The slices are reused
	// by the player and are only valid for the duration of the call.
	UpdatePose(meshes [][]math.Vec3)
	// UpdateRoot receives the blended whole-object translation.
	UpdateRoot(root math.Vec3)
	// NormalsDirty is called once per keyframe with the exact decoded
	// positions and root, which the blended pose approaches over the
	// following sub-steps. The slices are only valid for the duration of
	// the call.
	NormalsDirty(meshes [][]math.Vec3, root math.Vec3)
}

// Requester issues stream list refreshes.
type Requester interface {
	RequestManifest()
}

// Stats is a snapshot of player counters.
type Stats struct {
	State       State
	Cursor      int     // Next unread frame
	Buffered    int     // Frames in the buffer
	Decoded     int     // Frames passed to the decoder
	Keyframes   int
	Deltas      int
	Dropped     int     // Deltas rejected for desync
	ParseErrors int     // Truncated or unknown frames
	OutOfRange  int     // Keyframe vertices skipped
	Late        int     // Frames dropped by the buffer for arriving late
	Weight      float32 // Current interpolation weight
}

// Player is the playback scheduler. Not safe for concurrent use.
type Player struct {
	cfg    Config
	easing Easing
	buf    *segment.Buffer
	sink   Sink
	req    Requester
	log    *zap.Logger

	dec    *decoder.Decoder
	state  State
	paused bool

	manifestWait float64
	updateWait   float64
	interpWait   float64
	weight       float32

	stats Stats
}

// New creates an idle player reading from buf.
func New(cfg Config, buf *segment.Buffer, sink Sink, req Requester) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if buf == nil || sink == nil || req == nil {
		return nil, errors.New("playback: nil buffer, sink or requester")
	}
	p := &Player{
		cfg:    cfg,
		easing: cfg.Easing,
		buf:    buf,
		sink:   sink,
		req:    req,
		log:    logger.Named("playback"),
	}
	if p.easing == nil {
		p.easing = func(t float64) float64 { return t }
	}
	p.Reset()
	return p, nil
}

// Config returns the player timing.
func (p *Player) Config() Config {
	return p.cfg
}

// SetFrameInterval updates the frame interval once channel info is known.
func (p *Player) SetFrameInterval(seconds float64) error {
	cfg := p.cfg
	cfg.FrameInterval = seconds
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	return nil
}

// State returns the lifecycle state.
func (p *Player) State() State {
	return p.state
}

// Weight returns the interpolation weight.
func (p *Player) Weight() float32 {
	return p.weight
}

// Begin moves an idle player to Buffering.
func (p *Player) Begin() {
	if p.state == StateIdle {
		p.state = StateBuffering
		p.log.Debug("buffering")
	}
}

// Start attaches a decoder and begins playback.
func (p *Player) Start(dec *decoder.Decoder) {
	p.dec = dec
	p.state = StatePlaying
	p.updateWait = 0
	p.interpWait = 0
	p.weight = 0
	p.log.Info("playback started",
		zap.Int("meshes", dec.Store().MeshCount()),
		zap.Int("buffered", p.buf.Len()))
}

// Reset returns the player to Idle and clears counters. The stream list
// timer is primed so the first refresh fires one second into playback.
func (p *Player) Reset() {
	p.dec = nil
	p.state = StateIdle
	p.paused = false
	p.manifestWait = max(p.cfg.StreamRefreshInterval-1, 0)
	p.updateWait = 0
	p.interpWait = 0
	p.weight = 0
	p.stats = Stats{}
}

// SetPaused stops or resumes Tick processing.
func (p *Player) SetPaused(paused bool) {
	p.paused = paused
}

// Paused reports whether Tick is suspended.
func (p *Player) Paused() bool {
	return p.paused
}

// Tick advances the player by dt seconds.
func (p *Player) Tick(dt float64) {
	if p.state != StatePlaying || p.paused {
		return
	}

	p.manifestWait += dt
	if p.manifestWait > p.cfg.StreamRefreshInterval {
		p.req.RequestManifest()
		p.manifestWait -= p.cfg.StreamRefreshInterval
	}

	p.updateWait += dt
	if p.updateWait > p.cfg.VertexUpdateInterval {
		if f, ok := p.buf.Peek(); ok {
			if p.decode(f).NormalsDirty {
				p.signalNormals()
			}
			p.buf.Advance()
		}
		p.updateWait -= p.cfg.VertexUpdateInterval
	}

	step := p.cfg.InterpolationStep()
	p.interpWait += dt
	if p.interpWait > step {
		p.interpWait -= step
		p.subStep()
	}
}

// SeekTo jumps to the keyframe at or before target and shows it exactly.
// Targets are clamped to the buffered range. An empty buffer is a no-op.
func (p *Player) SeekTo(target int) error {
	if p.dec == nil {
		return ErrNotPlaying
	}
	n := p.buf.Len()
	if n == 0 {
		return nil
	}

	prev := p.state
	p.state = StateSeeking

	target = max(0, min(target, n-1))
	group := p.cfg.KeyframeGroup()
	snapped := target / group * group

	p.buf.SetCursor(snapped)
	f, _ := p.buf.Peek()
	// Decoding twice leaves previous equal to current.
	p.decode(f)
	if p.decode(f).NormalsDirty {
		p.signalNormals()
	}
	p.buf.Advance()

	p.updateWait = 0
	p.interpWait = 0
	p.subStep()

	p.state = prev
	p.log.Debug("seek",
		zap.Int("target", target),
		zap.Int("frame", snapped),
		zap.Float64("time", f.Time))
	return nil
}

// SeekToString parses a decimal frame index and seeks to it.
func (p *Player) SeekToString(s string) error {
	target, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrSeekTarget, s)
	}
	return p.SeekTo(target)
}

// Stats returns a snapshot of the player counters.
func (p *Player) Stats() Stats {
	s := p.stats
	s.State = p.state
	s.Cursor = p.buf.Cursor()
	s.Buffered = p.buf.Len()
	s.Late = p.buf.Late()
	s.Weight = p.weight
	return s
}

func (p *Player) decode(f segment.Frame) decoder.Result {
	store := p.dec.Store()
	store.Snapshot()

	res := p.dec.Decode(f.Data)
	p.weight = 0
	p.stats.Decoded++
	switch res.Type {
	case formats.FrameKeyframe:
		p.stats.Keyframes++
	case formats.FrameDelta:
		p.stats.Deltas++
	}
	p.stats.OutOfRange += res.OutOfRange

	if res.Err != nil {
		switch {
		case errors.Is(res.Err, decoder.ErrDesync):
			p.stats.Dropped++
		case errors.Is(res.Err, decoder.ErrTruncatedFrame), errors.Is(res.Err, decoder.ErrUnknownFrameType):
			p.stats.ParseErrors++
		}
		p.log.Warn("frame decode error",
			zap.Int("frame", p.buf.Cursor()),
			zap.Int("segment", f.Segment),
			zap.Int("subframe", f.Subframe),
			zap.Stringer("type", res.Type),
			zap.Int("applied", res.Applied),
			zap.Error(res.Err))
	}
	return res
}

// signalNormals hands the decoded keyframe shape to the sink.
func (p *Player) signalNormals() {
	store := p.dec.Store()
	p.sink.NormalsDirty(store.Current, store.Root.Current)
}

func (p *Player) subStep() {
	store := p.dec.Store()
	if p.weight < 1 {
		store.Blend(float32(p.easing(float64(p.weight))))
		p.sink.UpdatePose(store.Pose)
		p.sink.UpdateRoot(store.Root.Pose)
	}
	p.weight = min(p.weight+1/float32(p.cfg.InterpolateFrames), 1)
}
