// Package receiver drives a streamed mesh session: it requests the channel
// description and its resources, reassembles stream segments into the frame
// buffer, and ticks the player.
//
// All state is touched from the goroutine calling Tick. Fetch completions
// are drained from the transport's result channel at the start of Tick.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/stmesh/internal/decoder"
	"github.com/Faultbox/stmesh/internal/logger"
	"github.com/Faultbox/stmesh/internal/playback"
	"github.com/Faultbox/stmesh/internal/segment"
	"github.com/Faultbox/stmesh/internal/transport"
	"github.com/Faultbox/stmesh/internal/vertex"
	"github.com/Faultbox/stmesh/pkg/formats"
)

// Receiver errors.
var (
	ErrAlreadyInitialized = errors.New("receiver already initialized")
	ErrNoChannelURL       = errors.New("no channel URL configured")
)

// Config selects the channel and player timing.
type Config struct {
	ServerAddress   string // Base URL, e.g. "http://host:8000/"
	Channel         string // Channel name appended to ServerAddress
	StreamFile      string // Channel info file name, or full URL
	ReferFromServer bool   // Build the channel URL from ServerAddress and Channel
	Playback        playback.Config
	Order           segment.Order
}

// ChannelURL returns the URL of the channel info document.
func (c Config) ChannelURL() string {
	if c.ReferFromServer {
		return c.ServerAddress + c.Channel + "/" + c.StreamFile
	}
	return c.StreamFile
}

// Hooks are optional host callbacks, all invoked from Tick.
type Hooks struct {
	// OnError receives non-fatal session errors: fetch failures, bad
	// records and segments that do not match their sizes.
	OnError func(err error)
	// OnAsset receives texture and material payloads.
	OnAsset func(kind transport.Kind, ordinal int, url string, data []byte)
	// OnReady is called with the mesh topology right before playback starts.
	OnReady func(meshes []*formats.MeshInfo)
}

// Stats is a snapshot of session counters.
type Stats struct {
	Player      playback.Stats
	Session     string
	Segments    int // Segments announced by the stream list
	Received    int // Segments received and sliced
	Outstanding int // Static resources not yet received
	Errors      int // Errors reported through OnError
}

// Receiver owns one streaming session.
type Receiver struct {
	cfg     Config
	fetcher transport.Fetcher
	hooks   Hooks
	log     *zap.Logger

	player   *playback.Player
	buf      *segment.Buffer
	manifest *segment.Manifest

	ctx         context.Context
	gen         int
	session     string
	initialized bool
	channel     *formats.ChannelInfo
	timing      segment.Timing
	meshes      []*formats.MeshInfo
	outstanding int
	store       *vertex.Store
	dec         *decoder.Decoder

	received int
	errors   int
}

// New creates an idle receiver.
func New(cfg Config, fetcher transport.Fetcher, sink playback.Sink, hooks Hooks) (*Receiver, error) {
	if fetcher == nil {
		return nil, errors.New("receiver: nil fetcher")
	}
	r := &Receiver{
		cfg:      cfg,
		fetcher:  fetcher,
		hooks:    hooks,
		log:      logger.Named("receiver"),
		buf:      segment.NewBuffer(cfg.Order),
		manifest: segment.NewManifest(),
		ctx:      context.Background(),
	}
	p, err := playback.New(cfg.Playback, r.buf, sink, r)
	if err != nil {
		return nil, err
	}
	r.player = p
	return r, nil
}

// Initialize starts a session by requesting the channel info.
func (r *Receiver) Initialize(ctx context.Context) error {
	if r.initialized {
		return ErrAlreadyInitialized
	}
	url := r.cfg.ChannelURL()
	if url == "" {
		return ErrNoChannelURL
	}

	r.ctx = ctx
	r.session = uuid.NewString()
	r.fetcher.SetSession(r.session)
	r.initialized = true

	r.log.Info("session started", zap.String("session", r.session), zap.String("channel", url))
	r.request(transport.Request{Kind: transport.KindChannel, URL: url})
	return nil
}

// Tick delivers pending fetch results and advances playback by dt seconds.
func (r *Receiver) Tick(dt float64) {
	results := r.fetcher.Results()
drain:
	for {
		select {
		case res, ok := <-results:
			if !ok {
				break drain
			}
			r.handle(res)
		default:
			break drain
		}
	}
	r.player.Tick(dt)
}

// Reset drops the session and returns to Idle. Results of requests made
// before Reset are ignored when they arrive.
func (r *Receiver) Reset() {
	r.gen++
	r.player.Reset()
	r.buf.Reset()
	r.manifest.Reset()

	r.initialized = false
	r.session = ""
	r.channel = nil
	r.timing = segment.Timing{}
	r.meshes = nil
	r.outstanding = 0
	r.store = nil
	r.dec = nil
	r.received = 0
	r.errors = 0
	r.log.Info("session reset")
}

// RequestManifest requests the stream list. Called by the player on its
// refresh timer.
func (r *Receiver) RequestManifest() {
	if r.channel == nil || r.channel.StreamInfo == "" {
		return
	}
	r.request(transport.Request{Kind: transport.KindStreamList, URL: r.channel.StreamInfo})
}

// Player returns the playback scheduler, for seeking and pausing.
func (r *Receiver) Player() *playback.Player {
	return r.player
}

// Channel returns the channel info, nil before it arrives.
func (r *Receiver) Channel() *formats.ChannelInfo {
	return r.channel
}

// Topology returns the mesh descriptors in channel order. Entries are nil
// until their mesh info arrives.
func (r *Receiver) Topology() []*formats.MeshInfo {
	return append([]*formats.MeshInfo(nil), r.meshes...)
}

// Store returns the vertex store, nil before playback starts.
func (r *Receiver) Store() *vertex.Store {
	return r.store
}

// State returns the player state.
func (r *Receiver) State() playback.State {
	return r.player.State()
}

// Stats returns session counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Player:      r.player.Stats(),
		Session:     r.session,
		Segments:    r.manifest.Len(),
		Received:    r.received,
		Outstanding: r.outstanding,
		Errors:      r.errors,
	}
}

func (r *Receiver) request(req transport.Request) {
	req.Tag = r.gen
	r.fetcher.Fetch(r.ctx, req)
}

func (r *Receiver) report(err error, fields ...zap.Field) {
	r.errors++
	r.log.Warn("session error", append(fields, zap.Error(err))...)
	if r.hooks.OnError != nil {
		r.hooks.OnError(err)
	}
}

func (r *Receiver) handle(res transport.Result) {
	req := res.Request
	if req.Tag != r.gen || !r.initialized {
		return
	}
	if res.Err != nil {
		r.report(res.Err, zap.Stringer("kind", req.Kind), zap.String("url", req.URL))
		// Textures and materials are cosmetic; do not stall on them.
		if req.Kind == transport.KindTexture || req.Kind == transport.KindMaterial {
			r.resourceArrived()
		}
		return
	}

	switch req.Kind {
	case transport.KindChannel:
		r.onChannel(res.Data)
	case transport.KindTexture, transport.KindMaterial:
		if r.hooks.OnAsset != nil {
			r.hooks.OnAsset(req.Kind, req.Ordinal, req.URL, res.Data)
		}
		r.resourceArrived()
	case transport.KindMesh:
		r.onMesh(req, res.Data)
	case transport.KindStreamList:
		r.onStreamList(res.Data)
	case transport.KindSegment:
		r.onSegment(req, res.Data)
	}
}

func (r *Receiver) onChannel(data []byte) {
	if r.channel != nil {
		return
	}
	info, err := formats.ParseChannelInfo(data)
	if err != nil {
		r.report(err)
		return
	}
	if err := r.player.SetFrameInterval(float64(info.FrameInterval)); err != nil {
		r.report(err)
		return
	}

	r.channel = info
	r.timing = segment.TimingFor(info)
	r.meshes = make([]*formats.MeshInfo, len(info.Meshes))
	r.outstanding = info.ResourceCount()
	r.player.Begin()

	r.log.Info("channel info received",
		zap.Int("area_range", info.AreaRange),
		zap.Int("package_size", info.PackageSize),
		zap.Float32("frame_interval", info.FrameInterval),
		zap.Int("combined_frames", info.CombinedFrames),
		zap.Int("textures", len(info.Textures)),
		zap.Int("materials", len(info.Materials)),
		zap.Int("meshes", len(info.Meshes)))

	for i, u := range info.Textures {
		r.request(transport.Request{Kind: transport.KindTexture, URL: u, Ordinal: i})
	}
	for i, u := range info.Materials {
		r.request(transport.Request{Kind: transport.KindMaterial, URL: u, Ordinal: i})
	}
	for i, u := range info.Meshes {
		r.request(transport.Request{Kind: transport.KindMesh, URL: u, Ordinal: i})
	}
	r.maybeStart()
}

func (r *Receiver) onMesh(req transport.Request, data []byte) {
	if req.Ordinal < 0 || req.Ordinal >= len(r.meshes) || r.meshes[req.Ordinal] != nil {
		return
	}
	info, err := formats.ParseMeshInfo(data)
	if err != nil {
		r.report(fmt.Errorf("mesh %d: %w", req.Ordinal, err), zap.String("url", req.URL))
		return
	}
	r.meshes[req.Ordinal] = info
	r.log.Debug("mesh info received",
		zap.Int("ordinal", req.Ordinal),
		zap.String("name", info.Name),
		zap.Int("vertices", info.VertexCount))
	r.resourceArrived()
}

func (r *Receiver) resourceArrived() {
	if r.outstanding > 0 {
		r.outstanding--
	}
	r.maybeStart()
}

func (r *Receiver) maybeStart() {
	if r.outstanding > 0 || r.player.State() != playback.StateBuffering {
		return
	}

	counts := make([]int, len(r.meshes))
	for i, m := range r.meshes {
		counts[i] = m.VertexCount
	}
	r.store = vertex.New(counts)
	dec, err := decoder.New(r.channel.Params(), r.store)
	if err != nil {
		r.report(err)
		return
	}
	r.dec = dec

	if r.hooks.OnReady != nil {
		r.hooks.OnReady(r.Topology())
	}
	r.player.Start(dec)
}

func (r *Receiver) onStreamList(data []byte) {
	infos, skipped := formats.ParseStreamList(data)
	added := 0
	for _, info := range infos {
		idx, err := info.Index()
		if err != nil {
			skipped++
			continue
		}
		if !r.manifest.Add(idx, info.Size) {
			continue
		}
		added++
		r.request(transport.Request{
			Kind:    transport.KindSegment,
			URL:     info.Name,
			Segment: idx,
			Size:    info.TotalSize(),
		})
	}
	if added > 0 || skipped > 0 {
		r.log.Debug("stream list",
			zap.Int("entries", len(infos)),
			zap.Int("new", added),
			zap.Int("skipped", skipped))
	}
}

func (r *Receiver) onSegment(req transport.Request, data []byte) {
	sizes, ok := r.manifest.Sizes(req.Segment)
	if !ok {
		return
	}
	frames, err := segment.Slice(req.Segment, sizes, data, r.timing)
	if err != nil {
		r.report(err, zap.String("url", req.URL))
	}
	kept := r.buf.Append(frames...)
	r.received++
	r.log.Debug("segment buffered",
		zap.Int("segment", req.Segment),
		zap.Int("frames", len(frames)),
		zap.Int("kept", kept),
		zap.Int("buffered", r.buf.Len()))
}

// String describes the session for logs.
func (r *Receiver) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session=%s state=%s", r.session, r.player.State())
	if r.channel != nil {
		fmt.Fprintf(&b, " meshes=%d buffered=%d", len(r.meshes), r.buf.Len())
	}
	return b.String()
}
