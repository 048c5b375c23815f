package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/stmesh/internal/assets"
	"github.com/Faultbox/stmesh/internal/logger"
)

// SessionHeader carries the receiver session id.
const SessionHeader = "X-Session-Id"

// Options configures an HTTPFetcher.
type Options struct {
	Timeout       time.Duration // Per-request timeout, 0 for none
	MaxConcurrent int           // Concurrent requests, default 8
	QueueSize     int           // Results channel capacity, default 256
	UserAgent     string
	Assets        *assets.Manager // Cache and local sources, optional
}

// HTTPFetcher fetches http(s) URLs with net/http and every other name from
// the local sources of its asset manager.
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	assets  *assets.Manager
	sem     chan struct{}
	results chan Result
	session atomic.Pointer[string]
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	am := opts.Assets
	if am == nil {
		am = assets.NewManager()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		assets:  am,
		sem:     make(chan struct{}, opts.MaxConcurrent),
		results: make(chan Result, opts.QueueSize),
		log:     logger.Named("transport"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Results returns the completion channel. It is closed by Close.
func (f *HTTPFetcher) Results() <-chan Result {
	return f.results
}

// SetSession sets the session id sent with every request.
func (f *HTTPFetcher) SetSession(id string) {
	f.session.Store(&id)
}

// Fetch starts req in the background. Requests made after Close are
// dropped.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()

		ctx, cancel := mergeCancel(ctx, f.ctx)
		defer cancel()

		select {
		case f.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		start := time.Now()
		data, err := f.fetch(ctx, req)
		<-f.sem

		if err == nil && req.Kind == KindSegment {
			data, err = Decompress(data, SizeLimit(req.Size))
		}
		if err != nil {
			f.log.Debug("fetch failed", zap.Stringer("kind", req.Kind), zap.String("url", req.URL), zap.Error(err))
		} else {
			f.log.Debug("fetched",
				zap.Stringer("kind", req.Kind),
				zap.String("url", req.URL),
				zap.Int("bytes", len(data)),
				zap.Duration("took", time.Since(start)))
		}

		select {
		case f.results <- Result{Request: req, Data: data, Err: err}:
		case <-f.ctx.Done():
		}
	}()
}

// Close cancels in-flight requests, waits for their goroutines and closes
// the results channel.
func (f *HTTPFetcher) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.wg.Wait()
	close(f.results)
	return nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, req Request) ([]byte, error) {
	if req.Kind.Static() {
		if data, ok := f.assets.Cache().Get(req.URL); ok {
			return data, nil
		}
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	var data []byte
	switch u.Scheme {
	case "http", "https":
		data, err = f.get(ctx, req.URL)
	case "file":
		data, err = f.local(req.URL, u.Path)
	default:
		data, err = f.local(req.URL, req.URL)
	}
	if err != nil {
		return nil, err
	}

	if req.Kind.Static() {
		f.assets.Cache().Set(req.URL, data)
	}
	return data, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if f.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", f.opts.UserAgent)
	}
	if id := f.session.Load(); id != nil {
		httpReq.Header.Set(SessionHeader, *id)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: rawURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	return data, nil
}

func (f *HTTPFetcher) local(rawURL, name string) ([]byte, error) {
	if !f.assets.HasSources() {
		return nil, &FetchError{URL: rawURL, Err: errors.New("no local asset sources for non-http URL")}
	}
	data, err := f.assets.Read(name)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return data, nil
}

// mergeCancel returns a context cancelled when either parent is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
