package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/cache"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers          = 100
	DefaultMaxArtifactBytes = 50 << 20
	DefaultAwaitTimeout     = 300 * time.Second
)

// ErrAbandoned resolves a fetch whose every holder released it before a worker picked it up.
var ErrAbandoned = fmt.Errorf("download abandoned: %w", context.Canceled)

// Options configures a [Dispatcher].
type Options struct {
	Cache   *cache.Cache
	Fetcher Fetcher

	Workers          int           // Pool size (default: 100)
	MaxArtifactBytes int64         // Size ceiling (default: 50 MiB)
	AwaitTimeout     time.Duration // Used by [Handle.Wait] (default: 300s)
	RatePerSec       float64       // Fetch starts per second, 0 for unthrottled
	WorkDir          string        // Scratch space for fetches (default: {cache}/.fetch)
	Logger           *log.Logger
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Workers  int `json:"workers"`
	InFlight int `json:"in_flight"`
	Queued   int `json:"queued"`
	Running  int `json:"running"`
}

// call is one fetch shared by every handle submitted for its key.
type call struct {
	key    string
	query  string
	ctx    context.Context
	cancel context.CancelFunc

	refs    int
	started bool

	once     sync.Once
	done     chan struct{}
	artifact *models.Artifact
	err      error
}

func (c *call) resolve(a *models.Artifact, err error) {
	c.once.Do(func() {
		c.artifact, c.err = a, err
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
	})
}

// Dispatcher is a fixed-size worker pool drawing fetches from a FIFO queue.
type Dispatcher struct {
	cache   *cache.Cache
	fetcher Fetcher
	limiter *rate.Limiter
	logger  *log.Logger

	workers      int
	maxBytes     int64
	awaitTimeout time.Duration
	workDir      string

	mu       sync.Mutex
	inflight map[string]*call
	queue    []*call
	closed   bool
	running  atomic.Int32

	wake   chan struct{}
	jobs   chan *call
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a dispatcher's workers. Call [Dispatcher.Close] to stop them.
func New(opts Options) (*Dispatcher, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("%w: cache", shared.ErrMissingArgument)
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher", shared.ErrMissingArgument)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxArtifactBytes <= 0 {
		opts.MaxArtifactBytes = DefaultMaxArtifactBytes
	}
	if opts.AwaitTimeout <= 0 {
		opts.AwaitTimeout = DefaultAwaitTimeout
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(opts.Cache.Dir(), ".fetch")
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", shared.ErrStorageFailure, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cache:        opts.Cache,
		fetcher:      opts.Fetcher,
		logger:       shared.WithLogger(opts.Logger, "component", "dispatcher"),
		workers:      opts.Workers,
		maxBytes:     opts.MaxArtifactBytes,
		awaitTimeout: opts.AwaitTimeout,
		workDir:      opts.WorkDir,
		inflight:     make(map[string]*call),
		wake:         make(chan struct{}, 1),
		jobs:         make(chan *call),
		ctx:          ctx,
		cancel:       cancel,
	}
	if opts.RatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}

	d.wg.Add(1)
	go d.feed()
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d, nil
}

// Submit requests the artifact for query. The returned handle must be released.
func (d *Dispatcher) Submit(query string) (*Handle, error) {
	if shared.NormalizeQuery(query) == "" {
		return nil, fmt.Errorf("%w: empty query", shared.ErrInvalidInput)
	}
	key := shared.CacheKey(query)

	if h, ok := d.fromCache(key, query); ok {
		return h, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: dispatcher closed", shared.ErrServiceUnavailable)
	}

	if c, ok := d.inflight[key]; ok {
		c.refs++
		return &Handle{Key: key, Query: query, c: c, d: d}, nil
	}

	ctx, cancel := context.WithCancel(d.ctx)
	c := &call{key: key, query: query, ctx: ctx, cancel: cancel, refs: 1, done: make(chan struct{})}
	d.inflight[key] = c
	d.queue = append(d.queue, c)

	select {
	case d.wake <- struct{}{}:
	default:
	}

	d.logger.Debug("queued fetch", "key", key, "query", query, "queued", len(d.queue))
	return &Handle{Key: key, Query: query, c: c, d: d}, nil
}

// fromCache resolves a handle immediately when the artifact is stored.
func (d *Dispatcher) fromCache(key, query string) (*Handle, bool) {
	artifact, err := d.cache.Get(key)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			d.logger.Warn("cache lookup failed, fetching", "key", key, "error", err)
		}
		return nil, false
	}

	c := &call{key: key, query: query, done: make(chan struct{})}
	if artifact.Size > d.maxBytes {
		d.logger.Warn("evicting oversized cached artifact", "key", key, "size", artifact.Size)
		if err := d.cache.Remove(key); err != nil {
			d.logger.Error("failed to evict artifact", "key", key, "error", err)
		}
		c.resolve(nil, d.oversized(artifact.Size))
	} else {
		c.resolve(artifact, nil)
	}
	return &Handle{Key: key, Query: query, Cached: true, c: c}, true
}

// Fetch submits query and waits for it with the default await timeout.
func (d *Dispatcher) Fetch(ctx context.Context, query string) (*models.Artifact, error) {
	h, err := d.Submit(query)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.Wait(ctx)
}

// Stats reports queue depth and worker usage.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Workers:  d.workers,
		InFlight: len(d.inflight),
		Queued:   len(d.queue),
		Running:  int(d.running.Load()),
	}
}

// Close stops accepting work, cancels running fetches and resolves every
// outstanding handle.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	pending := make([]*call, 0, len(d.inflight)+len(d.queue))
	for _, c := range d.inflight {
		pending = append(pending, c)
	}
	pending = append(pending, d.queue...)
	d.inflight = make(map[string]*call)
	d.queue = nil
	d.mu.Unlock()

	for _, c := range pending {
		c.resolve(nil, fmt.Errorf("%w: dispatcher closed", shared.ErrServiceUnavailable))
	}
	return nil
}

// feed moves queued calls to idle workers in submission order.
func (d *Dispatcher) feed() {
	defer d.wg.Done()
	defer close(d.jobs)

	for {
		d.mu.Lock()
		var next *call
		if len(d.queue) > 0 {
			next = d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
		}
		d.mu.Unlock()

		if next == nil {
			select {
			case <-d.wake:
				continue
			case <-d.ctx.Done():
				return
			}
		}

		select {
		case d.jobs <- next:
		case <-d.ctx.Done():
			d.finish(next, nil, fmt.Errorf("%w: dispatcher closed", shared.ErrServiceUnavailable))
			return
		}
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for c := range d.jobs {
		d.run(c)
	}
}

func (d *Dispatcher) run(c *call) {
	d.mu.Lock()
	if c.refs <= 0 || c.ctx.Err() != nil {
		d.mu.Unlock()
		d.finish(c, nil, ErrAbandoned)
		return
	}
	c.started = true
	d.mu.Unlock()

	d.running.Add(1)
	defer d.running.Add(-1)

	if d.limiter != nil {
		if err := d.limiter.Wait(c.ctx); err != nil {
			d.finish(c, nil, fmt.Errorf("%w: dispatcher closed", shared.ErrServiceUnavailable))
			return
		}
	}

	started := time.Now()
	artifact, err := d.fetch(c)
	if err != nil {
		d.logger.Warn("fetch failed", "key", c.key, "query", c.query, "error", err)
	} else {
		d.logger.Info("fetched", "key", c.key, "size", artifact.Size, "elapsed", time.Since(started).Round(time.Millisecond))
	}
	d.finish(c, artifact, err)
}

func (d *Dispatcher) fetch(c *call) (*models.Artifact, error) {
	if artifact, err := d.cache.Get(c.key); err == nil {
		return artifact, nil
	}

	dir, err := os.MkdirTemp(d.workDir, c.key[:8]+"-*")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch dir: %v", shared.ErrStorageFailure, err)
	}
	defer os.RemoveAll(dir)

	res, err := d.fetcher.Fetch(c.ctx, c.query, dir)
	if err != nil {
		if d.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: dispatcher closed", shared.ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("%w: %q: %v", shared.ErrFetchFailed, c.query, err)
	}

	info, err := os.Stat(res.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", shared.ErrFetchFailed, c.query, err)
	}
	if info.Size() > d.maxBytes {
		d.discard(c.key)
		return nil, d.oversized(info.Size())
	}

	title := res.Title
	if title == "" {
		title = c.query
	}
	artifact, err := d.cache.PutFile(c.key, res.Path, title)
	if err != nil {
		return nil, err
	}
	if artifact.Size > d.maxBytes {
		d.discard(c.key)
		return nil, d.oversized(artifact.Size)
	}
	return artifact, nil
}

func (d *Dispatcher) discard(key string) {
	if err := d.cache.Remove(key); err != nil {
		d.logger.Error("failed to remove oversized artifact", "key", key, "error", err)
	}
}

func (d *Dispatcher) oversized(size int64) error {
	return fmt.Errorf("%w: %d bytes exceeds %d", shared.ErrOversizedArtifact, size, d.maxBytes)
}

func (d *Dispatcher) finish(c *call, artifact *models.Artifact, err error) {
	d.mu.Lock()
	if cur, ok := d.inflight[c.key]; ok && cur == c {
		delete(d.inflight, c.key)
	}
	d.mu.Unlock()
	c.resolve(artifact, err)
}

// release drops one reference. A call nobody holds is cancelled if no worker has started it.
func (d *Dispatcher) release(c *call) {
	d.mu.Lock()
	c.refs--
	abandon := c.refs <= 0 && !c.started
	if abandon {
		if cur, ok := d.inflight[c.key]; ok && cur == c {
			delete(d.inflight, c.key)
		}
	}
	d.mu.Unlock()

	if abandon {
		d.logger.Debug("abandoned queued fetch", "key", c.key)
		c.resolve(nil, ErrAbandoned)
	}
}

// Handle is one caller's interest in a fetch.
type Handle struct {
	Key    string
	Query  string
	Cached bool // resolved from the cache at submission

	c    *call
	d    *Dispatcher
	once sync.Once
}

// Done is closed when the fetch resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.c.done
}

// Await blocks until the fetch resolves, ctx ends or timeout elapses.
// A zero timeout waits for as long as ctx allows.
func (h *Handle) Await(ctx context.Context, timeout time.Duration) (*models.Artifact, error) {
	select {
	case <-h.c.done:
		return h.c.artifact, h.c.err
	default:
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-h.c.done:
		return h.c.artifact, h.c.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: waiting for %q", shared.ErrTimeout, h.Query)
		}
		return nil, ctx.Err()
	}
}

// Wait is [Handle.Await] with the dispatcher's configured timeout.
func (h *Handle) Wait(ctx context.Context) (*models.Artifact, error) {
	timeout := DefaultAwaitTimeout
	if h.d != nil {
		timeout = h.d.awaitTimeout
	}
	return h.Await(ctx, timeout)
}

// Release abandons this caller's interest. It is safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		if h.d != nil {
			h.d.release(h.c)
		}
	})
}
