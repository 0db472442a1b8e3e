package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/cache"
	"github.com/desertthunder/playroom/internal/download"
	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/moderation"
	"github.com/desertthunder/playroom/internal/reconcile"
	"github.com/desertthunder/playroom/internal/repositories"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Connections are opened on first use so commands like `setup config` work without Redis.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
	clock  func() time.Time

	redis   *redis.Client
	db      *sql.DB
	fetcher download.Fetcher
	ownsRDB bool
	ownsDB  bool

	store      *store.Store
	ledger     *ledger.Ledger
	queue      *moderation.Queue
	reconciler *reconcile.Reconciler
	history    *repositories.HistoryRepository
	runs       *repositories.ReconcileRunRepository
	cache      *cache.Cache
	dispatcher *download.Dispatcher
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Redis and DB are opened from Config when nil. Fetcher defaults to yt-dlp.
type RunnerOpts struct {
	Config  *shared.Config
	Logger  *log.Logger
	Output  io.Writer
	Clock   func() time.Time
	Redis   *redis.Client
	DB      *sql.DB
	Fetcher download.Fetcher
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Runner{
		config:  opts.Config,
		logger:  opts.Logger,
		output:  opts.Output,
		clock:   opts.Clock,
		redis:   opts.Redis,
		db:      opts.DB,
		fetcher: opts.Fetcher,
	}
}

// SetLogger replaces the logger. Components built afterwards log through it.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// LoadConfig replaces the configuration with the file named by --config when it was given.
// A missing file keeps the current configuration so `setup config` can create it.
func (r *Runner) LoadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if !cmd.IsSet("config") {
		return ctx, nil
	}
	path := cmd.String("config")
	config, err := shared.LoadConfig(path)
	if errors.Is(err, shared.ErrMissingConfig) {
		r.logger.Warn("config file not found, using defaults", "path", path)
		return ctx, nil
	}
	if err != nil {
		return ctx, err
	}
	r.config = config
	shared.SetLogLevel(r.logger, config.Log.LogLevel())
	return ctx, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, fetchCommand, submitCommand, pendingCommand, reviewCommand, approveCommand,
		rejectCommand, restoreCommand, rejectedCommand, playlistCommand, mineCommand, removeCommand,
		moderationCommand, reconcileCommand, historyCommand, cacheCommand, serveCommand, consoleCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// connect opens Redis and the history database and builds the moderation components.
//
// A history database that cannot be opened is logged and skipped; moderation works without it.
func (r *Runner) connect(ctx context.Context) error {
	if r.ledger != nil {
		return nil
	}

	if r.redis == nil {
		rdb, err := shared.NewRedisClient(ctx, r.config.Redis.URL)
		if err != nil {
			return err
		}
		r.redis, r.ownsRDB = rdb, true
	}
	if err := r.openHistory(ctx); err != nil {
		r.logger.Warn("history disabled", "path", r.config.Database.Path, "error", err)
	}

	r.store = store.New(r.redis, r.logger)

	opts := ledger.Options{
		Store:             r.store,
		Logger:            r.logger,
		Clock:             r.clock,
		StaleAfter:        r.config.Moderation.StaleAfterDuration(),
		AllowCrossAdmin:   r.config.Moderation.AllowCrossAdmin,
		DefaultModeration: r.config.Moderation.DefaultRequired,
	}
	if r.history != nil {
		opts.Recorder = r.history
	}
	l, err := ledger.New(opts)
	if err != nil {
		return err
	}

	q, err := moderation.New(moderation.Options{
		Store:      r.store,
		Logger:     r.logger,
		Clock:      r.clock,
		StaleAfter: r.config.Moderation.StaleAfterDuration(),
	})
	if err != nil {
		return err
	}

	ropts := reconcile.Options{Store: r.store, Ledger: l, Queue: q, Logger: r.logger, Clock: r.clock}
	if r.runs != nil {
		ropts.Recorder = r.runs
	}
	rec, err := reconcile.New(ropts)
	if err != nil {
		return err
	}

	r.ledger, r.queue, r.reconciler = l, q, rec
	return nil
}

func (r *Runner) openHistory(ctx context.Context) error {
	if r.db == nil {
		if r.config.Database.Path == "" {
			return fmt.Errorf("%w: database.path", shared.ErrMissingArgument)
		}
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return err
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		r.db, r.ownsDB = db, true
	}
	if err := shared.RunMigrations(ctx, r.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.history = repositories.NewHistoryRepository(r.db)
	r.runs = repositories.NewReconcileRunRepository(r.db)
	return nil
}

// openCache builds the artifact cache from config.
func (r *Runner) openCache() (*cache.Cache, error) {
	if r.cache != nil {
		return r.cache, nil
	}
	c, err := cache.New(r.config.Cache.Dir, r.logger)
	if err != nil {
		return nil, err
	}
	r.cache = c
	return c, nil
}

// openDispatcher starts the download workers.
func (r *Runner) openDispatcher() (*download.Dispatcher, error) {
	if r.dispatcher != nil {
		return r.dispatcher, nil
	}
	c, err := r.openCache()
	if err != nil {
		return nil, err
	}
	fetcher := r.fetcher
	if fetcher == nil {
		fetcher = download.NewYTDLPFetcher(r.config.Download.CookiesFile, r.logger)
	}
	d, err := download.New(download.Options{
		Cache:            c,
		Fetcher:          fetcher,
		Workers:          r.config.Download.Workers,
		MaxArtifactBytes: r.config.Cache.MaxArtifactBytes,
		AwaitTimeout:     r.config.Download.AwaitTimeoutDuration(),
		RatePerSec:       r.config.Download.FetchRatePerSec,
		Logger:           r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.dispatcher = d
	return d, nil
}

// Close stops the dispatcher and releases connections the runner opened itself.
func (r *Runner) Close() {
	if r.dispatcher != nil {
		if err := r.dispatcher.Close(); err != nil {
			r.logger.Warn("failed to stop dispatcher", "error", err)
		}
		r.dispatcher = nil
	}
	if r.ownsDB && r.db != nil {
		r.db.Close()
		r.db = nil
	}
	if r.ownsRDB && r.redis != nil {
		r.redis.Close()
		r.redis = nil
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
