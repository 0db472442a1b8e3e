package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/moderation"
	"github.com/desertthunder/playroom/internal/reconcile"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
	"github.com/go-chi/chi/v5"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Fetcher resolves a query to a cached artifact, downloading it if needed.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (*models.Artifact, error)
}

// Options wires the server to its collaborators. Fetcher may be nil, in which case
// submissions must name an artifact key.
type Options struct {
	Store      *store.Store
	Ledger     *ledger.Ledger
	Queue      *moderation.Queue
	Reconciler *reconcile.Reconciler
	Fetcher    Fetcher
	Logger     *log.Logger
}

// Server serves the HTTP interface.
type Server struct {
	store      *store.Store
	ledger     *ledger.Ledger
	queue      *moderation.Queue
	reconciler *reconcile.Reconciler
	fetcher    Fetcher
	logger     *log.Logger

	// streams parents every event stream; Close cancels it.
	streams      context.Context
	closeStreams context.CancelFunc
}

// New returns a server over opts.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: store", shared.ErrMissingArgument)
	case opts.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger", shared.ErrMissingArgument)
	case opts.Queue == nil:
		return nil, fmt.Errorf("%w: queue", shared.ErrMissingArgument)
	case opts.Reconciler == nil:
		return nil, fmt.Errorf("%w: reconciler", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	streams, closeStreams := context.WithCancel(context.Background())
	return &Server{
		store:      opts.Store,
		ledger:     opts.Ledger,
		queue:      opts.Queue,
		reconciler: opts.Reconciler,
		fetcher:    opts.Fetcher,
		logger:     shared.WithLogger(opts.Logger, "component", "http"),

		streams:      streams,
		closeStreams: closeStreams,
	}, nil
}

// Close ends every open event stream and refuses new ones. Other routes keep working.
func (s *Server) Close() {
	s.closeStreams()
}

// Router builds the route table.
func (s *Server) Router(middlewares ...Middleware) chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer(s.logger), RequestLogger(s.logger))
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Post("/tracks", s.handleSubmit)
		r.Get("/playlist", s.handlePlaylist)
		r.Delete("/playlist/{position}", s.handleRemove)
		r.Get("/pending", s.handlePending)
		r.Get("/rejected", s.handleRejected)
		r.Get("/mine", s.handleMine)
		r.Put("/moderation", s.handleModeration)
		r.Post("/reconcile", s.handleReconcile)
		r.Get("/events", s.handleEvents)

		r.Route("/tracks/{token}", func(r chi.Router) {
			r.Get("/", s.handleEntry)
			r.Post("/review", s.handleReview)
			r.Post("/approve", s.handleApprove)
			r.Post("/reject", s.handleReject)
			r.Post("/restore", s.handleRestore)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, middlewares ...Middleware) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(middlewares...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown does not track hijacked connections.
	srv.RegisterOnShutdown(s.Close)

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
