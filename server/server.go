// Package server exposes translated channel feeds over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ytrss/cache"
	"ytrss/upstream"
)

const rssContentType = "application/rss+xml; charset=utf-8"

// Fetcher returns the raw Atom feed of a channel.
type Fetcher interface {
	FetchChannel(ctx context.Context, channelID string) ([]byte, error)
}

// Translator converts an Atom feed into RSS.
type Translator interface {
	Translate(atom, baseURL string) (string, error)
}

// Options configures a Server. Fetcher and Translator are required.
type Options struct {
	// BaseURL is the public URL of this service, without a trailing slash.
	BaseURL    string
	Fetcher    Fetcher
	Translator Translator
	// Cache stores translated feeds for CacheTTL. Nil or a zero TTL
	// disables caching.
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Server answers GET /channel/{channelID} with the channel's feed as RSS.
type Server struct {
	opts   Options
	logger *slog.Logger
	router chi.Router
}

// New creates a Server and its routes.
func New(opts Options) *Server {
	s := &Server{opts: opts, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Get("/channel/{channelID}", s.handleChannel)
	r.NotFound(invalidURL)
	r.MethodNotAllowed(invalidURL)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "base_url", s.opts.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channelID")
	logger := s.logger.With("request_id", RequestID(ctx), "channel", channelID)

	if err := upstream.ValidateChannelID(channelID); err != nil {
		writeError(w, err)
		return
	}

	caching := s.opts.Cache != nil && s.opts.CacheTTL > 0
	if caching {
		doc, ok, err := s.opts.Cache.Get(ctx, channelID)
		if err != nil {
			logger.Warn("cache lookup failed", "error", err)
		}
		if ok {
			w.Header().Set("X-Cache", "HIT")
			writeFeed(w, doc)
			return
		}
	}

	atom, err := s.opts.Fetcher.FetchChannel(ctx, channelID)
	if err != nil {
		logger.Warn("fetch failed", "error", err)
		writeError(w, err)
		return
	}

	rss, err := s.opts.Translator.Translate(string(atom), s.opts.BaseURL)
	if err != nil {
		logger.Error("translation failed", "error", err)
		writeError(w, err)
		return
	}

	doc := []byte(rss)
	if caching {
		if err := s.opts.Cache.Set(ctx, channelID, doc, s.opts.CacheTTL); err != nil {
			logger.Warn("cache store failed", "error", err)
		}
		w.Header().Set("X-Cache", "MISS")
	}
	writeFeed(w, doc)
}

func writeFeed(w http.ResponseWriter, doc []byte) {
	w.Header().Set("Content-Type", rssContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// writeError answers with the error message prefixed by "Error: ".
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusFor(err))
	fmt.Fprintf(w, "Error: %v", err)
}

// statusFor maps a request failure onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, upstream.ErrInvalidChannelID):
		return http.StatusBadRequest
	case errors.Is(err, upstream.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, upstream.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func invalidURL(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("Invalid URL"))
}
