package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/hupe1980/mediacache"
	"github.com/hupe1980/mediacache/catalog"
	"github.com/hupe1980/mediacache/codec"
	"github.com/hupe1980/mediacache/storage"
)

// Service is the part of mediacache.Service the server needs.
type Service interface {
	Acquire(ctx context.Context, asset, path string, offset int64) (*mediacache.Stream, error)
	Backend() storage.Backend
}

// Catalog resolves asset IDs to backend paths.
type Catalog interface {
	Asset(id string) (catalog.Asset, bool)
}

// Server is the HTTP front end of the cache.
type Server struct {
	service Service
	catalog Catalog

	logger          *mediacache.Logger
	metrics         mediacache.MetricsCollector
	codec           codec.Codec
	stats           func() any
	shutdownTimeout time.Duration

	handler http.Handler
}

// New creates a server for svc. cat resolves the IDs in /music/{id}.
func New(svc Service, cat Catalog, opts ...Option) *Server {
	s := &Server{
		service:         svc,
		catalog:         cat,
		logger:          mediacache.NoopLogger(),
		metrics:         &mediacache.NoopMetricsCollector{},
		codec:           codec.Default,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /music/{id}", s.handleMusic)
	mux.HandleFunc("GET /music-meta/{id}", s.handleMeta)
	mux.HandleFunc("GET /entries", s.handleEntries)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.stats != nil {
		mux.HandleFunc("GET /debug/stats", s.handleStats)
	}
	s.handler = s.instrument(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped", "addr", addr)
	return nil
}

func (s *Server) handleMusic(w http.ResponseWriter, r *http.Request) {
	a, ok := s.catalog.Asset(r.PathValue("id"))
	if !ok {
		s.sendError(w, r, http.StatusNotFound, "asset not found")
		return
	}
	s.serveAsset(w, r, a.ID, a.Path, a.Name)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	a, ok := s.catalog.Asset(r.PathValue("id"))
	if !ok || len(a.Meta) == 0 {
		s.sendError(w, r, http.StatusNotFound, "metadata not found")
		return
	}
	meta := a.Meta[0]
	s.serveAsset(w, r, a.ID+catalog.MetaSuffix, meta, path.Base(meta))
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, asset, p, name string) {
	ctx := r.Context()
	logger := s.logger.WithRequestID(RequestID(ctx)).WithAsset(asset)

	var rng Range
	ranged := false
	if h := r.Header.Get("Range"); h != "" {
		parsed, err := ParseRange(h)
		if err != nil {
			logger.DebugContext(ctx, "ignoring range header", "error", err)
		} else {
			rng, ranged = parsed, true
		}
	}

	stream, err := s.service.Acquire(ctx, asset, p, rng.Start)
	if err != nil {
		if errors.Is(err, mediacache.ErrClosed) {
			s.sendError(w, r, http.StatusServiceUnavailable, "shutting down")
			return
		}
		logger.ErrorContext(ctx, "acquire stream", "path", p, "error", err)
		s.sendError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	defer stream.Close()

	first, err := stream.Read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		first = nil
	case mediacache.IsNotFound(err):
		s.sendError(w, r, http.StatusNotFound, "asset not found")
		return
	default:
		if ctx.Err() != nil {
			return
		}
		logger.ErrorContext(ctx, "fetch asset", "path", p, "error", err)
		s.sendError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	total, known := stream.Size()
	contentType := stream.ContentType()
	if contentType == "" {
		contentType = storage.ContentTypeFor(p)
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))

	status := http.StatusOK
	limit := int64(-1)
	if ranged {
		if known && rng.Start >= total {
			h.Del("Content-Type")
			h.Del("Content-Disposition")
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", total))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		status = http.StatusPartialContent
		end := rng.End
		if known {
			if end < 0 || end >= total {
				end = total - 1
			}
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, end, total))
			h.Set("Content-Length", strconv.FormatInt(end-rng.Start+1, 10))
		}
		if end >= 0 {
			limit = end - rng.Start + 1
		}
	} else if known {
		h.Set("Content-Length", strconv.FormatInt(total, 10))
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	s.copyStream(ctx, w, stream, first, limit, logger)
}

// copyStream writes first and the rest of stream to w, stopping after limit
// bytes when limit >= 0.
func (s *Server) copyStream(ctx context.Context, w http.ResponseWriter, stream *mediacache.Stream, first []byte, limit int64, logger *mediacache.Logger) {
	rc := http.NewResponseController(w)

	write := func(b []byte) bool {
		if limit >= 0 && int64(len(b)) > limit {
			b = b[:limit]
		}
		if _, err := w.Write(b); err != nil {
			logger.DebugContext(ctx, "client went away", "error", err)
			return false
		}
		_ = rc.Flush()
		if limit >= 0 {
			limit -= int64(len(b))
			return limit > 0
		}
		return true
	}

	if len(first) > 0 && !write(first) {
		return
	}
	for {
		b, err := stream.Read(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.WarnContext(ctx, "stream aborted after headers", "error", err)
			}
			// headers are out; abort the connection so the body reads as truncated
			panic(http.ErrAbortHandler)
		}
		if !write(b) {
			return
		}
	}
}

type entryView struct {
	storage.Entry
	ID string `json:"id,omitempty"`
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := s.service.Backend().List(ctx, r.URL.Query().Get("path"))
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrInvalidPath):
		s.sendError(w, r, http.StatusBadRequest, "invalid path")
		return
	case errors.Is(err, storage.ErrNotFound):
		s.sendError(w, r, http.StatusNotFound, "path not found")
		return
	default:
		s.logger.ErrorContext(ctx, "list entries", "request_id", RequestID(ctx), "error", err)
		s.sendError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		v := entryView{Entry: e}
		if !e.IsDir {
			if _, ok := s.catalog.Asset(catalog.IDFor(e.Path)); ok {
				v.ID = catalog.IDFor(e.Path)
			}
		}
		views = append(views, v)
	}
	s.writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.stats())
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, errorResponse{Error: msg, RequestID: RequestID(r.Context())})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := codec.Encode(w, s.codec, v); err != nil {
		s.logger.WarnContext(r.Context(), "writing JSON response", "error", err, "status", status)
	}
}
