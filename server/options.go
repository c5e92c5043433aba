package server

import (
	"time"

	"github.com/hupe1980/mediacache"
	"github.com/hupe1980/mediacache/codec"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *mediacache.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsCollector records one RecordRequest per request.
func WithMetricsCollector(mc mediacache.MetricsCollector) Option {
	return func(s *Server) {
		if mc != nil {
			s.metrics = mc
		}
	}
}

// WithCodec sets the codec for JSON responses.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithStats serves the value returned by fn on GET /debug/stats.
func WithStats(fn func() any) Option {
	return func(s *Server) {
		s.stats = fn
	}
}

// WithShutdownTimeout bounds how long ListenAndServe waits for in-flight
// requests after its context is cancelled.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}
