package httpserver

import (
	"log/slog"
	"time"
)

// Option overrides a Server setting at construction.
type Option func(*Server)

// WithAddr sets the listen address. Empty addr is ignored.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithShutdownTimeout bounds how long Run waits for in-flight requests
// after the context is cancelled. Non-positive values are ignored.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger attaches a logger for lifecycle events. Nil is ignored and the
// server stays silent.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}
