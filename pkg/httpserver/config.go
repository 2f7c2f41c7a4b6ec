package httpserver

import "time"

// Config carries the environment-driven server settings. The timeout
// defaults are generous because Paddle webhook payloads can run to a few
// hundred kilobytes on subscription imports.
type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// NewFromConfig builds a Server from cfg, then applies opts on top so
// call-site overrides win over the environment.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	s := New(WithAddr(cfg.Addr), WithShutdownTimeout(cfg.ShutdownTimeout))
	s.readTimeout = cfg.ReadTimeout
	s.writeTimeout = cfg.WriteTimeout
	s.idleTimeout = cfg.IdleTimeout
	for _, opt := range opts {
		opt(s)
	}
	return s
}
