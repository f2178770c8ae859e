package config

import (
	"context"
	"log/slog"
	"sync"

	"alsd/bus"
	"alsd/types"
)

// Service owns the daemon config file. It publishes the loop settings and
// the HAL selection as retained messages and persists changes made at
// runtime.
type Service struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	cfg  Config
	conn *bus.Connection
}

// NewService wraps an already loaded config. path may be empty, in which
// case changes are kept in memory only.
func NewService(path string, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{path: path, cfg: cfg, log: log.With("svc", "config")}
}

// Config returns a copy of the current config.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start publishes the current config retained on conn.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	cfg := s.cfg
	s.mu.Unlock()
	s.publish(cfg)
	return nil
}

// SaveSettings validates and persists new loop settings.
func (s *Service) SaveSettings(st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	return s.update(func(c *Config) { c.ALS = st })
}

// SaveEnabled persists the adaptive-brightness switch.
func (s *Service) SaveEnabled(on bool) error {
	return s.update(func(c *Config) { c.Enabled = on })
}

func (s *Service) update(fn func(*Config)) error {
	s.mu.Lock()
	next := s.cfg
	fn(&next)
	if s.path != "" {
		if err := Write(s.path, next); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.cfg = next
	s.mu.Unlock()

	s.log.Info("config saved", "path", s.path, "enabled", next.Enabled,
		"poll_ms", next.ALS.PollIntervalMs, "transition_ms", next.ALS.TransitionMs, "sensitivity", next.ALS.Sensitivity)
	s.publish(next)
	return nil
}

func (s *Service) publish(cfg Config) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	conn.Publish(conn.NewMessage(types.TopicConfigALS, cfg.ALS, true))
	conn.Publish(conn.NewMessage(types.TopicConfigHAL, cfg.HAL, true))
	conn.Publish(conn.NewMessage(types.TopicConfigMonitor, cfg.Monitor, true))
}
