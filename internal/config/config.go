package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.pulse/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
}

// Session represents a per-session session.toml: where to connect and
// how the sync core is tuned. The session token is assumed to have been
// provisioned out of band; acquiring it is not this program's job.
type Session struct {
	ServerURL    string `toml:"server_url"`
	APIBaseURL   string `toml:"api_base_url"`
	SessionToken string `toml:"session_token"`

	HeartbeatIntervalSec int `toml:"heartbeat_interval_sec"`
	PongTimeoutSec       int `toml:"pong_timeout_sec"`
	PollIntervalSec      int `toml:"poll_interval_sec"`
	QueueCapacity        int `toml:"queue_capacity"`
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`
}

// Defaults used when a session.toml omits tuning values.
const (
	DefaultHeartbeatInterval    = 25 * time.Second
	DefaultPongTimeout          = 10 * time.Second
	DefaultPollInterval         = 5 * time.Second
	DefaultQueueCapacity        = 100
	DefaultMaxReconnectAttempts = 10
)

// HeartbeatInterval returns the configured heartbeat interval or the default.
func (s *Session) HeartbeatInterval() time.Duration {
	if s.HeartbeatIntervalSec > 0 {
		return time.Duration(s.HeartbeatIntervalSec) * time.Second
	}
	return DefaultHeartbeatInterval
}

// PongTimeout returns the configured pong timeout or the default.
func (s *Session) PongTimeout() time.Duration {
	if s.PongTimeoutSec > 0 {
		return time.Duration(s.PongTimeoutSec) * time.Second
	}
	return DefaultPongTimeout
}

// PollInterval returns the configured fallback poll interval or the default.
func (s *Session) PollInterval() time.Duration {
	if s.PollIntervalSec > 0 {
		return time.Duration(s.PollIntervalSec) * time.Second
	}
	return DefaultPollInterval
}

// Queue returns the configured outbound queue capacity or the default.
func (s *Session) Queue() int {
	if s.QueueCapacity > 0 {
		return s.QueueCapacity
	}
	return DefaultQueueCapacity
}

// ReconnectAttempts returns the configured reconnect attempt cap or the default.
func (s *Session) ReconnectAttempts() int {
	if s.MaxReconnectAttempts > 0 {
		return s.MaxReconnectAttempts
	}
	return DefaultMaxReconnectAttempts
}

// Load reads the global config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the global config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return write(path, cfg)
}

// LoadSession reads a session.toml from the given path.
func LoadSession(path string) (*Session, error) {
	var s Session
	_, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession writes a session.toml to the given path.
func SaveSession(path string, s *Session) error {
	return write(path, s)
}

func write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
