package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Database DatabaseConfig `json:"database"`
	API      APIConfig      `json:"api,omitempty"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Digest   DigestConfig   `json:"digest,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path"`

	// BusyTimeout is a Go duration string. "0s" disables the pragma.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen,omitempty"`
}

// DispatchConfig bounds outbound message throughput. RatePerSec is the
// sustained cap shared by every concurrent send in the process; Burst is
// the limiter bucket size. Both are applied live on config reload.
type DispatchConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	Burst      int `json:"burst,omitempty"`
}

type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
}

const (
	DefaultPollTimeout = 10 * time.Second
	DefaultListen      = ":8080"
	DefaultRatePerSec  = 25
	DefaultSchedule    = "0 10 * * *"
)

// Validate checks fields that cannot be defaulted away.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if c.Dispatch.RatePerSec < 0 {
		return errors.New("dispatch.rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("database.busy_timeout", c.Database.BusyTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) PollTimeout() time.Duration {
	d, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	if err != nil {
		return DefaultPollTimeout
	}
	return d
}

func (c *Config) BusyTimeout() time.Duration {
	d, _ := ParseDurationField("database.busy_timeout", c.Database.BusyTimeout)
	return d
}

func (c *Config) ListenAddr() string {
	if strings.TrimSpace(c.API.Listen) == "" {
		return DefaultListen
	}
	return c.API.Listen
}

func (c *Config) RatePerSec() int {
	if c.Dispatch.RatePerSec <= 0 {
		return DefaultRatePerSec
	}
	return c.Dispatch.RatePerSec
}

func (c *Config) Burst() int {
	if c.Dispatch.Burst <= 0 {
		return c.RatePerSec()
	}
	return c.Dispatch.Burst
}

func (c *Config) DigestSchedule() string {
	if strings.TrimSpace(c.Digest.Schedule) == "" {
		return DefaultSchedule
	}
	return c.Digest.Schedule
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
