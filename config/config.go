// Package config holds the settings shared by the reconf binaries.
//
// Values start from Default, are overridden by an optional TOML file, then by
// RECONF_* environment variables. Command line flags are applied last by the
// binaries themselves.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"go.chrisrx.dev/reconf/protocol"
	"go.chrisrx.dev/reconf/session"
)

const EnvPrefix = "RECONF_"

type DiffConfig struct {
	Moves bool `toml:"moves" env:"MOVES"`
	LCS   bool `toml:"lcs" env:"LCS"`
	Tests bool `toml:"tests" env:"TESTS"`
}

type Config struct {
	// Addr is the listen address of the controller.
	Addr string `toml:"addr" env:"ADDR"`
	// ControllerURL is the websocket endpoint agents dial.
	ControllerURL string `toml:"controllerURL" env:"CONTROLLER_URL"`
	// Token is sent by agents as a bearer token and required by the
	// controller when set.
	Token string `toml:"token" env:"TOKEN"`

	// IDStyle selects correlation tokens: phrase, uuid or ulid.
	IDStyle string `toml:"idStyle" env:"ID_STYLE"`

	PingInterval   time.Duration `toml:"pingInterval" env:"PING_INTERVAL"`
	WriteTimeout   time.Duration `toml:"writeTimeout" env:"WRITE_TIMEOUT"`
	RequestTimeout time.Duration `toml:"requestTimeout" env:"REQUEST_TIMEOUT"`
	DialRetry      time.Duration `toml:"dialRetry" env:"DIAL_RETRY"`
	OutgoingBuffer int           `toml:"outgoingBuffer" env:"OUTGOING_BUFFER"`

	Diff DiffConfig `toml:"diff" envPrefix:"DIFF_"`
}

func Default() *Config {
	return &Config{
		Addr:           ":8080",
		ControllerURL:  "ws://localhost:8080/connect",
		IDStyle:        "phrase",
		PingInterval:   15 * time.Second,
		WriteTimeout:   10 * time.Second,
		RequestTimeout: 5 * time.Second,
		DialRetry:      2 * time.Second,
		OutgoingBuffer: 64,
	}
}

// Load returns the defaults overridden by the TOML file at path, if any, and
// by the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := protocol.IDFuncByName(c.IDStyle); err != nil {
		errs = append(errs, err)
	}
	if c.PingInterval < 0 {
		errs = append(errs, fmt.Errorf("pingInterval must not be negative"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("writeTimeout must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("requestTimeout must be positive"))
	}
	if c.DialRetry <= 0 {
		errs = append(errs, fmt.Errorf("dialRetry must be positive"))
	}
	if c.OutgoingBuffer <= 0 {
		errs = append(errs, fmt.Errorf("outgoingBuffer must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) DiffOptions() []protocol.DiffOption {
	var opts []protocol.DiffOption
	if c.Diff.Moves {
		opts = append(opts, protocol.WithMoves())
	}
	if c.Diff.LCS {
		opts = append(opts, protocol.WithLCS())
	}
	if c.Diff.Tests {
		opts = append(opts, protocol.WithTests())
	}
	return opts
}

// SessionOptions translates the settings into session options. Validate must
// have succeeded.
func (c *Config) SessionOptions() []session.Option {
	newID, _ := protocol.IDFuncByName(c.IDStyle)
	return []session.Option{
		session.WithIDFunc(newID),
		session.WithPingInterval(c.PingInterval),
		session.WithWriteTimeout(c.WriteTimeout),
		session.WithOutgoingBuffer(c.OutgoingBuffer),
		session.WithDiffOptions(c.DiffOptions()...),
	}
}
