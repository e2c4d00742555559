// Package config loads the daemon's environment-driven defaults: the
// network/format/compression knobs a freshly-opened runtime starts with
// before a control-protocol command overrides them.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Control ControlConfig
	Net     NetConfig
	Logging LogConfig
}

// ControlConfig configures the line-protocol listener.
type ControlConfig struct {
	TCPAddr string `envconfig:"CONTROL_TCP_ADDR" default:":2620"`
	UDPAddr string `envconfig:"CONTROL_UDP_ADDR" default:":2620"`
}

// NetConfig holds the default network parameters a Runtime is seeded
// with; a control-protocol "net_protocol =" command may override any of
// these per spec.md §6.
type NetConfig struct {
	Protocol        string `envconfig:"NET_PROTOCOL" default:"tcp"`
	MTU             int    `envconfig:"NET_MTU" default:"1500"`
	SocketBufBytes  int    `envconfig:"NET_SOCKBUF_BYTES" default:"4194304"`
	BlockSize       int    `envconfig:"NET_BLOCKSIZE" default:"131072"`
	NumBlocks       int    `envconfig:"NET_NUM_BLOCKS" default:"64"`
	InterPacketDgap int    `envconfig:"NET_IPD_MICROS" default:"0"`
	AckPeriod       uint64 `envconfig:"NET_ACK_PERIOD" default:"128"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("CHAIND", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment, falling back to
// Default on any processing error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Control: ControlConfig{TCPAddr: ":2620", UDPAddr: ":2620"},
		Net: NetConfig{
			Protocol:        "tcp",
			MTU:             1500,
			SocketBufBytes:  4 << 20,
			BlockSize:       128 << 10,
			NumBlocks:       64,
			InterPacketDgap: 0,
			AckPeriod:       128,
		},
		Logging: LogConfig{Level: "info", Development: false},
	}
}
