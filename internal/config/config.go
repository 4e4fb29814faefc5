// Package config binds the gridline process configuration from
// environment variables, an optional YAML file and command-line flags,
// in that order of precedence (flags win).
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	corecfg "github.com/gridline/gridline/core/config"
)

// Modes and transports accepted on the command line.
const (
	ModeLocal = "local"
	ModeHost  = "host"
	ModeJoin  = "join"

	TransportTCP = "tcp"
	TransportWS  = "ws"
)

// Policy names for player slots.
const (
	PolicyHuman  = "human"
	PolicyEasyAI = "easy-ai"
	PolicyHardAI = "hard-ai"
)

// Config holds everything the gridline binary needs to run one session.
type Config struct {
	Mode      string `yaml:"mode"`
	Transport string `yaml:"transport"`

	// Host mode: address to listen on; Join mode: address (or ws URL)
	// to connect to.
	ListenAddr  string `yaml:"listen_addr"`
	ConnectAddr string `yaml:"connect_addr"`

	// Local mode player slots.
	PlayerX string `yaml:"player_x"`
	PlayerO string `yaml:"player_o"`

	// Network modes: the policy driving this peer's own symbol, and (host
	// only) which symbol the host keeps for itself.
	LocalPolicy string `yaml:"local_policy"`
	HostSymbol  string `yaml:"host_symbol"`

	AcceptTimeout    time.Duration `yaml:"accept_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	StatusAddr string `yaml:"status_addr"`
	LogLevel   string `yaml:"log_level"`
	ConfigFile string `yaml:"-"`
}

// BindFlags seeds the config from the environment and registers flags.
func (c *Config) BindFlags() {
	c.ConfigFile = corecfg.GetEnv("CONFIG_FILE", corecfg.DefaultConfigPath("gridline.yaml"))
	c.LogLevel = corecfg.GetEnv("LOG_LEVEL", "info")
	c.Mode = corecfg.GetEnv("MODE", ModeLocal)
	c.Transport = corecfg.GetEnv("TRANSPORT", TransportTCP)
	c.ListenAddr = corecfg.GetEnv("LISTEN_ADDR", ":7764")
	c.ConnectAddr = corecfg.GetEnv("CONNECT_ADDR", "")
	c.PlayerX = corecfg.GetEnv("PLAYER_X", PolicyHuman)
	c.PlayerO = corecfg.GetEnv("PLAYER_O", PolicyHardAI)
	c.LocalPolicy = corecfg.GetEnv("LOCAL_POLICY", PolicyHuman)
	c.HostSymbol = corecfg.GetEnv("HOST_SYMBOL", "X")
	c.StatusAddr = corecfg.GetEnv("STATUS_ADDR", "")
	if d, err := time.ParseDuration(corecfg.GetEnv("ACCEPT_TIMEOUT", "0")); err == nil {
		c.AcceptTimeout = d
	}
	if d, err := time.ParseDuration(corecfg.GetEnv("HANDSHAKE_TIMEOUT", "5s")); err == nil {
		c.HandshakeTimeout = d
	} else {
		c.HandshakeTimeout = 5 * time.Second
	}

	flag.StringVar(&c.Mode, "mode", c.Mode, "session mode: local, host or join")
	flag.StringVar(&c.Transport, "transport", c.Transport, "peer transport: tcp or ws")
	flag.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "host mode listen address")
	flag.StringVar(&c.ConnectAddr, "connect", c.ConnectAddr, "join mode host address (host:port, or ws:// URL with -transport ws)")
	flag.StringVar(&c.PlayerX, "player-x", c.PlayerX, "local mode X policy: human, easy-ai or hard-ai")
	flag.StringVar(&c.PlayerO, "player-o", c.PlayerO, "local mode O policy: human, easy-ai or hard-ai")
	flag.StringVar(&c.LocalPolicy, "policy", c.LocalPolicy, "network modes: policy driving this peer's symbol")
	flag.StringVar(&c.HostSymbol, "host-symbol", c.HostSymbol, "host mode: symbol the host keeps (X or O)")
	flag.DurationVar(&c.AcceptTimeout, "accept-timeout", c.AcceptTimeout, "host mode: how long to wait for a peer (0 waits forever)")
	flag.DurationVar(&c.HandshakeTimeout, "handshake-timeout", c.HandshakeTimeout, "bound on the role-assignment handshake")
	flag.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "status/metrics HTTP listen address (disabled when empty)")
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
}

// LoadFile populates the config from a YAML file. Fields already set
// remain unless overwritten by corresponding entries in the file.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Validate rejects inconsistent settings before any socket is opened.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal:
		if err := validPolicy(c.PlayerX); err != nil {
			return fmt.Errorf("player-x: %w", err)
		}
		if err := validPolicy(c.PlayerO); err != nil {
			return fmt.Errorf("player-o: %w", err)
		}
	case ModeHost:
		if c.HostSymbol != "X" && c.HostSymbol != "O" {
			return fmt.Errorf("host-symbol must be X or O, got %q", c.HostSymbol)
		}
		if err := validPolicy(c.LocalPolicy); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	case ModeJoin:
		if c.ConnectAddr == "" {
			return fmt.Errorf("join mode requires -connect")
		}
		if err := validPolicy(c.LocalPolicy); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Transport != TransportTCP && c.Transport != TransportWS {
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

func validPolicy(p string) error {
	switch p {
	case PolicyHuman, PolicyEasyAI, PolicyHardAI:
		return nil
	default:
		return fmt.Errorf("unknown policy %q", p)
	}
}
