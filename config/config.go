// Package config holds the TOML configuration for the Rover mail
// access server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rovermail/rover/auth"
)

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	MIDB     MIDBConfig     `toml:"midb"`
	Auth     AuthConfig     `toml:"auth"`
	AdminAPI AdminAPIConfig `toml:"admin_api"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig covers the IMAP listener and session limits.
type ServerConfig struct {
	Hostname       string `toml:"hostname"`
	Listen         string `toml:"listen"`
	ListenTLS      string `toml:"listen_tls"`
	TLSCertFile    string `toml:"tls_cert_file"`
	TLSKeyFile     string `toml:"tls_key_file"`
	MaxConnections int    `toml:"max_connections"`

	// Timeout is the idle autologout interval; RFC 3501 requires at
	// least 30 minutes.
	Timeout        string `toml:"timeout"`
	IdleTimeout    string `toml:"idle_timeout"` // while in IDLE
	MaxMessageSize int64  `toml:"max_message_size"`

	// DefaultLang selects localized special-folder names for users
	// without a per-account language.
	DefaultLang string `toml:"default_lang"`

	// TempDir holds APPEND staging files.
	TempDir string `toml:"temp_dir"`
}

func (s *ServerConfig) GetTimeout() (time.Duration, error) {
	return parseDuration(s.Timeout, 30*time.Minute)
}

func (s *ServerConfig) GetIdleTimeout() (time.Duration, error) {
	return parseDuration(s.IdleTimeout, 30*time.Minute)
}

// MIDBConfig covers the mail index backend connection.
type MIDBConfig struct {
	// Address is "host:port" or an absolute unix socket path.
	Address        string `toml:"address"`
	ConnectTimeout string `toml:"connect_timeout"`
	CommandTimeout string `toml:"command_timeout"`
	PoolSize       int    `toml:"pool_size"`
}

func (m *MIDBConfig) GetConnectTimeout() (time.Duration, error) {
	return parseDuration(m.ConnectTimeout, 10*time.Second)
}

func (m *MIDBConfig) GetCommandTimeout() (time.Duration, error) {
	return parseDuration(m.CommandTimeout, 3*time.Minute)
}

// Network splits Address into a net.Dial network/address pair.
func (m *MIDBConfig) Network() (network, address string) {
	if strings.HasPrefix(m.Address, "/") {
		return "unix", m.Address
	}
	return "tcp", m.Address
}

// AuthConfig covers accounts and login throttling.
type AuthConfig struct {
	Users   []auth.User        `toml:"users"`
	Limiter auth.LimiterConfig `toml:"limiter"`
}

// AdminAPIConfig covers the HTTP management endpoint.
type AdminAPIConfig struct {
	Enabled   bool   `toml:"enabled"`
	Listen    string `toml:"listen"`
	JWTSecret string `toml:"jwt_secret"`
}

// LoggingConfig selects log output, format and level.
type LoggingConfig struct {
	Output string `toml:"output"` // "stderr", "stdout", "syslog", or a file path
	Format string `toml:"format"` // "json" or "console"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// NewDefaultConfig returns the built-in defaults; file and flag values
// override them.
func NewDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen:         ":143",
			MaxConnections: 1024,
			Timeout:        "30m",
			IdleTimeout:    "30m",
			MaxMessageSize: 64 << 20,
			DefaultLang:    "en",
			TempDir:        os.TempDir(),
		},
		MIDB: MIDBConfig{
			Address:        "127.0.0.1:5555",
			ConnectTimeout: "10s",
			CommandTimeout: "3m",
			PoolSize:       4,
		},
		Auth: AuthConfig{
			Limiter: auth.DefaultLimiterConfig(),
		},
		AdminAPI: AdminAPIConfig{
			Listen: "127.0.0.1:9090",
		},
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
	}
}

// LoadFromFile decodes a TOML file over cfg. Unknown keys are warned
// about and ignored so configs survive option renames across releases.
func LoadFromFile(path string, cfg *Config) error {
	metadata, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	for _, key := range metadata.Undecoded() {
		fmt.Fprintf(os.Stderr, "WARNING: config %s: unknown key %q ignored\n", path, key)
	}
	return nil
}

// parseDuration understands time.ParseDuration syntax plus a "d"
// suffix for days. An empty string yields the fallback.
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
