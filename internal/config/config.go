package config

import "time"

// DatabaseConfig describes the credential store's connection parameters.
// The shipped backend is SQLite (internal/store/sqlite): DBName is used as
// the database file path; Host, User, Password and Port are accepted so the
// same config shape could later target a networked database, but the
// SQLite backend ignores them.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Port     int    `mapstructure:"port" yaml:"port"`
}

// Config holds master server configuration values.
type Config struct {
	// Port is the TCP port the lobby protocol listens on.
	Port int `mapstructure:"port" yaml:"port"`

	// AcceptedVersion is the one protocol version the handshake accepts,
	// as an ordered sequence of ints: a peer's peerProtocolVersion must
	// equal it element by element. Re-read by every new connection, so it
	// can be changed via hot reload without a restart.
	AcceptedVersion []int `mapstructure:"acceptedVersion" yaml:"acceptedVersion"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// HTTPAddr is the bind address for the read-only operational HTTP
	// surface (/health, /debug/games). Empty disables it.
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Port:            9998,
		AcceptedVersion: []int{3},
		Database: DatabaseConfig{
			DBName: "masterserver.db",
		},
		LogLevel:        "info",
		HTTPAddr:        ":8080",
		ShutdownTimeout: 5 * time.Second,
	}
}

// AcceptsVersion reports whether v appears as any element of the
// AcceptedVersion sequence.
func (c Config) AcceptsVersion(v int) bool {
	for _, accepted := range c.AcceptedVersion {
		if accepted == v {
			return true
		}
	}
	return false
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Port and Database are intentionally excluded: both are captured once at
// startup (changing the listen port or credential store requires a
// restart), so hot reload never rewrites them underneath a running
// listener or open database handle.
func (c *Config) UpdateFrom(other Config) {
	if len(other.AcceptedVersion) > 0 {
		c.AcceptedVersion = other.AcceptedVersion
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
