// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the private chat service configuration from a TOML
// file, an optional .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	defaultPort          = "8081"
	defaultIssuer        = "efchat"
	defaultLogLevel      = "info"
	defaultBackend       = "bolt"
	defaultPath          = "privchat.db"
	defaultGatewayKind   = "loopback"
	defaultUserID        = "@privchat:loopback"
	defaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
	defaultSyncTimeout   = 10 * time.Second
	defaultSyncInterval  = 100 * time.Millisecond
	defaultRedactTimeout = 10 * time.Second
	defaultBufferSize    = 64
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendBolt     = "bolt"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Server is the HTTP bridge configuration.
type Server struct {
	Port      string
	JWTSecret string
	JWTIssuer string
	// AllowedOrigins lists CORS origins. Empty uses the built-in list.
	AllowedOrigins []string
}

// Storage selects where self-destruct timers are persisted.
type Storage struct {
	// Backend is one of memory, file, bolt, redis, postgres or sqlite.
	Backend string

	// Path is the directory (file) or database file (bolt, sqlite).
	Path string

	DatabaseURL string
	RedisURL    string
}

type Logging struct {
	// Disable discards all log output.
	Disable bool

	// File specifies the log file, if omitted stderr will be used.
	File string

	// Level is one of debug, info, warn or error.
	Level string
}

// Gateway configures the protocol client and its timeouts.
type Gateway struct {
	// Kind selects the protocol client. Only loopback is built in.
	Kind   string
	UserID string

	RetryAttempts int
	RetryDelay    time.Duration
	SyncTimeout   time.Duration
	SyncInterval  time.Duration
	RedactTimeout time.Duration
}

type Events struct {
	// RedisFanout also publishes UI events on privchat:events:{userId}.
	RedisFanout bool
	BufferSize  int
}

type Config struct {
	Server  *Server
	Storage *Storage
	Logging *Logging
	Gateway *Gateway
	Events  *Events
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = new(Server)
	}
	if c.Server.Port == "" {
		c.Server.Port = defaultPort
	}
	if c.Server.JWTIssuer == "" {
		c.Server.JWTIssuer = defaultIssuer
	}

	if c.Storage == nil {
		c.Storage = new(Storage)
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultBackend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.Path == "" && c.Storage.Backend == BackendBolt {
		c.Storage.Path = defaultPath
	}

	if c.Logging == nil {
		c.Logging = new(Logging)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)

	if c.Gateway == nil {
		c.Gateway = new(Gateway)
	}
	if c.Gateway.Kind == "" {
		c.Gateway.Kind = defaultGatewayKind
	}
	if c.Gateway.UserID == "" {
		c.Gateway.UserID = defaultUserID
	}
	if c.Gateway.RetryAttempts == 0 {
		c.Gateway.RetryAttempts = defaultRetryAttempts
	}
	if c.Gateway.RetryDelay == 0 {
		c.Gateway.RetryDelay = defaultRetryDelay
	}
	if c.Gateway.SyncTimeout == 0 {
		c.Gateway.SyncTimeout = defaultSyncTimeout
	}
	if c.Gateway.SyncInterval == 0 {
		c.Gateway.SyncInterval = defaultSyncInterval
	}
	if c.Gateway.RedactTimeout == 0 {
		c.Gateway.RedactTimeout = defaultRedactTimeout
	}

	if c.Events == nil {
		c.Events = new(Events)
	}
	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = defaultBufferSize
	}
}

// ApplyEnv loads the given .env files, if present, and lets the
// environment override the file configuration.
func (c *Config) ApplyEnv(envFiles ...string) {
	for _, f := range envFiles {
		// A missing .env file is not an error.
		_ = godotenv.Load(f)
	}

	setString(&c.Server.Port, "PORT")
	setString(&c.Server.JWTSecret, "JWT_SECRET")
	setString(&c.Server.JWTIssuer, "JWT_ISSUER")
	setString(&c.Storage.DatabaseURL, "DATABASE_URL")
	setString(&c.Storage.RedisURL, "REDIS_URL")
	setString(&c.Storage.Backend, "PRIVCHAT_STORAGE")
	setString(&c.Storage.Path, "PRIVCHAT_STORAGE_PATH")
	setString(&c.Logging.Level, "PRIVCHAT_LOG_LEVEL")
	setString(&c.Gateway.UserID, "PRIVCHAT_USER_ID")

	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate checks the configuration for missing or unknown values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile, BackendBolt, BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("config: Storage: %s backend requires Path", c.Storage.Backend)
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("config: Storage: redis backend requires RedisURL")
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("config: Storage: postgres backend requires DatabaseURL")
		}
	default:
		return fmt.Errorf("config: Storage: Backend '%v' is invalid", c.Storage.Backend)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", c.Logging.Level)
	}

	if c.Gateway.Kind != defaultGatewayKind {
		return fmt.Errorf("config: Gateway: Kind '%v' is not supported", c.Gateway.Kind)
	}
	if c.Gateway.UserID == "" {
		return errors.New("config: Gateway: UserID is required")
	}
	if c.Gateway.RetryAttempts < 1 {
		return errors.New("config: Gateway: RetryAttempts must be at least 1")
	}
	if c.Gateway.RetryDelay < 0 || c.Gateway.SyncTimeout < 0 || c.Gateway.SyncInterval < 0 || c.Gateway.RedactTimeout < 0 {
		return errors.New("config: Gateway: durations must not be negative")
	}

	if c.Events.RedisFanout && c.Storage.RedisURL == "" {
		return errors.New("config: Events: RedisFanout requires Storage.RedisURL")
	}
	if c.Events.BufferSize < 0 {
		return errors.New("config: Events: BufferSize must not be negative")
	}
	return nil
}

// ValidateServer additionally checks what the HTTP bridge needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.JWTSecret == "" {
		return errors.New("config: Server: JWTSecret is required (JWT_SECRET)")
	}
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: no nil buffer as config file")
	}

	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
