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

package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/privchat/backend/config"
	"github.com/efchatnet/privchat/backend/events"
	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/gateway/loopback"
	"github.com/efchatnet/privchat/backend/handlers"
	"github.com/efchatnet/privchat/backend/metrics"
	"github.com/efchatnet/privchat/backend/middleware"
	"github.com/efchatnet/privchat/backend/privatechat"
	"github.com/efchatnet/privchat/backend/storage"
)

// GatewayFactory opens the protocol client for a user.
type GatewayFactory func(userID string) (gateway.ProtocolGateway, error)

// LoopbackGateway gives every user their own in-memory homeserver.
func LoopbackGateway(userID string) (gateway.ProtocolGateway, error) {
	return loopback.New(userID), nil
}

// PrivateChatIntegration provides self-destructing private chat as a plugin for efchat
type PrivateChatIntegration struct {
	cfg      Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	log      *log.Logger

	roomHandler    *handlers.RoomHandler
	messageHandler *handlers.MessageHandler
	backupHandler  *handlers.BackupHandler

	mu       sync.Mutex
	sessions map[string]*session
}

// session is a user's manager while it is being opened and after. ready is
// closed once m or err is set.
type session struct {
	ready chan struct{}
	m     *privatechat.Manager
	err   error
}

func (s *session) wait() *privatechat.Manager {
	<-s.ready
	return s.m
}

// Config holds configuration for the private chat integration
type Config struct {
	// Storage holds the timers of every session, namespaced by user.
	Storage storage.KV
	// Redis is used for event fan-out when RedisFanout is set.
	Redis       *redis.Client
	RedisFanout bool

	JWTSecret      string
	JWTIssuer      string
	AllowedOrigins []string

	Logger   *log.Logger
	Registry *prometheus.Registry
	Gateway  GatewayFactory
	Retrier  *gateway.Retrier

	SyncTimeout   time.Duration
	SyncInterval  time.Duration
	RedactTimeout time.Duration
	BufferSize    int
}

// ConfigFrom maps the service configuration onto an integration Config.
func ConfigFrom(cfg *config.Config, kv storage.KV, rdb *redis.Client, logger *log.Logger) *Config {
	return &Config{
		Storage:        kv,
		Redis:          rdb,
		RedisFanout:    cfg.Events.RedisFanout,
		JWTSecret:      cfg.Server.JWTSecret,
		JWTIssuer:      cfg.Server.JWTIssuer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		Gateway:        LoopbackGateway,
		Retrier:        gateway.NewRetrier(cfg.Gateway.RetryAttempts, cfg.Gateway.RetryDelay),
		SyncTimeout:    cfg.Gateway.SyncTimeout,
		SyncInterval:   cfg.Gateway.SyncInterval,
		RedactTimeout:  cfg.Gateway.RedactTimeout,
		BufferSize:     cfg.Events.BufferSize,
	}
}

// NewPrivateChatIntegration creates a new integration that can be embedded into efchat
func NewPrivateChatIntegration(cfg *Config) (*PrivateChatIntegration, error) {
	if cfg.Storage == nil {
		return nil, &ValidationError{Message: "storage is not configured"}
	}
	c := *cfg
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
	if c.Gateway == nil {
		c.Gateway = LoopbackGateway
	}
	if c.RedisFanout && c.Redis == nil {
		return nil, &ValidationError{Message: "redis fan-out requires a redis client"}
	}

	i := &PrivateChatIntegration{
		cfg:      c,
		registry: c.Registry,
		metrics:  metrics.New(c.Registry),
		log:      c.Logger.WithPrefix("[PrivateChat-Integration]"),
		sessions: make(map[string]*session),
	}
	i.roomHandler = handlers.NewRoomHandler(i, c.Logger)
	i.messageHandler = handlers.NewMessageHandler(i, c.Logger)
	i.backupHandler = handlers.NewBackupHandler(i, c.Logger)
	return i, nil
}

// Session returns the user's session, creating and initialising it on
// first use. Initialisation runs outside the integration lock; concurrent
// callers for the same user wait for the first one.
func (i *PrivateChatIntegration) Session(ctx context.Context, userID string) (*privatechat.Manager, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	i.mu.Lock()
	s, ok := i.sessions[userID]
	if !ok {
		s = &session{ready: make(chan struct{})}
		i.sessions[userID] = s
	}
	i.mu.Unlock()

	if !ok {
		s.m, s.err = i.open(ctx, userID)
		if s.err != nil {
			i.mu.Lock()
			if i.sessions[userID] == s {
				delete(i.sessions, userID)
			}
			i.mu.Unlock()
		}
		close(s.ready)
		return s.m, s.err
	}

	select {
	case <-s.ready:
		return s.m, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (i *PrivateChatIntegration) open(ctx context.Context, userID string) (*privatechat.Manager, error) {
	gw, err := i.cfg.Gateway(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to open gateway for %s: %w", userID, err)
	}
	var publisher events.Publisher
	if i.cfg.RedisFanout {
		publisher = events.NewRedisPublisher(i.cfg.Redis, userID, i.cfg.Logger)
	}

	m, err := privatechat.New(privatechat.Options{
		Gateway:       gw,
		Store:         storage.WithPrefix(i.cfg.Storage, userID+"/"),
		Logger:        i.cfg.Logger.With("user", userID),
		Metrics:       i.metrics,
		Publisher:     publisher,
		Retrier:       i.cfg.Retrier,
		SyncTimeout:   i.cfg.SyncTimeout,
		SyncInterval:  i.cfg.SyncInterval,
		RedactTimeout: i.cfg.RedactTimeout,
		BufferSize:    i.cfg.BufferSize,
	})
	if err != nil {
		return nil, err
	}
	if err := m.Init(ctx); err != nil {
		m.Dispose()
		return nil, err
	}
	i.log.Info("session opened", "user", userID)
	return m, nil
}

// RegisterRoutes adds private chat routes to an existing router
// If authMiddleware is nil, it will use the built-in JWT validation
func (i *PrivateChatIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/private").Subrouter()

	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(i.cfg.JWTSecret, i.cfg.JWTIssuer))
	}

	// Rooms
	api.HandleFunc("/rooms", i.roomHandler.CreateRoom).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/encryption", i.roomHandler.GetEncryption).Methods("GET", "OPTIONS")

	// Messages and self-destruct
	api.HandleFunc("/rooms/{roomId}/messages", i.messageHandler.SendMessage).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/messages/{eventId}/remaining", i.messageHandler.GetRemaining).Methods("GET", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/messages/{eventId}", i.messageHandler.DestroyMessage).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/timers", i.messageHandler.ListTimers).Methods("GET", "OPTIONS")

	// Key backup
	api.HandleFunc("/backup/status", i.backupHandler.GetStatus).Methods("GET", "OPTIONS")
	api.HandleFunc("/backup", i.backupHandler.CreateBackup).Methods("POST", "OPTIONS")
	api.HandleFunc("/backup/restore", i.backupHandler.RestoreBackup).Methods("POST", "OPTIONS")
	api.HandleFunc("/backup/prompt", i.backupHandler.GetPrompt).Methods("GET", "OPTIONS")

	router.Handle("/metrics", promhttp.HandlerFor(i.registry, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/health", i.Health).Methods("GET")
}

// Router builds a standalone router with CORS and every route registered.
func (i *PrivateChatIntegration) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.NewCORS(i.cfg.AllowedOrigins))
	i.RegisterRoutes(r, nil)
	return r
}

// Health reports whether the timer storage is reachable.
func (i *PrivateChatIntegration) Health(w http.ResponseWriter, r *http.Request) {
	_, err := i.cfg.Storage.Get(r.Context(), "health")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Storage unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// CloseSession disposes a user's session, for example on logout. Persisted
// timers are kept and replayed by the next session.
func (i *PrivateChatIntegration) CloseSession(userID string) {
	i.mu.Lock()
	s, ok := i.sessions[userID]
	delete(i.sessions, userID)
	i.mu.Unlock()
	if !ok {
		return
	}
	if m := s.wait(); m != nil {
		m.Dispose()
		i.log.Info("session closed", "user", userID)
	}
}

// Close disposes every session. The storage is left open.
func (i *PrivateChatIntegration) Close() {
	i.mu.Lock()
	sessions := i.sessions
	i.sessions = make(map[string]*session)
	i.mu.Unlock()
	for _, s := range sessions {
		if m := s.wait(); m != nil {
			m.Dispose()
		}
	}
}

// ValidateSetup checks if the module is properly configured
func (i *PrivateChatIntegration) ValidateSetup() error {
	if i.cfg.JWTSecret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
