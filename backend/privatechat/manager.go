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

// Package privatechat composes the private chat components into one
// session-scoped Manager.
package privatechat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"github.com/efchatnet/privchat/backend/backup"
	"github.com/efchatnet/privchat/backend/encryption"
	"github.com/efchatnet/privchat/backend/events"
	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/messaging"
	"github.com/efchatnet/privchat/backend/metrics"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/rooms"
	"github.com/efchatnet/privchat/backend/selfdestruct"
	"github.com/efchatnet/privchat/backend/storage"
)

var ErrDisposed = errors.New("private chat manager has been disposed")

// Options wire a Manager. Gateway, Store and Logger are required.
type Options struct {
	Gateway gateway.ProtocolGateway
	Store   storage.KV
	Logger  *log.Logger

	Clock   clock.Clock
	Metrics *metrics.Metrics
	// Publisher receives every event in addition to the in-process bus.
	Publisher events.Publisher
	Retrier   *gateway.Retrier

	SyncTimeout   time.Duration
	SyncInterval  time.Duration
	RedactTimeout time.Duration
	BufferSize    int
}

// Manager is one user's private chat session.
type Manager struct {
	client    *gateway.Client
	verifier  *encryption.Verifier
	executor  *selfdestruct.Executor
	scheduler *selfdestruct.Scheduler
	factory   *rooms.Factory
	sender    *messaging.Sender
	backup    *backup.Coordinator
	bus       *events.Bus
	log       *log.Logger

	mu       sync.Mutex
	disposed bool
}

func New(opts Options) (*Manager, error) {
	if opts.Gateway == nil {
		return nil, errors.New("privatechat: gateway is required")
	}
	if opts.Store == nil {
		return nil, errors.New("privatechat: store is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("privatechat: logger is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	bus := events.NewBus(opts.BufferSize)
	publisher := events.Multi{bus, opts.Publisher}

	retrier := opts.Retrier
	if retrier == nil {
		retrier = gateway.NewRetrier(gateway.DefaultRetryAttempts, gateway.DefaultRetryDelay)
	}
	if retrier.Clock == nil {
		retrier = retrier.WithClock(opts.Clock)
	}
	client := gateway.NewClient(opts.Gateway, retrier)
	verifier := encryption.NewVerifier(client, opts.Logger)
	timers := storage.NewTimers(opts.Store)

	executor, err := selfdestruct.NewExecutor(client, timers, publisher, opts.Logger, selfdestruct.ExecutorConfig{
		RedactTimeout: opts.RedactTimeout,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	scheduler := selfdestruct.NewScheduler(opts.Clock, timers, executor, opts.Logger, opts.Metrics)

	return &Manager{
		client:    client,
		verifier:  verifier,
		executor:  executor,
		scheduler: scheduler,
		factory: rooms.NewFactory(client, verifier, opts.Clock, opts.Logger, rooms.Config{
			SyncTimeout:  opts.SyncTimeout,
			SyncInterval: opts.SyncInterval,
			Metrics:      opts.Metrics,
		}),
		sender: messaging.NewSender(client, verifier, scheduler, opts.Clock, opts.Logger, opts.Metrics),
		backup: backup.NewCoordinator(client, publisher, opts.Logger),
		bus:    bus,
		log:    opts.Logger.WithPrefix("[PrivateChat]"),
	}, nil
}

// Init restores persisted self-destruct timers. It must complete before
// self-destructing messages are accepted.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if err := m.scheduler.RestartAll(ctx); err != nil {
		return fmt.Errorf("failed to restore timers: %w", err)
	}
	m.log.Info("session initialised", "user", m.client.UserID(), "pending", len(m.scheduler.Pending()))
	return nil
}

// Dispose stops every in-memory timer. Persisted timers stay in the store
// for the next session to replay.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	m.scheduler.Stop()
	m.log.Info("session disposed")
}

func (m *Manager) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return ErrDisposed
	}
	return nil
}

func (m *Manager) CreateRoom(ctx context.Context, opts models.CreateOptions) (rooms.CreateResult, error) {
	if err := m.checkOpen(); err != nil {
		return rooms.CreateResult{}, err
	}
	return m.factory.CreateDetailed(ctx, opts)
}

// Send sends a message. Self-destructing messages are refused until Init
// has completed, so a timer is never armed ahead of the restored ones.
func (m *Manager) Send(ctx context.Context, roomID string, body any, selfDestruct time.Duration) (string, error) {
	if err := m.checkOpen(); err != nil {
		return "", err
	}
	if selfDestruct > 0 && !m.scheduler.Ready() {
		return "", models.ErrSchedulerNotReady
	}
	return m.sender.Send(ctx, roomID, body, selfDestruct)
}

func (m *Manager) EncryptionStatus(roomID string) models.EncryptionState {
	return m.verifier.Status(roomID)
}

// Remaining returns the time left before a message self-destructs.
func (m *Manager) Remaining(roomID, eventID string) time.Duration {
	return m.scheduler.Remaining(roomID, eventID)
}

func (m *Manager) RemainingMs(roomID, eventID string) int64 {
	return m.scheduler.RemainingMs(roomID, eventID)
}

// Destroy destroys a message now, whether or not a timer is armed for it.
func (m *Manager) Destroy(ctx context.Context, roomID, eventID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.executor.Destroy(ctx, roomID, eventID)
}

func (m *Manager) PendingTimers() []models.SelfDestructTimer {
	return m.scheduler.Pending()
}

func (m *Manager) BackupStatus(ctx context.Context) models.KeyBackupState {
	return m.backup.Status(ctx)
}

func (m *Manager) CreateBackup(ctx context.Context) (models.BackupCreated, error) {
	return m.backup.Create(ctx)
}

func (m *Manager) RestoreBackup(ctx context.Context, recoveryKey string) (models.RestoreResult, error) {
	return m.backup.Restore(ctx, recoveryKey)
}

func (m *Manager) ShouldPromptBackup(ctx context.Context) bool {
	return m.backup.ShouldPrompt(ctx)
}

// Subscribe returns the session's UI events and a cancel func.
func (m *Manager) Subscribe() (<-chan events.Event, func()) {
	return m.bus.Subscribe()
}

func (m *Manager) UserID() string {
	return m.client.UserID()
}
