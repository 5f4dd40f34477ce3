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

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/privchat/backend/gateway"
	"github.com/efchatnet/privchat/backend/gateway/loopback"
	"github.com/efchatnet/privchat/backend/integration"
	"github.com/efchatnet/privchat/backend/middleware"
	"github.com/efchatnet/privchat/backend/models"
	"github.com/efchatnet/privchat/backend/storage"
	"github.com/efchatnet/privchat/backend/storage/memory"
)

const (
	testSecret = "integration-secret"
	testIssuer = "efchat"
)

type fixture struct {
	t      *testing.T
	server *httptest.Server
	integ  *integration.PrivateChatIntegration
	kv     *memory.KV
	reg    *prometheus.Registry

	mu      sync.Mutex
	servers map[string]*loopback.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, kv: memory.New(), reg: prometheus.NewRegistry(), servers: make(map[string]*loopback.Server)}
	integ, err := integration.NewPrivateChatIntegration(&integration.Config{
		Storage:   f.kv,
		JWTSecret: testSecret,
		JWTIssuer: testIssuer,
		Logger:    log.New(io.Discard),
		Registry:  f.reg,
		Gateway: func(userID string) (gateway.ProtocolGateway, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			srv, ok := f.servers[userID]
			if !ok {
				srv = loopback.New(userID)
				f.servers[userID] = srv
			}
			return srv, nil
		},
		Retrier:      gateway.NewRetrier(2, 0),
		SyncInterval: time.Millisecond,
	})
	require.NoError(t, err)
	f.integ = integ
	f.server = httptest.NewServer(integ.Router())
	t.Cleanup(func() {
		f.server.Close()
		integ.Close()
	})
	return f
}

// homeserver returns the loopback server behind userID's session, opening
// the session first.
func (f *fixture) homeserver(userID string) *loopback.Server {
	_, err := f.integ.Session(context.Background(), userID)
	require.NoError(f.t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.servers[userID]
}

// gauge reads an unlabelled gauge from the shared registry.
func (f *fixture) gauge(name string) float64 {
	f.t.Helper()
	families, err := f.reg.Gather()
	require.NoError(f.t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	f.t.Fatalf("metric %s not found", name)
	return 0
}

func (f *fixture) do(method, path, userID string, body any) (int, map[string]any) {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rd)
	require.NoError(f.t, err)
	if userID != "" {
		now := time.Now()
		token, err := middleware.SignToken(middleware.Claims{
			UserID:    userID,
			Issuer:    testIssuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(time.Hour).Unix(),
		}, testSecret)
		require.NoError(f.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (f *fixture) createRoom(userID string) string {
	f.t.Helper()
	status, out := f.do(http.MethodPost, "/api/private/rooms", userID, map[string]any{
		"participants":     []string{"@bob:loopback"},
		"encryption_level": "high",
	})
	require.Equal(f.t, http.StatusCreated, status, out)
	return out["room_id"].(string)
}

func TestRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	status, _ := f.do(http.MethodGet, "/api/private/timers", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestCreateRoomAndSendSelfDestruct(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice = "@alice:loopback"

	roomID := f.createRoom(alice)

	status, out := f.do(http.MethodGet, "/api/private/rooms/"+roomID+"/encryption", alice, nil)
	require.Equal(http.StatusOK, status)
	require.Equal(true, out["sendable"])

	status, out = f.do(http.MethodPost, "/api/private/rooms/"+roomID+"/messages", alice, map[string]any{
		"body":             "burn after reading",
		"self_destruct_ms": 50,
	})
	require.Equal(http.StatusCreated, status, out)
	eventID := out["event_id"].(string)
	require.NotEmpty(eventID)

	require.Eventually(func() bool {
		_, timers := f.do(http.MethodGet, "/api/private/timers", alice, nil)
		return timers["count"] == float64(0)
	}, 2*time.Second, 10*time.Millisecond)

	ev, ok := f.homeserver(alice).Event(roomID, eventID)
	require.True(ok)
	require.True(ev.Redacted)
}

func TestDestroyNowAndRemaining(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice = "@alice:loopback"
	roomID := f.createRoom(alice)

	_, out := f.do(http.MethodPost, "/api/private/rooms/"+roomID+"/messages", alice, map[string]any{
		"body":             map[string]any{"msgtype": "m.text", "body": "later"},
		"self_destruct_ms": int64(time.Hour / time.Millisecond),
	})
	eventID := out["event_id"].(string)

	status, out := f.do(http.MethodGet, "/api/private/rooms/"+roomID+"/messages/"+eventID+"/remaining", alice, nil)
	require.Equal(http.StatusOK, status)
	require.Greater(out["remaining_ms"].(float64), float64(0))

	_, out = f.do(http.MethodGet, "/api/private/timers", alice, nil)
	require.Equal(float64(1), out["count"])

	status, out = f.do(http.MethodDelete, "/api/private/rooms/"+roomID+"/messages/"+eventID, alice, nil)
	require.Equal(http.StatusOK, status)
	require.Equal("destroyed", out["status"])

	_, out = f.do(http.MethodGet, "/api/private/rooms/"+roomID+"/messages/"+eventID+"/remaining", alice, nil)
	require.Equal(float64(0), out["remaining_ms"])
}

func TestSendToUnencryptedRoomIsRefused(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice = "@alice:loopback"
	roomID := f.createRoom(alice)

	require.NoError(f.homeserver(alice).SetState(roomID, models.EncryptionEventType, "", nil))

	status, out := f.do(http.MethodPost, "/api/private/rooms/"+roomID+"/messages", alice, map[string]any{
		"body": "secret",
	})
	require.Equal(http.StatusPreconditionFailed, status)
	require.NotEmpty(out["error"])
	require.Len(f.homeserver(alice).Events(roomID), 0)
}

func TestInvalidInput(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice = "@alice:loopback"
	roomID := f.createRoom(alice)

	status, _ := f.do(http.MethodPost, "/api/private/rooms/"+roomID+"/messages", alice, map[string]any{
		"body":             "x",
		"self_destruct_ms": -1,
	})
	require.Equal(http.StatusBadRequest, status)

	status, _ = f.do(http.MethodPost, "/api/private/rooms", alice, map[string]any{
		"encryption_level": "paranoid",
	})
	require.Equal(http.StatusBadRequest, status)

	status, _ = f.do(http.MethodPost, "/api/private/backup/restore", alice, map[string]any{
		"recovery_key": "nope",
	})
	require.Equal(http.StatusBadRequest, status)
}

func TestEncryptionSetupFailure(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice = "@alice:loopback"
	f.homeserver(alice).SetHooks(loopback.Hooks{
		DropInitialEncryption: true,
		RejectEncryptionState: true,
	})

	status, out := f.do(http.MethodPost, "/api/private/rooms", alice, map[string]any{})
	require.Equal(http.StatusBadGateway, status)
	require.NotEmpty(out["error"])
}

func TestKeyBackupFlow(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice = "@alice:loopback"

	_, out := f.do(http.MethodGet, "/api/private/backup/prompt", alice, nil)
	require.Equal(true, out["should_prompt"])

	status, out := f.do(http.MethodPost, "/api/private/backup", alice, nil)
	require.Equal(http.StatusCreated, status)
	key := out["recovery_key"].(string)
	require.NotEmpty(key)

	_, out = f.do(http.MethodGet, "/api/private/backup/status", alice, nil)
	require.Equal(true, out["enabled"])

	_, out = f.do(http.MethodGet, "/api/private/backup/prompt", alice, nil)
	require.Equal(false, out["should_prompt"])

	status, _ = f.do(http.MethodPost, "/api/private/backup/restore", alice, map[string]any{"recovery_key": key})
	require.Equal(http.StatusOK, status)
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	roomID := f.createRoom("@alice:loopback")
	_, out := f.do(http.MethodPost, "/api/private/rooms/"+roomID+"/messages", "@alice:loopback", map[string]any{
		"body":             "mine",
		"self_destruct_ms": 60000,
	})
	require.NotEmpty(out["event_id"])

	_, out = f.do(http.MethodGet, "/api/private/timers", "@bob:loopback", nil)
	require.Equal(float64(0), out["count"])
	_, out = f.do(http.MethodGet, "/api/private/timers", "@alice:loopback", nil)
	require.Equal(float64(1), out["count"])
}

func TestSessionReplaysTimersAfterClose(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice = "@alice:loopback"
	roomID := f.createRoom(alice)

	_, out := f.do(http.MethodPost, "/api/private/rooms/"+roomID+"/messages", alice, map[string]any{
		"body":             "persisted",
		"self_destruct_ms": 60000,
	})
	eventID := out["event_id"].(string)

	f.integ.CloseSession(alice)

	_, out = f.do(http.MethodGet, "/api/private/rooms/"+roomID+"/messages/"+eventID+"/remaining", alice, nil)
	require.Greater(out["remaining_ms"].(float64), float64(0))
}

func TestHealthAndMetrics(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.createRoom("@alice:loopback")

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Contains(string(b), "privchat_rooms_created_total")
}

func TestValidateSetup(t *testing.T) {
	integ, err := integration.NewPrivateChatIntegration(&integration.Config{Storage: memory.New()})
	require.NoError(t, err)
	var verr *integration.ValidationError
	require.ErrorAs(t, integ.ValidateSetup(), &verr)

	_, err = integration.NewPrivateChatIntegration(&integration.Config{})
	require.ErrorAs(t, err, &verr)
}

func TestPendingTimersGaugeSumsSessions(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice, bob = "@alice:loopback", "@bob:loopback"

	send := func(userID, roomID string) string {
		status, out := f.do(http.MethodPost, "/api/private/rooms/"+roomID+"/messages", userID, map[string]any{
			"body":             "later",
			"self_destruct_ms": 60000,
		})
		require.Equal(http.StatusCreated, status, out)
		return out["event_id"].(string)
	}

	aliceRoom := f.createRoom(alice)
	first := send(alice, aliceRoom)
	send(alice, aliceRoom)
	send(bob, f.createRoom(bob))
	require.Equal(3.0, f.gauge("privchat_pending_timers"))

	status, _ := f.do(http.MethodDelete, "/api/private/rooms/"+aliceRoom+"/messages/"+first, alice, nil)
	require.Equal(http.StatusOK, status)
	require.Equal(2.0, f.gauge("privchat_pending_timers"))

	f.integ.CloseSession(bob)
	require.Equal(1.0, f.gauge("privchat_pending_timers"))
}

func TestSlowSessionDoesNotBlockOthers(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	const alice, bob = "@alice:loopback", "@bob:loopback"

	// Alice has an expired timer whose redaction hangs until released.
	timers := storage.NewTimers(storage.WithPrefix(f.kv, alice+"/"))
	require.NoError(timers.Put(ctx, models.SelfDestructTimer{
		RoomID:      "!old:loopback",
		EventID:     "$old",
		DestroyTime: time.Now().Add(-time.Minute).UnixMilli(),
		TimeoutMs:   1000,
	}))
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := loopback.New(alice)
	srv.SetHooks(loopback.Hooks{
		Redact: func(string, string) error {
			once.Do(func() { close(started) })
			<-release
			return nil
		},
	})
	f.mu.Lock()
	f.servers[alice] = srv
	f.mu.Unlock()

	aliceDone := make(chan error, 1)
	go func() {
		_, err := f.integ.Session(ctx, alice)
		aliceDone <- err
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("alice's session never replayed her timers")
	}

	bobDone := make(chan error, 1)
	go func() {
		_, err := f.integ.Session(ctx, bob)
		bobDone <- err
	}()
	select {
	case err := <-bobDone:
		require.NoError(err)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("bob's session waited for alice's")
	}

	close(release)
	require.NoError(<-aliceDone)
	_, pending, err := timers.Get(ctx, models.TimerKey("!old:loopback", "$old"))
	require.NoError(err)
	require.False(pending)
}

func TestConcurrentCallersShareOneSession(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	got := make(chan any, n)
	for range n {
		go func() {
			m, err := f.integ.Session(ctx, "@alice:loopback")
			if err != nil {
				got <- err
				return
			}
			got <- m
		}()
	}
	first := <-got
	require.NotNil(first)
	for range n - 1 {
		require.Same(first, <-got)
	}
}

func TestSendToUnknownRoomIsNotFound(t *testing.T) {
	f := newFixture(t)
	status, out := f.do(http.MethodPost, "/api/private/rooms/!missing:loopback/messages", "@alice:loopback", map[string]any{
		"body": "hello",
	})
	require.Equal(t, http.StatusNotFound, status)
	require.NotEmpty(t, out["error"])
}

func TestOversizedTimeoutIsRejected(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	const alice = "@alice:loopback"
	roomID := f.createRoom(alice)

	// Wraps to a few milliseconds if multiplied into a time.Duration.
	const huge = 9223372036855

	status, _ := f.do(http.MethodPost, "/api/private/rooms/"+roomID+"/messages", alice, map[string]any{
		"body":             "x",
		"self_destruct_ms": huge,
	})
	require.Equal(http.StatusBadRequest, status)
	require.Len(f.homeserver(alice).Events(roomID), 0)

	status, _ = f.do(http.MethodPost, "/api/private/rooms", alice, map[string]any{
		"self_destruct_default_ms": huge,
	})
	require.Equal(http.StatusBadRequest, status)
}
