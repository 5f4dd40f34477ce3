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

// Package metrics instruments the private chat components. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "privchat"

// Reasons a send is blocked.
const (
	ReasonNotEncrypted      = "not_encrypted"
	ReasonAlgorithmMismatch = "algorithm_mismatch"
	ReasonInvalidInput      = "invalid_input"
	ReasonUnknownRoom       = "unknown_room"
)

type Metrics struct {
	messagesSent      prometheus.Counter
	sendsBlocked      *prometheus.CounterVec
	timersArmed       prometheus.Counter
	armFailures       prometheus.Counter
	messagesDestroyed prometheus.Counter
	redactionFailures prometheus.Counter
	inviteFailures    prometheus.Counter
	roomsCreated      prometheus.Counter
	pendingTimers     prometheus.Gauge
}

// New registers the collectors on reg. Passing nil registers nothing but
// still returns usable collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Number of messages sent to private rooms",
		}),
		sendsBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_blocked_total",
			Help:      "Number of sends refused before reaching the network",
		}, []string{"reason"}),
		timersArmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timers_armed_total",
			Help:      "Number of self-destruct timers armed",
		}),
		armFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_arm_failures_total",
			Help:      "Number of sent messages whose self-destruct timer could not be armed",
		}),
		messagesDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_destroyed_total",
			Help:      "Number of messages destroyed",
		}),
		redactionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redaction_failures_total",
			Help:      "Number of server redactions that failed",
		}),
		inviteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invite_failures_total",
			Help:      "Number of participant invites that failed",
		}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Number of private rooms created",
		}),
		pendingTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_timers",
			Help:      "Number of armed self-destruct timers",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.messagesSent,
			m.sendsBlocked,
			m.timersArmed,
			m.armFailures,
			m.messagesDestroyed,
			m.redactionFailures,
			m.inviteFailures,
			m.roomsCreated,
			m.pendingTimers,
		)
	}
	return m
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) SendBlocked(reason string) {
	if m != nil {
		m.sendsBlocked.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) TimerArmed() {
	if m != nil {
		m.timersArmed.Inc()
	}
}

func (m *Metrics) ArmFailed() {
	if m != nil {
		m.armFailures.Inc()
	}
}

func (m *Metrics) MessageDestroyed() {
	if m != nil {
		m.messagesDestroyed.Inc()
	}
}

func (m *Metrics) RedactionFailed() {
	if m != nil {
		m.redactionFailures.Inc()
	}
}

func (m *Metrics) InviteFailed() {
	if m != nil {
		m.inviteFailures.Inc()
	}
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.roomsCreated.Inc()
	}
}

// AddPendingTimers moves the pending timer gauge by delta. Sessions share
// one gauge, so each reports only its own changes.
func (m *Metrics) AddPendingTimers(delta int) {
	if m != nil {
		m.pendingTimers.Add(float64(delta))
	}
}
