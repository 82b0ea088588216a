// Copyright (C) 2025 mpenc-go
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GreetStateTransitions tracks greet state machine transitions.
	GreetStateTransitions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "greet",
			Name:      "transitions_total",
			Help:      "Total number of greet state machine transitions",
		},
		[]string{"from", "to"},
	)

	// ServerOrderRejections tracks membership packets rejected by the
	// server-order tracker.
	ServerOrderRejections = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "greet",
			Name:      "server_order_rejections_total",
			Help:      "Total number of membership packets rejected by the server-order tracker",
		},
		[]string{"reason"}, // duplicate, ongoing, not-ongoing, prev-mismatch, not-bootstrapped
	)

	// MessagesDecrypted tracks payload decrypt outcomes.
	MessagesDecrypted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "decrypted_total",
			Help:      "Total number of payload decrypt attempts",
		},
		[]string{"result"}, // ok, no-key, bad-padding, bad-envelope
	)

	// TranscriptFullyAcked tracks messages that reach full acknowledgement.
	TranscriptFullyAcked = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transcript",
			Name:      "fully_acked_total",
			Help:      "Total number of transcript messages that became fully acked",
		},
	)

	// ConsistencyWarnings tracks full-ack warnings raised by the monitor.
	ConsistencyWarnings = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "full_ack_warnings_total",
			Help:      "Total number of full-ack warnings raised by the consistency monitor",
		},
		[]string{"final"}, // "true" or "false"
	)
)
