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
	// SessionKeyCandidates tracks how many session-key candidates a
	// session's CandidateStore is holding for trial-decrypt, sampled on
	// every prune pass.
	SessionKeyCandidates = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "key_candidates",
			Help:      "Current number of session-key candidates held for trial-decrypt",
		},
	)

	// SessionPacketsRouted tracks inbound packets routed by kind.
	SessionPacketsRouted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "packets_routed_total",
			Help:      "Total number of inbound packets routed to greet or message handling",
		},
		[]string{"kind"}, // greet, message, rejected
	)

	// SessionReplaysDropped tracks inbound envelopes dropped as replays
	// of an already-processed packet.
	SessionReplaysDropped = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "replays_dropped_total",
			Help:      "Total number of inbound envelopes dropped by the replay guard",
		},
	)
)
