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
	// GKARounds counts CLIQUES rounds by operation: once when this member
	// starts an ika, join, exclude or refresh, and once more (labelled
	// "ika", for join chains too) when this member completes an upflow
	// chain.
	GKARounds = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gka",
			Name:      "rounds_total",
			Help:      "Total number of CLIQUES GKA rounds started or completed by this member",
		},
		[]string{"op"}, // ika, join, exclude, refresh
	)

	// GKAErrors tracks GKA round failures by operation.
	GKAErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gka",
			Name:      "errors_total",
			Help:      "Total number of failed CLIQUES GKA rounds",
		},
		[]string{"op"},
	)

	// ASKERounds tracks completed ASKE rounds by operation.
	ASKERounds = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aske",
			Name:      "rounds_total",
			Help:      "Total number of completed ASKE rounds",
		},
		[]string{"op"}, // commit, upflow, downflow, join, exclude
	)

	// ASKESessionsAcknowledged tracks sessions that reach full mutual
	// authentication.
	ASKESessionsAcknowledged = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aske",
			Name:      "sessions_acknowledged_total",
			Help:      "Total number of ASKE sessions that reached full acknowledgement",
		},
	)

	// ASKEAuthErrors tracks ASKE authentication failures.
	ASKEAuthErrors = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aske",
			Name:      "auth_errors_total",
			Help:      "Total number of ASKE session-signature verification failures",
		},
	)
)
