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

// Package metrics exposes Prometheus counters and a gauge for the GKA,
// ASKE, greet, message, transcript, monitor and session layers. The core never starts an HTTP listener
// itself (serving /metrics is an embedding-application concern); it only
// registers collectors against Registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "mpenc"

// Registry is the Prometheus registry all collectors in this package are
// registered against. An embedding application can expose it via
// promhttp.HandlerFor(metrics.Registry, ...).
var Registry = prometheus.NewRegistry()
