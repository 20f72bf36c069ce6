// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// registryMetrics records source lifecycle through the global meter provider.
// Instrument construction failures leave the field nil and the record methods
// no-op.
type registryMetrics struct {
	created metric.Int64Counter
	active  metric.Int64UpDownCounter
}

func newRegistryMetrics() *registryMetrics {
	meter := otel.Meter("github.com/opentrusty/tenantgate/internal/pool")

	m := &registryMetrics{}
	m.created, _ = meter.Int64Counter("tenantgate_sources_created_total",
		metric.WithDescription("Tenant connection sources constructed"))
	m.active, _ = meter.Int64UpDownCounter("tenantgate_sources_active",
		metric.WithDescription("Tenant connection sources currently cached"))
	return m
}

func (m *registryMetrics) recordCreated(ctx context.Context, key Key) {
	attrs := metric.WithAttributes(attribute.String("privilege", string(key.Privilege)))
	if m.created != nil {
		m.created.Add(ctx, 1, attrs)
	}
	if m.active != nil {
		m.active.Add(ctx, 1, attrs)
	}
}

func (m *registryMetrics) recordDisposed(ctx context.Context, key Key) {
	if m.active != nil {
		m.active.Add(ctx, -1, metric.WithAttributes(
			attribute.String("privilege", string(key.Privilege))))
	}
}
