/*
SPDX-License-Identifier: Apache-2.0

Copyright 2026 gitops-agent contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package obs

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments the Reconciler and Status Publisher
// record against. Grounded on the teacher's internal/metrics/exporter.go
// OTel-meter-bridged-to-Prometheus pattern; the controller-runtime
// metrics.Registry there is replaced with a plain prometheus.Registry
// since this agent has no manager process.
type Metrics struct {
	Registry *prometheus.Registry

	ReconcileTotal       metric.Int64Counter
	ReconcileDuration    metric.Float64Histogram
	GitOperationsTotal   metric.Int64Counter
	UpdateRequiredTotal  metric.Int64Counter
	StatusPublishedTotal metric.Int64Counter
}

// NewMetrics wires an OTel meter provider to a dedicated Prometheus
// registry and creates every instrument the agent records against.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("gitops-agent")

	m := &Metrics{Registry: registry}

	if m.ReconcileTotal, err = meter.Int64Counter(
		"gitops_agent_reconcile_total",
		metric.WithDescription("Reconciliation ticks completed per app, by outcome"),
	); err != nil {
		return nil, err
	}
	if m.ReconcileDuration, err = meter.Float64Histogram(
		"gitops_agent_reconcile_duration_seconds",
		metric.WithDescription("Wall-clock duration of one app's reconciliation tick"),
	); err != nil {
		return nil, err
	}
	if m.GitOperationsTotal, err = meter.Int64Counter(
		"gitops_agent_git_operations_total",
		metric.WithDescription("Git worktree operations performed, by result"),
	); err != nil {
		return nil, err
	}
	if m.UpdateRequiredTotal, err = meter.Int64Counter(
		"gitops_agent_update_required_total",
		metric.WithDescription("Ticks where update_required evaluated true, by reason"),
	); err != nil {
		return nil, err
	}
	if m.StatusPublishedTotal, err = meter.Int64Counter(
		"gitops_agent_status_published_total",
		metric.WithDescription("Feedback commits pushed to the monitoring branch"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Shutdown is a no-op placeholder mirroring the teacher's
// InitOTLPExporter shutdown func signature; kept for symmetry in
// internal/cli/run.go.
func (m *Metrics) Shutdown(_ context.Context) error { return nil }
