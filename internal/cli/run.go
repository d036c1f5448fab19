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

package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/detecttechnologies/gitops-agent/internal/config"
	"github.com/detecttechnologies/gitops-agent/internal/obs"
	"github.com/detecttechnologies/gitops-agent/internal/reconcile"
	"github.com/detecttechnologies/gitops-agent/internal/scheduler"
	"github.com/detecttechnologies/gitops-agent/internal/statuspub"
)

func runE(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	paths, err := config.LoadPaths(ctx)
	if err != nil {
		return fmt.Errorf("unable to resolve path configuration: %w", err)
	}

	configureOnly, _ := cmd.Flags().GetBool("configure")
	if configureOnly {
		return scheduler.Configure(paths.HostConfigPath())
	}

	dev, _ := cmd.Flags().GetBool("dev")
	log := obs.NewLogger(dev)

	hostConfig, err := config.LoadHostConfig(paths.HostConfigPath())
	if err != nil {
		// HostConfigUnavailable (spec.md §7): fatal at startup.
		return fmt.Errorf("unable to load host config: %w", err)
	}

	metrics, err := obs.NewMetrics()
	if err != nil {
		return fmt.Errorf("unable to initialize metrics: %w", err)
	}
	defer func() {
		if err := metrics.Shutdown(ctx); err != nil {
			log.Error(err, "failed to shut down metrics")
		}
	}()

	metricsAddr := os.Getenv("GITOPS_AGENT_METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	startMetricsServer(log, metricsAddr, metrics)

	publisher := statuspub.NewPublisher(paths, hostConfig.InfraName)
	reconciler := reconcile.New(paths, hostConfig.InfraName, metrics, publisher)
	sched := scheduler.New(reconciler, log)

	log.Info("starting reconciliation loop", "infra", hostConfig.InfraName,
		"interval_seconds", hostConfig.Interval, "apps", len(hostConfig.OrderedApps()))
	return sched.Run(ctx, hostConfig)
}

func startMetricsServer(log logr.Logger, addr string, metrics *obs.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("starting metrics server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server stopped: %v\n", err)
		}
	}()
}
