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

// Package scheduler is the Scheduler (C7): the single process-wide loop
// that iterates declared applications in order and drives the
// Reconciler, plus the one-shot configuration mode.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/detecttechnologies/gitops-agent/internal/config"
	"github.com/detecttechnologies/gitops-agent/internal/reconcile"
)

// DefaultEditor is used when $EDITOR is unset (spec.md §6).
const DefaultEditor = "/usr/bin/nano"

// Scheduler drives one host's reconciliation loop.
type Scheduler struct {
	Reconciler *reconcile.Reconciler
	Log        logr.Logger
}

// New constructs a Scheduler.
func New(reconciler *reconcile.Reconciler, log logr.Logger) *Scheduler {
	return &Scheduler{Reconciler: reconciler, Log: log}
}

// Run iterates cfg.OrderedApps() forever, sleeping cfg.Interval seconds
// between ticks, until ctx is cancelled or the process receives
// SIGINT/SIGTERM. A reconciliation tick runs immediately on entry, then
// on every subsequent tick of the interval.
func (s *Scheduler) Run(ctx context.Context, cfg *config.HostConfig) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := time.Duration(cfg.Interval) * time.Second
	s.tick(ctx, cfg)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Log.Info("reconciliation loop stopping", "reason", ctx.Err())
			return nil
		case sig := <-sigCh:
			s.Log.Info("received signal, shutting down", "signal", sig.String())
			return nil
		case <-ticker.C:
			s.tick(ctx, cfg)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, cfg *config.HostConfig) {
	for _, app := range cfg.OrderedApps() {
		if err := s.Reconciler.ReconcileApp(ctx, s.Log, app); err != nil {
			s.Log.Error(err, "app tick aborted", "app", app.Name)
		}
	}
}

// Configure implements the one-shot `--configure` mode: open hostConfigPath
// in $EDITOR (default DefaultEditor) and return once the editor exits.
func Configure(hostConfigPath string) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = DefaultEditor
	}

	cmd := exec.Command(editor, hostConfigPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s exited with error: %w", editor, err)
	}
	return nil
}
