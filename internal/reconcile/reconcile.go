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

// Package reconcile is the Reconciler (C5): the per-app state machine
// that drives pull_config, update_required, pull_app/check_app, and
// push_status, wiring C1–C4 and C6 together for one application.
package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/detecttechnologies/gitops-agent/internal/config"
	"github.com/detecttechnologies/gitops-agent/internal/diff"
	"github.com/detecttechnologies/gitops-agent/internal/gitwt"
	"github.com/detecttechnologies/gitops-agent/internal/obs"
	"github.com/detecttechnologies/gitops-agent/internal/runner"
	"github.com/detecttechnologies/gitops-agent/internal/statuspub"
)

// Reconciler holds the per-host context shared across every app's tick.
type Reconciler struct {
	Paths     config.Paths
	InfraName string
	Metrics   *obs.Metrics
	Publisher *statuspub.Publisher
}

// New constructs a Reconciler. publisher must be shared across ticks of
// the same process so its first-publish heartbeat bookkeeping (spec.md
// §9) is scoped correctly.
func New(paths config.Paths, infraName string, metrics *obs.Metrics, publisher *statuspub.Publisher) *Reconciler {
	return &Reconciler{Paths: paths, InfraName: infraName, Metrics: metrics, Publisher: publisher}
}

// ReconcileApp runs one full tick of the state machine in §4.5 for a
// single declared application. A returned error means this app's tick
// was aborted: infra_meta.toml is missing or unparseable, the config
// repo's auth could not be resolved, or publishing status failed (which
// includes clone/fetch/ownership failures of the monitoring worktree).
// A failed pull of the config repo falls back to check_app, and a failed
// update of the code repo is recorded in the published status; neither is
// returned. The caller is expected to log a returned error and move on to
// the next app; the process itself never exits over it.
func (r *Reconciler) ReconcileApp(ctx context.Context, log logr.Logger, app config.AppDeclaration) error {
	start := time.Now()
	log = log.WithValues("app", app.Name)

	configURL, configBranch := config.ParseURL(app.ConfigURL)
	configPath := r.Paths.AppConfigPath(app.Name)
	committer := gitwt.Committer{Name: r.InfraName, Email: "<>"}

	auth, err := gitwt.ResolveAuth(configURL)
	if err != nil {
		return &ErrFatalAppTick{App: app.Name, Err: fmt.Errorf("resolving config repo auth: %w", err)}
	}

	prevPlan, err := config.Resolve(app.Name, r.InfraName, configPath)
	if err != nil {
		r.recordTick(ctx, app.Name, "missing_infra_meta", start)
		return &ErrFatalAppTick{App: app.Name, Err: err}
	}

	cfgResult, cfgErr := gitwt.UpdateRepo(ctx, log, configURL, configBranch, auth, committer, configPath, gitwt.Options{})
	cfgOutcome := gitOutcomeFrom(cfgResult)
	r.recordGitOp(ctx, "config", cfgErr == nil && cfgResult.OK)

	if cfgErr != nil {
		log.Info("pull_config failed, falling back to check_app", "error", cfgErr.Error())
		appOutcome, cmdOutcome := r.checkApp(prevPlan)
		if err := r.publish(ctx, log, app.Name, configURL, configBranch, auth, cfgOutcome, appOutcome, cmdOutcome); err != nil {
			return &ErrFatalAppTick{App: app.Name, Err: err}
		}
		r.recordTick(ctx, app.Name, "pull_config_failed", start)
		return nil
	}

	nextPlan, err := config.Resolve(app.Name, r.InfraName, configPath)
	if err != nil {
		r.recordTick(ctx, app.Name, "missing_infra_meta", start)
		return &ErrFatalAppTick{App: app.Name, Err: err}
	}

	required, reason := updateRequired(prevPlan, nextPlan)
	if required {
		r.recordUpdateRequired(ctx, reason)
	}

	var appOutcome statuspub.GitOutcome
	var cmdOutcome statuspub.CommandOutcome
	if required {
		appOutcome, cmdOutcome = r.pullApp(ctx, log, nextPlan)
	} else {
		appOutcome, cmdOutcome = r.checkApp(nextPlan)
	}

	if err := r.publish(ctx, log, app.Name, configURL, configBranch, auth, cfgOutcome, appOutcome, cmdOutcome); err != nil {
		return &ErrFatalAppTick{App: app.Name, Err: err}
	}

	r.recordTick(ctx, app.Name, "ok", start)
	return nil
}

func (r *Reconciler) publish(
	ctx context.Context,
	log logr.Logger,
	appName, configURL, configBranch string,
	auth transport.AuthMethod,
	cfgOutcome, appOutcome statuspub.GitOutcome,
	cmdOutcome statuspub.CommandOutcome,
) error {
	feedback := statuspub.AppFeedback{
		ConfigUpdation:     cfgOutcome,
		AppUpdation:        appOutcome,
		ExtraCommandOutput: cmdOutcome,
	}
	pushed, err := r.Publisher.Publish(ctx, log, appName, configURL, configBranch, auth, feedback)
	if err != nil {
		return err
	}
	if pushed && r.Metrics != nil {
		r.Metrics.StatusPublishedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("app", appName)))
	}
	return nil
}

// updateRequired is the OR of the four conditions in spec.md §4.5,
// returning the first reason matched for metrics labeling.
func updateRequired(prev, next config.AppPlan) (bool, string) {
	if diff.PlanChanged(prev, next) {
		return true, "plan_changed"
	}
	if !dirExists(next.CodeLocalPath) {
		return true, "code_tree_absent"
	}
	if !diff.HeadMatches(next.CodeLocalPath, next.CodeCommitHash) {
		return true, "head_mismatch"
	}
	if !diff.FilesEquivalent(next.ConfigDstPathAbs, next.ConfigSrcPathAbs) {
		return true, "config_drift"
	}
	return false, ""
}

// pullApp implements the pre → git → copy → post sequence.
func (r *Reconciler) pullApp(ctx context.Context, log logr.Logger, plan config.AppPlan) (statuspub.GitOutcome, statuspub.CommandOutcome) {
	exitCodes := map[string]string{}
	logs := map[string]string{}

	codeTreeExists := dirExists(plan.CodeLocalPath)
	if plan.PreUpdationCommand != "" && codeTreeExists {
		code, out := runner.Run(plan.PreUpdationCommand, plan.CodeLocalPath)
		exitCodes["pre"] = strconv.Itoa(code)
		logs["pre"] = out
	}

	auth, err := gitwt.ResolveAuth(plan.CodeURL)
	if err != nil {
		log.Info("failed to resolve code repo auth", "error", err.Error())
	}
	committer := gitwt.Committer{Name: r.InfraName, Email: "<>"}
	result, err := gitwt.UpdateRepo(ctx, log, plan.CodeURL, "", auth, committer, plan.CodeLocalPath, gitwt.Options{
		CheckoutHash: plan.CodeCommitHash,
	})
	r.recordGitOp(ctx, "code", err == nil && result.OK)
	if err != nil {
		log.Info("pull_app git update failed", "error", err.Error())
		result = gitwt.Result{OK: false}
	}

	if plan.ConfigSrcPathAbs != "" && plan.ConfigDstPathAbs != "" {
		if err := copyWithMetadata(plan.ConfigSrcPathAbs, plan.ConfigDstPathAbs); err != nil {
			log.Info("config file copy failed", "error", err.Error())
		}
	}

	if plan.PostUpdationCommand != "" {
		code, out := runner.Run(plan.PostUpdationCommand, plan.CodeLocalPath)
		exitCodes["post"] = strconv.Itoa(code)
		logs["post"] = out
	}

	return gitOutcomeFrom(result), commandOutcomeFrom(exitCodes, logs)
}

// checkApp implements the status-only path: no commands run.
func (r *Reconciler) checkApp(plan config.AppPlan) (statuspub.GitOutcome, statuspub.CommandOutcome) {
	if plan.CodeLocalPath == "" {
		return statuspub.NotCheckedGitOutcome(), statuspub.NothingRunCommandOutcome()
	}
	statusText, latestCommit := gitwt.Status(plan.CodeLocalPath)
	return statuspub.GitOutcome{
		UpdationReturnValue: true,
		GitStatus:           statusText,
		GitRepoLatestCommit: latestCommit,
	}, statuspub.NothingRunCommandOutcome()
}

func gitOutcomeFrom(r gitwt.Result) statuspub.GitOutcome {
	return statuspub.GitOutcome{
		UpdationReturnValue: r.OK,
		GitStatus:           r.StatusText,
		GitRepoLatestCommit: r.LatestCommit,
	}
}

// commandOutcomeFrom folds the {"pre","post"} exit-code/log maps spec.md
// §4.5 describes into the single return-value/log strings §3's
// published schema carries.
func commandOutcomeFrom(exitCodes, logs map[string]string) statuspub.CommandOutcome {
	if len(exitCodes) == 0 {
		return statuspub.NothingRunCommandOutcome()
	}

	allZero := true
	var logParts []string
	for _, phase := range []string{"pre", "post"} {
		code, ran := exitCodes[phase]
		if !ran {
			continue
		}
		if code != "0" {
			allZero = false
		}
		logParts = append(logParts, fmt.Sprintf("[%s exit=%s]\n%s", phase, code, logs[phase]))
	}

	return statuspub.CommandOutcome{
		CommandReturnVal: strconv.FormatBool(allZero),
		CommandRunLogs:   strings.Join(logParts, "\n"),
	}
}

func (r *Reconciler) recordTick(ctx context.Context, appName, outcome string, start time.Time) {
	if r.Metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("app", appName), attribute.String("outcome", outcome))
	r.Metrics.ReconcileTotal.Add(ctx, 1, attrs)
	r.Metrics.ReconcileDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (r *Reconciler) recordGitOp(ctx context.Context, tree string, ok bool) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.GitOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tree", tree),
		attribute.Bool("ok", ok),
	))
}

func (r *Reconciler) recordUpdateRequired(ctx context.Context, reason string) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.UpdateRequiredTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
