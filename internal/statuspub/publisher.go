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

package statuspub

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-logr/logr"

	"github.com/detecttechnologies/gitops-agent/internal/config"
	"github.com/detecttechnologies/gitops-agent/internal/gitwt"
)

const trailingComment = "\n# You can render the escaped text with https://onlinetexttools.com/unescape-text"

// Publisher tracks whether this process has published at least once per
// app, the state the "first publish always heartbeats" carve-out needs
// (spec.md §4.6, §9 — scoped to the Reconciler/Scheduler instance, not
// process-wide, so it is a field here rather than a package global).
type Publisher struct {
	Paths     config.Paths
	InfraName string

	published map[string]bool
}

// NewPublisher constructs a Publisher with its heartbeat tracking reset,
// as happens on every fresh agent process start.
func NewPublisher(paths config.Paths, infraName string) *Publisher {
	return &Publisher{Paths: paths, InfraName: infraName, published: map[string]bool{}}
}

// Publish implements C6 end to end: it ensures the monitoring worktree
// exists (creating its orphan branch through C1 on first use), merges
// current into the persisted feedback document applying the suppression
// and log-preservation rules, and pushes only on an actual change.
func (p *Publisher) Publish(
	ctx context.Context,
	log logr.Logger,
	appName, configURL, configBranch string,
	auth transport.AuthMethod,
	current AppFeedback,
) (bool, error) {
	monitoringBranch := configBranch + "-monitoring"
	monitoringPath := p.Paths.MonitoringPath(appName)
	committer := gitwt.Committer{Name: p.InfraName, Email: "<>"}

	if _, err := gitwt.UpdateRepo(ctx, log, configURL, monitoringBranch, auth, committer, monitoringPath, gitwt.Options{
		CreateBranch: true,
	}); err != nil {
		return false, fmt.Errorf("failed to prepare monitoring worktree: %w", err)
	}

	feedbackPath := fmt.Sprintf("%s/%s.toml", monitoringPath, p.InfraName)
	doc := load(feedbackPath)

	currentMap := current.toMap()
	if previous, ok := doc[appName].(map[string]interface{}); ok {
		if current.ExtraCommandOutput.CommandRunLogs == NothingRunSentinel {
			if prevExtra, ok := commandOutcomeFromMap(previous); ok {
				currentMap["extra-command-output"] = map[string]interface{}{
					"command-return-val": prevExtra.CommandReturnVal,
					"command-run-logs":   prevExtra.CommandRunLogs,
				}
			}
		}

		if p.published[appName] && canonicalEqual(currentMap, previous) {
			return false, nil
		}
	}

	doc[appName] = currentMap
	doc["last-updated"] = time.Now().Format("2006-01-02 15:04:05")

	if err := write(feedbackPath, doc); err != nil {
		return false, fmt.Errorf("failed to write feedback file: %w", err)
	}

	pushed, err := gitwt.Publish(ctx, log, monitoringPath, monitoringBranch, committer, auth)
	if err != nil {
		return false, fmt.Errorf("failed to publish monitoring branch: %w", err)
	}

	p.published[appName] = true
	return pushed, nil
}

// load reads the feedback document, treating a missing file or a parse
// failure identically as an empty document (spec.md §7 FeedbackParseError).
func load(path string) map[string]interface{} {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]interface{}{}
	}
	var doc map[string]interface{}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return map[string]interface{}{}
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return doc
}

func write(path string, doc map[string]interface{}) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return err
	}
	buf.WriteString(trailingComment)
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// canonicalEqual compares two app-feedback maps by their canonical TOML
// serialization (BurntSushi's encoder writes map keys in sorted order,
// giving a stable byte representation). An xxhash pre-check short-circuits
// the common "definitely different" case without a full byte compare;
// on a hash match the full compare still runs before declaring equality,
// so this is a cache, not a behavior change.
func canonicalEqual(a, b map[string]interface{}) bool {
	aBytes := canonicalBytes(a)
	bBytes := canonicalBytes(b)
	if xxhash.Sum64(aBytes) != xxhash.Sum64(bBytes) {
		return false
	}
	return bytes.Equal(aBytes, bBytes)
}

func canonicalBytes(m map[string]interface{}) []byte {
	var buf bytes.Buffer
	_ = toml.NewEncoder(&buf).Encode(m)
	return buf.Bytes()
}
