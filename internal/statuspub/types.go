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

// Package statuspub is the Status Publisher (C6): maintains the
// <infra>.toml feedback file on an orphan monitoring branch, committing
// and pushing only when the content actually changed.
package statuspub

// GitOutcome mirrors spec.md §3's git sub-record, used for both
// config-updation and app-updation.
type GitOutcome struct {
	UpdationReturnValue bool
	GitStatus           string
	GitRepoLatestCommit string
}

// NotCheckedGitOutcome is the sentinel recorded when a repo was not
// touched this tick (spec.md §9 string-shaped sentinels).
func NotCheckedGitOutcome() GitOutcome {
	return GitOutcome{UpdationReturnValue: true, GitStatus: "Not checked for updates", GitRepoLatestCommit: "NA"}
}

// CommandOutcome mirrors spec.md §3's extra-command-output sub-record.
type CommandOutcome struct {
	CommandReturnVal string
	CommandRunLogs   string
}

// NothingRunSentinel is the sentinel recorded when no pre/post command
// was executed this tick.
const NothingRunSentinel = "Nothing was run"

func NothingRunCommandOutcome() CommandOutcome {
	return CommandOutcome{CommandReturnVal: "true", CommandRunLogs: NothingRunSentinel}
}

// AppFeedback is one app's entry in the published document.
type AppFeedback struct {
	ConfigUpdation     GitOutcome
	AppUpdation        GitOutcome
	ExtraCommandOutput CommandOutcome
}

func (f AppFeedback) toMap() map[string]interface{} {
	return map[string]interface{}{
		"config-updation": gitOutcomeMap(f.ConfigUpdation),
		"app-updation":    gitOutcomeMap(f.AppUpdation),
		"extra-command-output": map[string]interface{}{
			"command-return-val": f.ExtraCommandOutput.CommandReturnVal,
			"command-run-logs":   f.ExtraCommandOutput.CommandRunLogs,
		},
	}
}

func gitOutcomeMap(g GitOutcome) map[string]interface{} {
	return map[string]interface{}{
		"updation-return-value":  g.UpdationReturnValue,
		"git-status":             g.GitStatus,
		"git-repo-latest-commit": g.GitRepoLatestCommit,
	}
}

func commandOutcomeFromMap(m map[string]interface{}) (CommandOutcome, bool) {
	raw, ok := m["extra-command-output"]
	if !ok {
		return CommandOutcome{}, false
	}
	sub, ok := raw.(map[string]interface{})
	if !ok {
		return CommandOutcome{}, false
	}
	ret, _ := sub["command-return-val"].(string)
	logs, _ := sub["command-run-logs"].(string)
	return CommandOutcome{CommandReturnVal: ret, CommandRunLogs: logs}, true
}
