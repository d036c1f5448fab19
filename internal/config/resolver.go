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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrMissingInfraMeta is returned by Resolve when the config repo's
// <infra_name> directory exists but infra_meta.toml does not.
type ErrMissingInfraMeta struct {
	Path string
}

func (e *ErrMissingInfraMeta) Error() string {
	return fmt.Sprintf("infra meta file not found: %s", e.Path)
}

// ParseURL splits a "<url>[@<branch>]" token into its URL and branch,
// protecting a single leading "git@" from the split so SSH-form URLs
// like "git@host:org/repo" are not mistaken for a branch selector.
//
// Grounded on original_source/gitops_agent/agent.py's __parse_config:
// the split happens on the *last* "@" in the string with "git@" removed
// first, and the branch defaults to "main" when no "@" remains.
func ParseURL(raw string) (url, branch string) {
	hasGitPrefix := strings.HasPrefix(raw, "git@")
	tail := raw
	if hasGitPrefix {
		tail = strings.TrimPrefix(raw, "git@")
	}

	if !strings.Contains(tail, "@") {
		return raw, "main"
	}

	idx := strings.LastIndex(tail, "@")
	left, right := tail[:idx], tail[idx+1:]
	if hasGitPrefix {
		left = "git@" + left
	}

	url = left
	branch = right
	if strings.HasSuffix(url, "@"+branch) {
		url = strings.TrimSuffix(url, "@"+branch)
	}
	return url, branch
}

// Resolve loads <config_repo_root>/<infra_name>/infra_meta.toml and
// returns the AppPlan for app_name.
//
// If <infra_name> does not exist under config_repo_root, it returns a
// zero-value AppPlan and a nil error: the config repo has not been
// cloned yet this tick, which is allowed (spec.md §4.2).
func Resolve(appName, infraName, configRepoRoot string) (AppPlan, error) {
	infraDir := filepath.Join(configRepoRoot, infraName)
	if _, err := os.Stat(infraDir); os.IsNotExist(err) {
		return AppPlan{}, nil
	}

	metaPath := filepath.Join(infraDir, "infra_meta.toml")
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return AppPlan{}, &ErrMissingInfraMeta{Path: metaPath}
	}

	var metas map[string]InfraMeta
	if _, err := toml.DecodeFile(metaPath, &metas); err != nil {
		return AppPlan{}, fmt.Errorf("failed to parse %s: %w", metaPath, err)
	}

	meta, ok := metas[appName]
	if !ok {
		return AppPlan{}, nil
	}

	plan := AppPlan{
		CodeURL:             meta.CodeURL,
		CodeCommitHash:      meta.CodeCommitHash,
		CodeLocalPath:       meta.CodeLocalPath,
		PreUpdationCommand:  meta.PreUpdationCommand,
		PostUpdationCommand: meta.PostUpdationCommand,
	}

	srcSet := meta.ConfigSrcPathRelInThisRepo != ""
	dstSet := meta.ConfigDstPathAbs != ""
	if srcSet != dstSet {
		return AppPlan{}, fmt.Errorf(
			"app %s: config_src_path_rel_in_this_repo and config_dst_path_abs must both be set or both be empty",
			appName,
		)
	}
	if srcSet {
		plan.ConfigSrcPathAbs = filepath.Join(infraDir, meta.ConfigSrcPathRelInThisRepo)
		plan.ConfigDstPathAbs = meta.ConfigDstPathAbs
	}

	return plan, nil
}
