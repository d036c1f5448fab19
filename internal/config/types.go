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

// Package config resolves declared state: the host-level config.toml that
// lists applications, and the per-host infra_meta.toml inside a cloned
// config repository that pins each application's desired revision.
package config

// AppDeclaration is one entry of the host config's [applications.<name>]
// table.
type AppDeclaration struct {
	Name      string `toml:"-"`
	ConfigURL string `toml:"config_url"`
}

// HostConfig is the agent's own configuration, read from
// <config-dir>/config.toml.
type HostConfig struct {
	InfraName string `toml:"infra_name"`
	Interval  int    `toml:"interval"`

	// Applications does not preserve TOML table order: BurntSushi/toml
	// decodes [applications.*] into a map, which Go does not order, so the
	// loader additionally walks the decode MetaData to recover
	// declaration order into AppOrder.
	Applications map[string]AppDeclaration `toml:"applications"`
	AppOrder     []string                  `toml:"-"`
}

// DefaultInterval is used when a host config omits "interval".
const DefaultInterval = 300

// OrderedApps returns applications in declaration order.
func (h *HostConfig) OrderedApps() []AppDeclaration {
	apps := make([]AppDeclaration, 0, len(h.AppOrder))
	for _, name := range h.AppOrder {
		decl := h.Applications[name]
		decl.Name = name
		apps = append(apps, decl)
	}
	return apps
}

// InfraMeta is the raw per-app sub-table of <config-repo>/<infra_name>/infra_meta.toml.
type InfraMeta struct {
	CodeURL                    string `toml:"code_url"`
	CodeCommitHash             string `toml:"code_commit_hash"`
	CodeLocalPath              string `toml:"code_local_path"`
	PreUpdationCommand         string `toml:"pre_updation_command"`
	PostUpdationCommand        string `toml:"post_updation_command"`
	ConfigSrcPathRelInThisRepo string `toml:"config_src_path_rel_in_this_repo"`
	ConfigDstPathAbs           string `toml:"config_dst_path_abs"`
}

// AppPlan is the resolved, typed desired-state record derived from an
// InfraMeta entry. ConfigSrcPathAbs and ConfigDstPathAbs are either both
// empty or both set — enforced at resolution time in resolver.go.
type AppPlan struct {
	CodeURL              string
	CodeCommitHash       string
	CodeLocalPath        string
	PreUpdationCommand   string
	PostUpdationCommand  string
	ConfigSrcPathAbs     string
	ConfigDstPathAbs     string
}

// Keys returns the set of non-empty declared fields, used by the Diff
// Oracle's plan_changed check (spec: key-set comparison, not value
// comparison — this is a deliberate asymmetry, see DESIGN.md).
func (p AppPlan) Keys() map[string]struct{} {
	keys := map[string]struct{}{}
	add := func(name, val string) {
		if val != "" {
			keys[name] = struct{}{}
		}
	}
	add("code_url", p.CodeURL)
	add("code_commit_hash", p.CodeCommitHash)
	add("code_local_path", p.CodeLocalPath)
	add("pre_updation_command", p.PreUpdationCommand)
	add("post_updation_command", p.PostUpdationCommand)
	add("config_src_path_abs", p.ConfigSrcPathAbs)
	add("config_dst_path_abs", p.ConfigDstPathAbs)
	return keys
}

// IsZero reports whether the plan is the empty "not yet cloned" result.
func (p AppPlan) IsZero() bool {
	return p.CodeURL == "" && p.CodeLocalPath == ""
}
