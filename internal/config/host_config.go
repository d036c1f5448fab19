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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

// Paths holds the filesystem layout from spec.md §6. Defaults match the
// fixed layout; GITOPS_AGENT_CONFIG_DIR/GITOPS_AGENT_STATE_ROOT let an
// operator (or a test) relocate both trees without touching /etc or /opt.
type Paths struct {
	ConfigDir string `env:"GITOPS_AGENT_CONFIG_DIR,default=/etc/gitops-agent"`
	StateRoot string `env:"GITOPS_AGENT_STATE_ROOT,default=/opt/gitops-agent"`
}

// LoadPaths resolves Paths from the environment.
func LoadPaths(ctx context.Context) (Paths, error) {
	var p Paths
	if err := envconfig.Process(ctx, &p); err != nil {
		return Paths{}, fmt.Errorf("failed to load path configuration: %w", err)
	}
	return p, nil
}

// HostConfigPath is the fixed file name within ConfigDir.
func (p Paths) HostConfigPath() string {
	return filepath.Join(p.ConfigDir, "config.toml")
}

// AppConfigPath is the config working tree for an app.
func (p Paths) AppConfigPath(appName string) string {
	return filepath.Join(p.StateRoot, "app-configs", appName)
}

// MonitoringPath is the monitoring working tree for an app.
func (p Paths) MonitoringPath(appName string) string {
	return filepath.Join(p.StateRoot, "app-configs", appName+"-monitoring")
}

// ErrHostConfigUnavailable reports a missing or unparseable host config.
type ErrHostConfigUnavailable struct {
	Path string
	Err  error
}

func (e *ErrHostConfigUnavailable) Error() string {
	return fmt.Sprintf("host config unavailable at %s: %v", e.Path, e.Err)
}

func (e *ErrHostConfigUnavailable) Unwrap() error { return e.Err }

// LoadHostConfig reads and parses <config-dir>/config.toml, recovering
// declaration order from the decode MetaData since BurntSushi/toml
// decodes [applications.*] into an unordered Go map.
func LoadHostConfig(path string) (*HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ErrHostConfigUnavailable{Path: path, Err: err}
	}

	var cfg HostConfig
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, &ErrHostConfigUnavailable{Path: path, Err: err}
	}

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Applications == nil {
		cfg.Applications = map[string]AppDeclaration{}
	}

	cfg.AppOrder = appDeclarationOrder(meta, cfg.Applications)
	return &cfg, nil
}

// appDeclarationOrder walks the MetaData's key list, which BurntSushi/toml
// records in the order keys were encountered in the document, and filters
// it down to the direct children of the "applications" table.
func appDeclarationOrder(meta toml.MetaData, apps map[string]AppDeclaration) []string {
	seen := map[string]bool{}
	order := make([]string, 0, len(apps))
	for _, key := range meta.Keys() {
		if len(key) != 2 || key[0] != "applications" {
			continue
		}
		name := key[1]
		if _, ok := apps[name]; !ok || seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	// Any app present in the map but not observed as a distinct key path
	// (shouldn't normally happen) is appended so nothing is silently
	// dropped from the schedule.
	for name := range apps {
		if !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	return order
}
