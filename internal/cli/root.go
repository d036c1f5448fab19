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

// Package cli wires the agent's command surface together: flag/env
// parsing, logger and metrics construction, and dispatch into the
// reconciliation loop or the one-shot configuration mode.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "gitops-agent",
	Short: "Reconciles this host's applications against declared config and code repositories",
	Long: `gitops-agent is a long-running reconciliation loop: for every application
declared in the host config it pulls the config repository, resolves the
declared code revision, pins the code repository to it, copies the
declared config file into the code tree, runs optional pre/post commands,
and publishes structured status back to a monitoring branch.`,
	RunE: runE,
}

func init() {
	rootCmd.Flags().Bool("configure", false, "Open the host config file in $EDITOR and exit")
	rootCmd.Flags().Bool("dev", false, "Enable human-readable development logging")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("gitops-agent %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
