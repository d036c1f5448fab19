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

package reconcile_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/BurntSushi/toml"
	"github.com/go-logr/logr"

	"github.com/detecttechnologies/gitops-agent/internal/config"
	"github.com/detecttechnologies/gitops-agent/internal/reconcile"
	"github.com/detecttechnologies/gitops-agent/internal/statuspub"
)

// These specs walk one declared application through the tick sequence
// spec.md §8 describes (S1-S4 and S6; S5 is covered in statuspub's
// tests), each building on the working tree state
// the previous tick left behind, the same way an operator would observe
// an application across several scheduler intervals.
var _ = Describe("reconciling an application across ticks", Ordered, func() {
	const (
		infraName = "infra01"
		appName   = "web"
	)

	var (
		root          string
		codeBare      string
		configBare    string
		codeLocalPath string
		configDst     string
		hash1         string
		hash2         string
		hash3         string
		ctx           context.Context
		log           logr.Logger
		app           config.AppDeclaration
		rec           *reconcile.Reconciler
	)

	writeInfraMeta := func(preCmd, postCmd, codeHash string) {
		configWork := filepath.Join(root, "config-work")
		metaDir := filepath.Join(configWork, infraName)
		writeFile(filepath.Join(metaDir, "web-config.txt"), "desired content\n")
		// pre/post commands are TOML literal strings (single-quoted), which
		// sidesteps escaping when a command itself needs double quotes.
		metaContent := `[` + appName + `]
code_url = "` + codeBare + `"
code_commit_hash = "` + codeHash + `"
code_local_path = "` + codeLocalPath + `"
pre_updation_command = '` + preCmd + `'
post_updation_command = '` + postCmd + `'
config_src_path_rel_in_this_repo = "web-config.txt"
config_dst_path_abs = "` + configDst + `"
`
		writeFile(filepath.Join(metaDir, "infra_meta.toml"), metaContent)
		runGit(configWork, "add", "-A")
		runGit(configWork, "commit", "-m", "update infra meta")
		runGit(configWork, "push", "origin", "main")
	}

	BeforeAll(func() {
		root = GinkgoT().TempDir()
		ctx = context.Background()
		log = logr.Discard()

		codeBare = filepath.Join(root, "code.git")
		runGit(root, "init", "--bare", codeBare)
		codeWork := filepath.Join(root, "code-work")
		runGit(root, "init", codeWork)
		runGit(codeWork, "checkout", "-b", "main")
		runGit(codeWork, "remote", "add", "origin", codeBare)
		writeFile(filepath.Join(codeWork, "app.txt"), "v1\n")
		runGit(codeWork, "add", "-A")
		runGit(codeWork, "commit", "-m", "v1")
		runGit(codeWork, "push", "origin", "main")
		hash1 = strings.TrimSpace(runGitOutput(codeWork, "rev-parse", "HEAD"))

		writeFile(filepath.Join(codeWork, "app.txt"), "v2\n")
		runGit(codeWork, "add", "-A")
		runGit(codeWork, "commit", "-m", "v2")
		runGit(codeWork, "push", "origin", "main")
		hash2 = strings.TrimSpace(runGitOutput(codeWork, "rev-parse", "HEAD"))

		writeFile(filepath.Join(codeWork, "app.txt"), "v3\n")
		runGit(codeWork, "add", "-A")
		runGit(codeWork, "commit", "-m", "v3")
		runGit(codeWork, "push", "origin", "main")
		hash3 = strings.TrimSpace(runGitOutput(codeWork, "rev-parse", "HEAD"))

		configBare = filepath.Join(root, "config.git")
		runGit(root, "init", "--bare", configBare)
		configWork := filepath.Join(root, "config-work")
		runGit(root, "init", configWork)
		runGit(configWork, "checkout", "-b", "main")
		runGit(configWork, "remote", "add", "origin", configBare)

		codeLocalPath = filepath.Join(root, "agent-state", "code", appName)
		configDst = filepath.Join(root, "agent-state", "config-dst", "web-config.txt")

		writeInfraMeta("", "", hash1)

		paths := config.Paths{StateRoot: filepath.Join(root, "agent-state")}
		app = config.AppDeclaration{Name: appName, ConfigURL: configBare}
		publisher := statuspub.NewPublisher(paths, infraName)
		rec = reconcile.New(paths, infraName, nil, publisher)
	})

	feedbackDoc := func() map[string]interface{} {
		paths := config.Paths{StateRoot: filepath.Join(root, "agent-state")}
		feedbackPath := filepath.Join(paths.MonitoringPath(appName), infraName+".toml")
		var doc map[string]interface{}
		_, err := toml.DecodeFile(feedbackPath, &doc)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return doc
	}

	It("S1: clones the code tree at the declared hash and copies config", func() {
		Expect(rec.ReconcileApp(ctx, log, app)).To(Succeed())

		headNow := strings.TrimSpace(runGitOutput(codeLocalPath, "rev-parse", "HEAD"))
		Expect(headNow).To(Equal(hash1))

		dstContent, err := os.ReadFile(configDst)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(dstContent)).To(Equal("desired content\n"))

		doc := feedbackDoc()
		entry := doc[appName].(map[string]interface{})
		appUpdation := entry["app-updation"].(map[string]interface{})
		Expect(appUpdation["updation-return-value"]).To(Equal(true))
		Expect(appUpdation["git-repo-latest-commit"]).To(ContainSubstring(hash1[:7]))
	})

	It("S2: a no-op tick takes the check_app path and does not republish", func() {
		monitoringPath := config.Paths{StateRoot: filepath.Join(root, "agent-state")}.MonitoringPath(appName)
		before := strings.TrimSpace(runGitOutput(monitoringPath, "rev-parse", "HEAD"))

		Expect(rec.ReconcileApp(ctx, log, app)).To(Succeed())

		after := strings.TrimSpace(runGitOutput(monitoringPath, "rev-parse", "HEAD"))
		Expect(after).To(Equal(before), "an unchanged tick must not push a new monitoring commit")
	})

	It("S3: local config drift triggers a full pull_app that restores the file and runs commands", func() {
		writeInfraMeta(
			"git rev-parse HEAD > marker-pre.txt",
			"git rev-parse HEAD > marker-post.txt",
			hash1,
		)
		Expect(os.WriteFile(configDst, []byte("tampered\n"), 0o644)).To(Succeed())

		Expect(rec.ReconcileApp(ctx, log, app)).To(Succeed())

		dstContent, err := os.ReadFile(configDst)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(dstContent)).To(Equal("desired content\n"))

		Expect(filepath.Join(codeLocalPath, "marker-pre.txt")).To(BeAnExistingFile())
		Expect(filepath.Join(codeLocalPath, "marker-post.txt")).To(BeAnExistingFile())

		doc := feedbackDoc()
		entry := doc[appName].(map[string]interface{})
		cmdOutput := entry["extra-command-output"].(map[string]interface{})
		Expect(cmdOutput["command-run-logs"]).To(ContainSubstring("[pre"))
		Expect(cmdOutput["command-run-logs"]).To(ContainSubstring("[post"))
	})

	It("S4: a declared hash bump runs pre-command before checkout and post-command after", func() {
		writeInfraMeta(
			"git rev-parse HEAD > marker-pre.txt",
			"git rev-parse HEAD > marker-post.txt",
			hash2,
		)
		Expect(os.Remove(filepath.Join(codeLocalPath, "marker-pre.txt"))).To(Succeed())
		Expect(os.Remove(filepath.Join(codeLocalPath, "marker-post.txt"))).To(Succeed())

		Expect(rec.ReconcileApp(ctx, log, app)).To(Succeed())

		headNow := strings.TrimSpace(runGitOutput(codeLocalPath, "rev-parse", "HEAD"))
		Expect(headNow).To(Equal(hash2))

		preCaptured, err := os.ReadFile(filepath.Join(codeLocalPath, "marker-pre.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(string(preCaptured))).To(Equal(hash1), "pre-command must observe HEAD before checkout")

		postCaptured, err := os.ReadFile(filepath.Join(codeLocalPath, "marker-post.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(string(postCaptured))).To(Equal(hash2), "post-command must observe HEAD after checkout")
	})

	It("S6: recovers from a stale rebase left by a force-killed previous run", func() {
		rebaseMergeDir := filepath.Join(codeLocalPath, ".git", "rebase-merge")
		Expect(os.MkdirAll(rebaseMergeDir, 0o755)).To(Succeed())
		writeFile(filepath.Join(rebaseMergeDir, "head-name"), "refs/heads/main\n")
		writeFile(filepath.Join(rebaseMergeDir, "onto"), hash2+"\n")
		writeFile(filepath.Join(rebaseMergeDir, "msgnum"), "1\n")
		writeFile(filepath.Join(rebaseMergeDir, "end"), "1\n")

		writeInfraMeta(
			"git rev-parse HEAD > marker-pre.txt",
			"git rev-parse HEAD > marker-post.txt",
			hash3,
		)

		Expect(rec.ReconcileApp(ctx, log, app)).To(Succeed())

		headNow := strings.TrimSpace(runGitOutput(codeLocalPath, "rev-parse", "HEAD"))
		Expect(headNow).To(Equal(hash3), "the tick must pin to the newly declared hash despite the stale rebase state")
	})
})
