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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detecttechnologies/gitops-agent/internal/config"
)

func feedback(status string) AppFeedback {
	return AppFeedback{
		ConfigUpdation:     GitOutcome{UpdationReturnValue: true, GitStatus: status, GitRepoLatestCommit: "abc123"},
		AppUpdation:        NotCheckedGitOutcome(),
		ExtraCommandOutput: NothingRunCommandOutcome(),
	}
}

func TestCanonicalEqual_SameContentDifferentMapOrder(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2}
	b := map[string]interface{}{"a": 2, "b": 1}
	assert.True(t, canonicalEqual(a, b))
}

func TestCanonicalEqual_DifferentValue(t *testing.T) {
	a := map[string]interface{}{"a": 1}
	b := map[string]interface{}{"a": 2}
	assert.False(t, canonicalEqual(a, b))
}

func TestLoadWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infra.toml")
	doc := map[string]interface{}{
		"myapp": feedback("clean").toMap(),
	}
	require.NoError(t, write(path, doc))

	got := load(path)
	sub, ok := got["myapp"].(map[string]interface{})
	require.True(t, ok)
	cfg, ok := sub["config-updation"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "clean", cfg["git-status"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "onlinetexttools.com")
}

func TestLoad_MissingFileIsEmptyDoc(t *testing.T) {
	doc := load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Empty(t, doc)
}

func TestLoad_UnparseableFileIsEmptyDoc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [ valid toml"), 0o644))
	doc := load(path)
	assert.Empty(t, doc)
}

// initBareRemote creates a bare repo at a fresh path, seeded with a
// single commit on go-git's default branch via a throwaway working clone, so UpdateRepo
// has a real remote to clone the monitoring worktree from.
func initBareRemote(t *testing.T) string {
	t.Helper()
	bareDir := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInit(bareDir, true)
	require.NoError(t, err)

	seedDir := filepath.Join(t.TempDir(), "seed")
	repo, err := git.PlainInit(seedDir, false)
	require.NoError(t, err)
	w, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "infra_meta.toml"), []byte("# seed\n"), 0o644))
	_, err = w.Add("infra_meta.toml")
	require.NoError(t, err)
	sig := &object.Signature{Name: "seed", Email: "<>"}
	_, err = w.Commit("seed", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{bareDir}})
	require.NoError(t, err)
	require.NoError(t, repo.Push(&git.PushOptions{RemoteName: "origin"}))

	return bareDir
}

func TestPublish_FirstPublishAlwaysPushesEvenWithNoPriorEntry(t *testing.T) {
	remote := initBareRemote(t)
	paths := config.Paths{StateRoot: t.TempDir()}
	p := NewPublisher(paths, "host-01")

	pushed, err := p.Publish(context.Background(), logr.Discard(), "myapp", remote, "main", nil, feedback("clean"))
	require.NoError(t, err)
	assert.True(t, pushed)
	assert.True(t, p.published["myapp"])

	// The monitoring branch didn't exist on the remote, so Publish must have
	// laid down the orphan commit itself before layering the status commit
	// on top of it. Walk back to the root commit and check its shape
	// directly rather than trusting the push alone.
	repo, err := git.PlainOpen(paths.MonitoringPath("myapp"))
	require.NoError(t, err)
	headRef, err := repo.Head()
	require.NoError(t, err)

	commitIter, err := repo.Log(&git.LogOptions{From: headRef.Hash()})
	require.NoError(t, err)
	var commits []*object.Commit
	require.NoError(t, commitIter.ForEach(func(c *object.Commit) error {
		commits = append(commits, c)
		return nil
	}))
	require.Len(t, commits, 2, "a first publish must produce the orphan commit plus the status commit on top of it")

	root := commits[len(commits)-1]
	require.Empty(t, root.ParentHashes, "the branch's first commit must be a true orphan root")
	assert.Equal(t, "host-01", root.Author.Name)
	assert.Equal(t, "<>", root.Author.Email)
	rootTree, err := root.Tree()
	require.NoError(t, err)
	assert.Equal(t, 0, len(rootTree.Entries), "the orphan root commit must track no files")
}

func TestPublish_SecondIdenticalPublishIsSuppressed(t *testing.T) {
	remote := initBareRemote(t)
	paths := config.Paths{StateRoot: t.TempDir()}
	p := NewPublisher(paths, "host-01")
	ctx := context.Background()
	log := logr.Discard()

	_, err := p.Publish(ctx, log, "myapp", remote, "main", nil, feedback("clean"))
	require.NoError(t, err)

	pushed, err := p.Publish(ctx, log, "myapp", remote, "main", nil, feedback("clean"))
	require.NoError(t, err)
	assert.False(t, pushed)
}

func TestPublish_ChangedStatusPushesAgain(t *testing.T) {
	remote := initBareRemote(t)
	paths := config.Paths{StateRoot: t.TempDir()}
	p := NewPublisher(paths, "host-01")
	ctx := context.Background()
	log := logr.Discard()

	_, err := p.Publish(ctx, log, "myapp", remote, "main", nil, feedback("clean"))
	require.NoError(t, err)

	pushed, err := p.Publish(ctx, log, "myapp", remote, "main", nil, feedback("dirty"))
	require.NoError(t, err)
	assert.True(t, pushed)
}
