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

package gitwt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-logr/logr"
)

// Status returns `git status` verbatim and the single-line log
// '%h - %s (%an, %ad)' of HEAD, exactly as spec.md §4.1 prescribes.
// Both are obtained by shelling to the real git binary (as the Python
// original does via GitPython's repo.git.* calls) since the exact text
// format, including the date format implied by %ad, is part of the
// published contract.
func Status(localPath string) (statusText, latestCommit string) {
	statusText, _ = rawGitStatus(context.Background(), localPath)

	cmd := exec.Command("git", "log", "-1", "--pretty=format:'%h - %s (%an, %ad)'")
	cmd.Dir = localPath
	out, err := cmd.Output()
	if err != nil {
		return statusText, ""
	}
	return statusText, string(out)
}

// HeadHash returns the hash HEAD currently points to, used by the Diff
// Oracle's head_matches check.
func HeadHash(localPath string) (string, error) {
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", err
	}
	return head.Hash().String(), nil
}

// dirOwner returns the UID that owns path. On platforms without a Unix
// Stat_t (none in this agent's deployment target), ownership reclaim is
// simply skipped.
func dirOwner(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return os.Geteuid(), nil
	}
	return int(stat.Uid), nil
}

// Publish implements C1's publish: commit any dirty/untracked state in
// the working tree, then push only if the local branch HEAD differs
// from (or has no) matching remote ref.
func Publish(
	ctx context.Context,
	log logr.Logger,
	localPath, branch string,
	committer Committer,
	auth transport.AuthMethod,
) (bool, error) {
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return false, fmt.Errorf("failed to open repository: %w", err)
	}

	w, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}

	if !status.IsClean() {
		if _, err := w.Add("."); err != nil {
			return false, fmt.Errorf("failed to stage changes: %w", err)
		}
		sig := &object.Signature{Name: committer.Name, Email: committer.Email}
		if _, err := w.Commit("Updated status", &git.CommitOptions{
			Author:    sig,
			Committer: sig,
		}); err != nil {
			return false, fmt.Errorf("failed to commit status: %w", err)
		}
	}

	localRef, err := repo.Head()
	if err != nil {
		return false, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	mismatched := true
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err == nil {
		mismatched = remoteRef.Hash() != localRef.Hash()
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, fmt.Errorf("failed to resolve remote ref: %w", err)
	}

	if !mismatched {
		return false, nil
	}

	log.Info("pushing status branch", "branch", branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)),
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, fmt.Errorf("push failed: %w", err)
	}
	return true, nil
}
