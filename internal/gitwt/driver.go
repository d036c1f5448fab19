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

// Package gitwt is the Git Worktree Driver (C1): idempotent
// clone/fetch/reset/checkout/orphan-branch/commit/push primitives, with
// recovery for stale rebases and dubious ownership.
//
// Grounded on the teacher's internal/git/{git,status,bootstrapped_repo_template}.go
// (go-git/v5 porcelain for clone/fetch/reset/checkout/commit/push) plus
// original_source/gitops_agent/git_operations.py for the two behaviors
// go-git's library has no concept of: rebase-state detection and
// ownership reclaim, both of which the original shells the real git
// binary for (GitPython's repo.git.* calls do the same).
package gitwt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-logr/logr"
)

// UpdateRepo is the driver's main entry point. See spec.md §4.1 for the
// full preprocessing/dispatch contract; behavior here follows it exactly.
func UpdateRepo(
	ctx context.Context,
	log logr.Logger,
	url, branch string,
	auth transport.AuthMethod,
	committer Committer,
	localPath string,
	opts Options,
) (Result, error) {
	url = stripBranchSuffix(url, branch)

	repo, err := openOrClone(ctx, log, url, localPath, auth)
	if err != nil {
		return Result{}, fmt.Errorf("clone failed: %w", err)
	}

	if !repo.isFreshClone {
		if err := reclaimOwnership(localPath, os.Geteuid()); err != nil {
			return Result{}, fmt.Errorf("ownership reclaim failed: %w", err)
		}
		if err := abortStaleRebase(ctx, log, localPath); err != nil {
			log.Info("failed to abort stale rebase, continuing", "error", err.Error())
		}
	}

	if err := fetchAllPrune(ctx, repo.repo, auth); err != nil {
		return Result{}, fmt.Errorf("fetch failed: %w", err)
	}
	if err := resetHardToHead(repo.repo); err != nil {
		return Result{}, fmt.Errorf("reset to HEAD failed: %w", err)
	}

	ok := true
	if err := dispatch(ctx, log, repo.repo, branch, committer, auth, opts); err != nil {
		log.Info("git dispatch operation failed", "error", err.Error())
		ok = false
	}

	statusText, latestCommit := Status(localPath)
	return Result{OK: ok, StatusText: statusText, LatestCommit: latestCommit}, nil
}

// stripBranchSuffix removes a literal "@<branch>" trailing the URL, the
// shorthand carried in host config (spec.md §4.1 preprocessing step).
func stripBranchSuffix(url, branch string) string {
	if branch == "" {
		return url
	}
	suffix := "@" + branch
	if strings.HasSuffix(url, suffix) {
		return strings.TrimSuffix(url, suffix)
	}
	return url
}

type openRepo struct {
	repo         *git.Repository
	isFreshClone bool
}

func openOrClone(ctx context.Context, log logr.Logger, url, localPath string, auth transport.AuthMethod) (openRepo, error) {
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		log.Info("cloning repository", "url", url, "path", localPath)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
			return openRepo{}, fmt.Errorf("failed to create parent directory: %w", err)
		}
		repo, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:  url,
			Auth: auth,
		})
		if err != nil {
			return openRepo{}, err
		}
		return openRepo{repo: repo, isFreshClone: true}, nil
	}

	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return openRepo{}, fmt.Errorf("failed to open existing repository: %w", err)
	}
	return openRepo{repo: repo, isFreshClone: false}, nil
}

// fetchAllPrune mirrors `git fetch --all --prune`: a single "origin"
// remote is assumed (the driver only ever manages one remote per
// working tree), fetching and pruning every branch.
func fetchAllPrune(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Force:      true,
		Prune:      true,
		RefSpecs: []config.RefSpec{
			"+refs/heads/*:refs/remotes/origin/*",
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

// resetHardToHead mirrors `git reset --hard HEAD`, dropping any local
// uncommitted mutation (including a dirty index left by a previous run).
func resetHardToHead(repo *git.Repository) error {
	head, err := repo.Head()
	if err != nil {
		// An unborn HEAD (no commits yet, e.g. mid-orphan-creation from a
		// prior crashed run) has nothing to reset to; that's fine.
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil
		}
		return err
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	return w.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.HardReset})
}

func dispatch(
	ctx context.Context,
	log logr.Logger,
	repo *git.Repository,
	branch string,
	committer Committer,
	auth transport.AuthMethod,
	opts Options,
) error {
	if opts.CreateBranch && branch != "" && opts.CheckoutHash == "" {
		exists, err := branchKnownAnywhere(repo, branch)
		if err != nil {
			return err
		}
		if !exists {
			return createOrphanBranch(repo, branch, committer)
		}
	}

	return pinToTarget(ctx, log, repo, branch, opts.CheckoutHash)
}

// branchKnownAnywhere reports whether branch resolves either as a local
// branch ref or as a remote-tracking ref (i.e. it exists on origin after
// the fetch that already ran).
func branchKnownAnywhere(repo *git.Repository, branch string) (bool, error) {
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewRemoteReferenceName("origin", branch),
	} {
		_, err := repo.Reference(name, false)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, err
		}
	}
	return false, nil
}

// createOrphanBranch implements `git checkout --orphan <branch>`
// followed by `git rm -rf .` (if anything was tracked) and an empty
// initial commit, matching spec.md §4.1's orphan-creation path.
func createOrphanBranch(repo *git.Repository, branch string, committer Committer) error {
	branchRef := plumbing.NewBranchReferenceName(branch)

	head := plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)
	if err := repo.Storer.SetReference(head); err != nil {
		return fmt.Errorf("failed to point HEAD at orphan branch: %w", err)
	}
	if err := repo.Storer.RemoveReference(branchRef); err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("failed to clear existing branch reference: %w", err)
	}

	if err := clearIndex(repo); err != nil {
		return err
	}
	if err := cleanWorktree(repo); err != nil {
		return err
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	sig := &object.Signature{Name: committer.Name, Email: committer.Email}
	_, err = w.Commit("Initial commit", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            sig,
		Committer:         sig,
	})
	if err != nil {
		return fmt.Errorf("failed to create initial orphan commit: %w", err)
	}
	return nil
}

func clearIndex(repo *git.Repository) error {
	idx, err := repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	idx.Entries = nil
	if err := repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

func cleanWorktree(repo *git.Repository) error {
	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := w.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("failed to clean worktree: %w", err)
	}
	return nil
}

// pinToTarget implements the pin-to-hash dispatch path: resolve the
// effective target (checkoutHash, or origin/<branch> when absent), hard
// reset to it, then checkout so HEAD attaches to a local branch rather
// than staying detached whenever the target came from a branch name.
func pinToTarget(ctx context.Context, log logr.Logger, repo *git.Repository, branch, checkoutHash string) error {
	var targetHash plumbing.Hash
	var attachBranch string // non-empty when checkout should attach HEAD to this local branch

	if checkoutHash != "" {
		hash, err := resolveRevision(repo, checkoutHash)
		if err != nil {
			return fmt.Errorf("failed to resolve revision %s: %w", checkoutHash, err)
		}
		targetHash = hash
	} else {
		ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
		if err != nil {
			return fmt.Errorf("failed to resolve origin/%s: %w", branch, err)
		}
		targetHash = ref.Hash()
		attachBranch = branch
	}

	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := w.Reset(&git.ResetOptions{Commit: targetHash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset --hard failed: %w", err)
	}

	if attachBranch == "" {
		log.Info("checking out detached revision", "hash", targetHash.String())
		return w.Checkout(&git.CheckoutOptions{Hash: targetHash, Force: true})
	}

	branchRef := plumbing.NewBranchReferenceName(attachBranch)
	err = w.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		log.Info("creating local branch to track origin", "branch", attachBranch)
		err = w.Checkout(&git.CheckoutOptions{
			Hash:   targetHash,
			Branch: branchRef,
			Create: true,
			Force:  true,
		})
	}
	_ = ctx
	return err
}

func resolveRevision(repo *git.Repository, rev string) (plumbing.Hash, error) {
	h, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return *h, nil
}

// reclaimOwnership recursively changes path's owner to euid when the
// directory is currently owned by someone else, preventing git's
// "dubious ownership" refusal (spec.md §4.1, §8 invariant 5).
func reclaimOwnership(path string, euid int) error {
	owner, err := dirOwner(path)
	if err != nil || owner == euid {
		return err
	}
	return filepath.Walk(path, func(p string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Chown(p, euid, -1)
	})
}

// abortStaleRebase runs `git rebase --abort` when `git status` mentions
// a rebase in progress. The "rebas" substring check is deliberate (spec.md
// §9): it matches both "rebase" and "rebasing" in git's status banner. A
// stricter check against .git/rebase-merge is an acceptable hardening an
// implementer may add later.
func abortStaleRebase(ctx context.Context, log logr.Logger, localPath string) error {
	statusText, err := rawGitStatus(ctx, localPath)
	if err != nil {
		return err
	}
	if !strings.Contains(statusText, "rebas") {
		return nil
	}
	log.Info("detected stale rebase, aborting", "path", localPath)
	cmd := exec.CommandContext(ctx, "git", "rebase", "--abort")
	cmd.Dir = localPath
	return cmd.Run()
}

func rawGitStatus(ctx context.Context, localPath string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "status")
	cmd.Dir = localPath
	out, err := cmd.CombinedOutput()
	return string(out), err
}
