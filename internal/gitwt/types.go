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

// Committer identifies who git operations are attributed to. Per
// spec.md §4.1, the agent always commits as (infra_name, "<>") — there
// is deliberately no per-author identity, since this is a machine
// reconciling declared state, not a human editing it.
type Committer struct {
	Name  string
	Email string
}

// Result is the outcome of UpdateRepo: (ok, status_text, latest_commit)
// in spec.md's vocabulary.
type Result struct {
	OK            bool
	StatusText    string
	LatestCommit  string
}

// Options modulates UpdateRepo's dispatch behavior.
type Options struct {
	// CheckoutHash pins the worktree to an exact revision. Mutually
	// exclusive in practice with CreateBranch, per spec.md §4.1.
	CheckoutHash string
	// CreateBranch allows orphan-branch creation when Branch does not
	// exist anywhere reachable after the fetch.
	CreateBranch bool
}
