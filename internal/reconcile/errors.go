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

package reconcile

import "fmt"

// ErrFatalAppTick wraps a failure that aborts the remainder of one app's
// tick without taking down the agent process: MissingInfraMeta (or an
// unparseable infra_meta.toml), a config-repo auth failure, or a failed
// status publish, including CloneFailed/FetchFailed/OwnershipReclaimFailed
// on the monitoring worktree. GitOperationFailed and CommandFailed are
// never wrapped this way, nor are clone/fetch failures of the config and
// code repos — they are captured into the status record and the tick
// continues.
type ErrFatalAppTick struct {
	App string
	Err error
}

func (e *ErrFatalAppTick) Error() string {
	return fmt.Sprintf("app %s: %v", e.App, e.Err)
}

func (e *ErrFatalAppTick) Unwrap() error { return e.Err }
