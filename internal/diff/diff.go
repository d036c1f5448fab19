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

// Package diff is the Diff Oracle (C4): pure, side-effect-free
// comparisons between declared and observed state.
package diff

import (
	"os"

	"github.com/detecttechnologies/gitops-agent/internal/config"
	"github.com/detecttechnologies/gitops-agent/internal/gitwt"
)

// FilesEquivalent reports whether a and b are equal once every space and
// newline is stripped from each, tolerating reformatting of the declared
// config file. A nil (empty-string) path on either side is trivially
// satisfied: "no file declared" always compares equal.
func FilesEquivalent(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	aBytes, err := os.ReadFile(a)
	if err != nil {
		return false
	}
	bBytes, err := os.ReadFile(b)
	if err != nil {
		return false
	}
	return stripWhitespace(aBytes) == stripWhitespace(bBytes)
}

func stripWhitespace(b []byte) string {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == ' ' || c == '\n' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// HeadMatches reports whether localPath's HEAD commit equals hash.
func HeadMatches(localPath, hash string) bool {
	head, err := gitwt.HeadHash(localPath)
	if err != nil {
		return false
	}
	return head == hash
}

// PlanChanged is true iff the set of keys present in prev is not a
// subset of the set of keys present in next — i.e. the declared schema
// lost a field. Schema widening does not count as a change. This is a
// deliberate asymmetry (spec.md §9 Open Question): value changes are
// caught elsewhere, by the hash/file checks, not here.
func PlanChanged(prev, next config.AppPlan) bool {
	prevKeys := prev.Keys()
	nextKeys := next.Keys()
	for k := range prevKeys {
		if _, ok := nextKeys[k]; !ok {
			return true
		}
	}
	return false
}
