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

// Package obs provides the agent's ambient observability stack: a
// logr.Logger backed by zap (mirroring the teacher's ctrl.Log/zap setup,
// minus the controller-runtime dependency that has no analogue outside
// Kubernetes) and an OTel-to-Prometheus metrics bridge.
package obs

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the agent's root logger. development enables
// human-friendly console output (mirrors zap.Options{Development: true}
// in the teacher's cmd/main.go); production mode emits JSON.
func NewLogger(development bool) logr.Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	zl, err := cfg.Build()
	if err != nil {
		// Logging construction failure cannot itself be logged; fall
		// back to a no-op logger rather than panic the agent.
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}
