/*
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

// Package config carries the engine's runtime Settings, generalizing the
// teacher's pkg/apis/config/settings: environment-driven defaults validated
// with go-playground/validator and threaded through a context.Context rather
// than a Kubernetes ConfigMap.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Settings are the process-wide knobs the orchestrator and its
// collaborators read at run time.
type Settings struct {
	// DefaultCPSATTimeout bounds a single CP-SAT solve attempt.
	DefaultCPSATTimeout time.Duration `envconfig:"DEFAULT_CPSAT_TIMEOUT" default:"30s" validate:"required"`
	// ResilienceMaxIterations bounds the harness's bounded-iteration regeneration loop (§4.8).
	ResilienceMaxIterations int `envconfig:"RESILIENCE_MAX_ITERATIONS" default:"50" validate:"gt=0"`
	// ResiliencePassThreshold is the default regression pass-rate threshold (§4.8).
	ResiliencePassThreshold float64 `envconfig:"RESILIENCE_PASS_THRESHOLD" default:"0.8" validate:"gt=0,lte=1"`
	// IdempotencyTTL is the default idempotency-record lifetime (§4.10).
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h" validate:"required"`
	// OutboxStuckTimeout is how long a "processing" outbox message may sit before being considered stuck (§4.10).
	OutboxStuckTimeout time.Duration `envconfig:"OUTBOX_STUCK_TIMEOUT" default:"5m" validate:"required"`
	// OutboxMaxRetries bounds outbox publish attempts before dead-lettering (§4.10, §7).
	OutboxMaxRetries int `envconfig:"OUTBOX_MAX_RETRIES" default:"3" validate:"gt=0"`
	// OutboxMaxAgeDays is how long a dead-lettered message is retained before deletion (§7).
	OutboxMaxAgeDays int `envconfig:"OUTBOX_MAX_AGE_DAYS" default:"7" validate:"gt=0"`
	// OutboxBatchSize is the relay's fixed poll batch size (§5).
	OutboxBatchSize int `envconfig:"OUTBOX_BATCH_SIZE" default:"100" validate:"gt=0"`
	// AntiChurnAlpha and AntiChurnBeta weight the time-crystal objective (§4.7).
	AntiChurnAlpha float64 `envconfig:"ANTI_CHURN_ALPHA" default:"0.3" validate:"gte=0,lte=1"`
	AntiChurnBeta  float64 `envconfig:"ANTI_CHURN_BETA" default:"0.2" validate:"gte=0,lte=1"`
	// EquityGiniThreshold is the "equitable" cutoff (§4.11).
	EquityGiniThreshold float64 `envconfig:"EQUITY_GINI_THRESHOLD" default:"0.15" validate:"gt=0,lte=1"`
	// SupervisionRatioDefault is the default faculty:resident ratio used when a template doesn't override it (§4.6).
	SupervisionRatioDefault int `envconfig:"SUPERVISION_RATIO_DEFAULT" default:"2" validate:"gt=0"`
}

// Load reads Settings from the process environment, applying defaults for
// anything unset, and validates the result.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("RESIDENCY_SCHED", &s); err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate enforces the structural constraints on Settings.
func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.AntiChurnAlpha+s.AntiChurnBeta > 1 {
		return fmt.Errorf("invalid settings: anti-churn alpha+beta must be <= 1, got %v+%v", s.AntiChurnAlpha, s.AntiChurnBeta)
	}
	return nil
}

type settingsKey struct{}

// IntoContext returns a copy of ctx carrying s.
func IntoContext(ctx context.Context, s Settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, s)
}

// FromContext returns the Settings carried by ctx, or Defaults() if none was set.
func FromContext(ctx context.Context) Settings {
	if s, ok := ctx.Value(settingsKey{}).(Settings); ok {
		return s
	}
	return Defaults()
}

// Defaults returns the zero-environment defaults, useful for tests.
func Defaults() Settings {
	var s Settings
	// envconfig.Process still applies `default:` tags against an empty prefix
	// lookup, so this is side-effect-free when no env vars are set.
	_ = envconfig.Process("RESIDENCY_SCHED_DEFAULTS_ONLY", &s)
	return s
}
