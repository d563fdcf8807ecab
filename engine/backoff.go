/*
 * Copyright 2025 The Luckliy Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package engine

import (
	"math"
	"time"

	"github.com/lucklike/luckliy-sub000/api/types"
)

// Backoff strategy names usable in retry(backoff=...).
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

var (
	_ types.BackoffStrategy = Exponential{}
	_ types.BackoffStrategy = Fixed{}
)

// Exponential waits min(max, max(min, base*multiplier^(attempt-1))).
// A zero max leaves the wait unbounded.
type Exponential struct{}

func (Exponential) Backoff(attempt int, base, min, max time.Duration, multiplier float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	w := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if math.IsInf(w, 0) || math.IsNaN(w) || w >= math.MaxInt64 {
		return clamp(time.Duration(math.MaxInt64), min, max)
	}
	return clamp(time.Duration(w), min, max)
}

// Fixed waits base on every attempt, clamped to [min, max].
type Fixed struct{}

func (Fixed) Backoff(_ int, base, min, max time.Duration, _ float64) time.Duration {
	return clamp(base, min, max)
}

func clamp(w, min, max time.Duration) time.Duration {
	if w < min {
		w = min
	}
	if max > 0 && w > max {
		w = max
	}
	return w
}

// backoffOf returns a named strategy, preferring the ones registered on cfg.
func backoffOf(name string, cfg *types.Config) (types.BackoffStrategy, bool) {
	if cfg != nil {
		if b, ok := cfg.Backoffs[name]; ok {
			return b, true
		}
	}
	switch name {
	case "", BackoffExponential:
		return Exponential{}, true
	case BackoffFixed:
		return Fixed{}, true
	}
	return nil, false
}
