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

package interceptor

import (
	"github.com/lucklike/luckliy-sub000/api/types"
)

// Names of the built-in interceptors, as referenced by interceptor markers.
const (
	NameDebug            = "debug"
	NameRequestId        = "requestId"
	NameTracing          = "tracing"
	NameConcurrencyLimit = "concurrencyLimit"
	NameRateLimit        = "rateLimit"
	NameMetrics          = "metrics"
)

// Factories returns the factories of the built-in interceptors, keyed by name.
// Every marker gets its own instance, use types.WithNamedInterceptor to share one
// limiter between methods.
func Factories() map[string]types.InterceptorFactory {
	return map[string]types.InterceptorFactory{
		NameDebug:            NewDebug,
		NameRequestId:        NewRequestId,
		NameTracing:          NewTracing,
		NameConcurrencyLimit: NewConcurrencyLimitFactory,
		NameRateLimit:        NewRateLimitFactory,
		NameMetrics:          NewMetricsFactory,
	}
}

// WithBuiltins registers the built-in factories that the configuration does not already define.
func WithBuiltins() types.Option {
	return func(c *types.Config) error {
		for name, f := range Factories() {
			if _, ok := c.InterceptorFactories[name]; ok {
				continue
			}
			if err := types.WithInterceptorFactory(name, f)(c); err != nil {
				return err
			}
		}
		return nil
	}
}
