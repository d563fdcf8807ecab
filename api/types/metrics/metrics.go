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

package metrics

import (
	"sync/atomic"
)

// CallMetrics holds in-process counters of the attempts made through a proxy.
type CallMetrics struct {
	Current int64 // Number of attempts in flight
	Total   int64 // Total number of attempts
	Failed  int64 // Number of attempts that ended with an error
	Success int64 // Number of attempts that ended with a response
	Retries int64 // Number of attempts after the first one of a call
}

// NewCallMetrics creates a new instance of CallMetrics.
func NewCallMetrics() *CallMetrics {
	return &CallMetrics{}
}

// Begin records the start of an attempt.
func (m *CallMetrics) Begin(attempt int) {
	atomic.AddInt64(&m.Current, 1)
	atomic.AddInt64(&m.Total, 1)
	if attempt > 1 {
		atomic.AddInt64(&m.Retries, 1)
	}
}

// End records the end of an attempt.
func (m *CallMetrics) End(err error) {
	atomic.AddInt64(&m.Current, -1)
	if err != nil {
		atomic.AddInt64(&m.Failed, 1)
	} else {
		atomic.AddInt64(&m.Success, 1)
	}
}

// Get returns a copy of the current metrics.
func (m *CallMetrics) Get() CallMetrics {
	return CallMetrics{
		Current: atomic.LoadInt64(&m.Current),
		Total:   atomic.LoadInt64(&m.Total),
		Failed:  atomic.LoadInt64(&m.Failed),
		Success: atomic.LoadInt64(&m.Success),
		Retries: atomic.LoadInt64(&m.Retries),
	}
}

// Reset resets all metrics to zero.
func (m *CallMetrics) Reset() {
	atomic.StoreInt64(&m.Current, 0)
	atomic.StoreInt64(&m.Total, 0)
	atomic.StoreInt64(&m.Failed, 0)
	atomic.StoreInt64(&m.Success, 0)
	atomic.StoreInt64(&m.Retries, 0)
}
