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

// Package interceptor provides the built-in interceptors of lucky proxies.
// They are referenced by name from interceptor markers, or registered globally
// with types.WithInterceptors.
//
// Package interceptor 提供内置拦截器，可以通过 interceptor(name) 标记引用，
// 也可以通过 types.WithInterceptors 全局注册。
//
// Available Built-in Interceptors:
// 可用的内置拦截器：
//
//   - requestId: sets X-Request-Id, one id per call shared by its retries
//     requestId：设置请求ID，同一次调用的重试共享同一个ID
//
//   - tracing: one OpenTelemetry client span per attempt, propagated in the request headers
//     tracing：每次尝试一个链路追踪span，并注入到请求头
//
//   - concurrencyLimit: limits the number of attempts in flight
//     concurrencyLimit：限制并发请求数
//
//   - rateLimit: token bucket rate limiting
//     rateLimit：令牌桶限流
//
//   - metrics: Prometheus counters, histograms and in-process call metrics
//     metrics：Prometheus 指标
//
//   - debug: logs every attempt through the configured logger
//     debug：记录每次尝试的日志
//
// Interceptor Execution Order:
// 拦截器执行顺序：
//  1. RequestId (order: 5)
//  2. Tracing (order: 8)
//  3. ConcurrencyLimit (order: 10)
//  4. RateLimit (order: 15)
//  5. Metrics (order: 20)
//  6. Debug (order: 900)
//
// Usage Examples:
// 使用示例：
//
//	type UserAPI struct {
//		_   lucky.Meta `lucky:"base('https://api.example.com'); interceptor(requestId); interceptor(rateLimit, rate=10, burst=20)"`
//		Get func(id int) (*User, error) `lucky:"get('/users/{id}'); interceptor(debug)"`
//	}
//
//	// Apply interceptors to every method
//	// 为所有方法应用拦截器
//	api := lucky.MustBind(&UserAPI{}, types.WithInterceptors(&interceptor.Debug{}, interceptor.NewConcurrencyLimit(100)))
package interceptor
