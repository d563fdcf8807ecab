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

package types

// Interceptors add behavior around every attempt of a call without touching the declared API.
// Common behaviors such as logging, request ids, metrics, rate limiting and tracing live here.
//
// 拦截器在每次请求尝试前后添加额外的行为，而不需要修改声明的接口。
// 例如：日志、请求ID、指标、限流、链路追踪。

// Interceptor is the base interface of interceptors.
// Interceptor 拦截器接口的基类
type Interceptor interface {
	//Order returns the execution order, the smaller the value, the higher the priority
	//Order 返回执行顺序，值越小，优先级越高
	Order() int
}

// PointCut is implemented by interceptors that apply only to some calls.
type PointCut interface {
	//PointCut 声明一个切入点，用于判断是否需要执行拦截器
	//For example: return inv.Request.Method == "POST"
	PointCut(inv *Invocation) bool
}

// BeforeInterceptor runs before the transport on every attempt.
// BeforeInterceptor 请求发送之前的拦截器
type BeforeInterceptor interface {
	Interceptor
	// Before may modify inv.Request. Returning a non-continue outcome skips the
	// remaining before-hooks and the transport.
	Before(inv *Invocation) Outcome
}

// AfterInterceptor runs once an attempt produced an outcome, including short-circuits and aborts.
// AfterInterceptor 请求结束之后的拦截器
type AfterInterceptor interface {
	Interceptor
	// After may replace the response or the error.
	After(inv *Invocation, resp *Response, err error) (*Response, error)
}

// OutcomeKind tags the result of a before-hook.
type OutcomeKind int

const (
	OutcomeContinue OutcomeKind = iota
	OutcomeShortCircuit
	OutcomeAbort
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeShortCircuit:
		return "short-circuit"
	case OutcomeAbort:
		return "abort"
	default:
		return "continue"
	}
}

// Outcome is the tagged result of a before-hook.
type Outcome struct {
	Kind     OutcomeKind
	Response *Response
	Err      error
}

// Continue proceeds with the next hook.
func Continue() Outcome {
	return Outcome{Kind: OutcomeContinue}
}

// ShortCircuit skips the transport and uses resp as the attempt's response.
func ShortCircuit(resp *Response) Outcome {
	if resp == nil {
		resp = &Response{}
	}
	return Outcome{Kind: OutcomeShortCircuit, Response: resp}
}

// ShortCircuitValue skips the transport and conversion, returning v from the call.
func ShortCircuitValue(v any) Outcome {
	return Outcome{Kind: OutcomeShortCircuit, Response: &Response{Value: v, HasValue: true, StatusCode: 200}}
}

// Abort ends the call with err. Aborted calls are never retried.
func Abort(err error) Outcome {
	return Outcome{Kind: OutcomeAbort, Err: err}
}

// Scope tells where an interceptor registration comes from.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeType
	ScopeMethod
)

func (s Scope) String() string {
	switch s {
	case ScopeType:
		return "type"
	case ScopeMethod:
		return "method"
	default:
		return "global"
	}
}

// InterceptorRegistration is one interceptor applied to a method.
// Ordered by Order ascending, ties broken by registration order.
type InterceptorRegistration struct {
	Name        string
	Interceptor Interceptor
	Order       int
	Scope       Scope
	// When suppresses the interceptor unless it evaluates to true. Empty means always.
	When string
}

// InterceptorFactory builds a named interceptor from the arguments of an interceptor marker.
type InterceptorFactory func(attrs map[string]string) (Interceptor, error)
