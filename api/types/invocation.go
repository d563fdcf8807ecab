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

import "context"

// Invocation is the call-local state of one method call. It is shared by the assembler,
// interceptors, the retry engine and converters, and is never used by two goroutines at once.
// Invocation 一次方法调用的上下文
type Invocation struct {
	Ctx    context.Context
	Method MethodInfo
	// Args are the binding arguments after deferred unwrapping, context.Context excluded.
	Args []any
	// Request is the assembled request, or the per-attempt clone inside the chain.
	Request *Request
	// Attempt starts at 1.
	Attempt int
	Eval    *EvalContext
	Config  *Config

	attrs map[string]any
}

// Context returns the call context, never nil.
func (inv *Invocation) Context() context.Context {
	if inv.Ctx == nil {
		return context.Background()
	}
	return inv.Ctx
}

// MethodName returns the qualified method name.
func (inv *Invocation) MethodName() string {
	if inv.Method == nil {
		return ""
	}
	return inv.Method.Name()
}

// SetAttr stores a value for later hooks of the same call, e.g. a start time.
func (inv *Invocation) SetAttr(key string, value any) {
	if inv.attrs == nil {
		inv.attrs = make(map[string]any)
	}
	inv.attrs[key] = value
}

// Attr returns a value stored with SetAttr.
func (inv *Invocation) Attr(key string) (any, bool) {
	v, ok := inv.attrs[key]
	return v, ok
}

// Logger returns the configured logger.
func (inv *Invocation) Logger() Logger {
	if inv.Config == nil {
		return DefaultLogger()
	}
	return NewLogger(inv.Config.Logger)
}
