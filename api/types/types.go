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

// Package types defines the core contracts of lucky: requests, responses, markers,
// collaborators (transport, codecs, resolvers, converters, interceptors), errors and configuration.
// Package types 定义核心接口和数据结构
package types

import (
	"context"
	"reflect"
	"time"
)

// Location is where a request fragment is placed.
// Location 请求片段的位置
type Location int

const (
	LocationNone Location = iota
	LocationPath
	LocationQuery
	LocationHeader
	LocationCookie
	LocationForm
	LocationBody
)

var locationNames = map[Location]string{
	LocationNone:   "none",
	LocationPath:   "path",
	LocationQuery:  "query",
	LocationHeader: "header",
	LocationCookie: "cookie",
	LocationForm:   "form",
	LocationBody:   "body",
}

func (l Location) String() string {
	return locationNames[l]
}

// ParseLocation returns the location for a name such as "header" or "query".
func ParseLocation(name string) (Location, bool) {
	for l, n := range locationNames {
		if n == name {
			return l, true
		}
	}
	return LocationNone, false
}

// Fragment is one (name, value, location) piece of a request produced by a resolver.
type Fragment struct {
	Name     string
	Value    any
	Location Location
	// Replace overwrites previous values of the same name instead of accumulating.
	Replace bool
	// Codec names the body codec for LocationBody fragments.
	Codec string
}

// Transport executes an assembled request.
// Transport 请求执行器
type Transport interface {
	// Execute sends the request. When req.Stream is true the returned response
	// carries an open Stream which the caller must close.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// BaseURLProvider resolves the base URL of a call. Consulted once per assembly.
type BaseURLProvider interface {
	ResolveBaseURL(inv *Invocation) (string, error)
}

// Codec serializes request bodies and deserializes response bodies.
// Codec 请求体/响应体编解码器
type Codec interface {
	Name() string
	ContentType() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// Evaluator evaluates `${...}` templates against an evaluation context.
type Evaluator interface {
	// Evaluate evaluates text and coerces the result to expected. A nil expected returns the value as is.
	Evaluate(text string, ctx *EvalContext, expected reflect.Type) (any, error)
	// Bool evaluates a predicate.
	Bool(text string, ctx *EvalContext) (bool, error)
	// String evaluates text into a string.
	String(text string, ctx *EvalContext) (string, error)
}

// ResolveContext carries what a resolver needs besides the value itself.
type ResolveContext struct {
	Method    string
	Param     *ParameterDescriptor
	Binding   *Binding
	Eval      *EvalContext
	Evaluator Evaluator
}

// Resolver turns one bound value into zero or more request fragments.
// Resolver 参数绑定解析器
type Resolver interface {
	Resolve(rc *ResolveContext, value any) ([]Fragment, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(rc *ResolveContext, value any) ([]Fragment, error)

func (f ResolverFunc) Resolve(rc *ResolveContext, value any) ([]Fragment, error) {
	return f(rc, value)
}

// Converter transforms the final response of a call into the declared return value.
// Converter 响应转换器
type Converter interface {
	Convert(inv *Invocation, resp *Response, target reflect.Type) (any, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(inv *Invocation, resp *Response, target reflect.Type) (any, error)

func (f ConverterFunc) Convert(inv *Invocation, resp *Response, target reflect.Type) (any, error) {
	return f(inv, resp, target)
}

// RetryDecider decides whether a retryable failure is retried.
// Called with inv.Attempt set to the attempt that just failed.
type RetryDecider interface {
	ShouldRetry(inv *Invocation, resp *Response, err error) (bool, error)
}

// RetryDeciderFunc adapts a function to RetryDecider.
type RetryDeciderFunc func(inv *Invocation, resp *Response, err error) (bool, error)

func (f RetryDeciderFunc) ShouldRetry(inv *Invocation, resp *Response, err error) (bool, error) {
	return f(inv, resp, err)
}

// BackoffStrategy computes the wait before the next attempt. attempt starts at 1.
type BackoffStrategy interface {
	Backoff(attempt int, base, min, max time.Duration, multiplier float64) time.Duration
}

// Pool is the worker pool used by asynchronous methods.
type Pool interface {
	//Submit 往协程池提交一个任务
	//如果协程池满返回错误
	Submit(task func()) error
	//Release 释放
	Release()
}

// FileDescriptor describes a response body streamed to disk.
type FileDescriptor struct {
	Name        string
	Path        string
	Size        int64
	ContentType string
	StatusCode  int
}

// ParameterDescriptor describes one binding parameter of a method. Immutable after resolution.
type ParameterDescriptor struct {
	// Index is the position among binding parameters, context.Context excluded.
	Index int
	// ArgIndex is the position in the func signature.
	ArgIndex int
	Type     reflect.Type
	// Name is the expression name, `p0` unless renamed with var(name).
	Name     string
	Bindings []Binding
	Ignored  bool
}

// Binding pairs a parameter with a resolver placing it into a request location.
type Binding struct {
	Marker   Marker
	Resolver Resolver
	Location Location
}
