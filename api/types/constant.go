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

import "errors"

// Struct tag keys used to declare markers.
const (
	// TagMarkers carries type-level (on `_ Meta` fields) and method-level markers.
	TagMarkers = "lucky"
	// TagParams carries parameter markers, one group per parameter separated by ParamSeparator.
	TagParams = "params"

	MarkerSeparator = ";"
	ParamSeparator  = "|"
)

// Variable names available to expressions.
// 表达式中可以使用的变量名
const (
	VarArgs      = "args"
	VarArg       = "arg"
	VarGlobal    = "global"
	VarMethod    = "method"
	VarAttempt   = "attempt"
	VarIndex     = "index"
	VarKey       = "key"
	VarValue     = "value"
	VarName      = "name"
	VarStatus    = "status"
	VarHeaders   = "headers"
	VarCookies   = "cookies"
	VarBody      = "body"
	VarRaw       = "raw"
	VarRequest   = "request"
	VarResponse  = "response"
	VarError     = "error"
	VarErrorKind = "errorKind"
)

// Well-known header keys.
const (
	ContentTypeKey = "Content-Type"
	AcceptKey      = "Accept"
	RequestIdKey   = "X-Request-Id"
)

// Debug stages reported to Config.OnDebug.
const (
	StageAssemble = "assemble"
	StageAttempt  = "attempt"
	StageRetry    = "retry"
	StageConvert  = "convert"
)

var (
	// ErrConcurrencyLimitReached is the error returned when the concurrency limit has been reached
	ErrConcurrencyLimitReached = errors.New("concurrency limit reached")
	// ErrRateLimited is returned by the rate limit interceptor when the limiter cannot grant a token.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrRequestFrozen is returned when a request is modified after it was handed to the transport.
	ErrRequestFrozen = errors.New("request is frozen")
	// ErrNotPointerToStruct is returned by Bind when the target is not a pointer to a struct.
	ErrNotPointerToStruct = errors.New("bind target must be a non-nil pointer to a struct")
	// ErrMethodNotFound is returned when invoking a method name the proxy does not know.
	ErrMethodNotFound = errors.New("method not found")
	// ErrFutureCanceled is returned by Future.Get after Cancel.
	ErrFutureCanceled = errors.New("future canceled")
	// ErrNoTransport is returned when a call is made without a transport configured.
	ErrNoTransport = errors.New("no transport configured")
)
