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

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrorKind classifies every failure the pipeline can produce.
// ErrorKind 错误分类
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindResolution incomplete or conflicting metadata, raised while binding.
	KindResolution
	// KindAssembly conflicting body, unmatched placeholder or expression failure while building a request.
	KindAssembly
	// KindTransport timeouts, refused connections, TLS failures.
	KindTransport
	// KindUnacceptable a response rejected by an acceptability predicate.
	KindUnacceptable
	// KindConversion no branch matched, coercion failure or a declared error.
	KindConversion
	// KindAbort an interceptor aborted the call.
	KindAbort
	// KindCanceled the call context was canceled.
	KindCanceled
)

var kindNames = map[ErrorKind]string{
	KindUnknown:      "unknown",
	KindResolution:   "resolution",
	KindAssembly:     "assembly",
	KindTransport:    "transport",
	KindUnacceptable: "unacceptable",
	KindConversion:   "conversion",
	KindAbort:        "abort",
	KindCanceled:     "canceled",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// KindError is implemented by all typed errors of this package.
type KindError interface {
	error
	Kind() ErrorKind
}

// KindOf returns the kind of the first typed error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ke KindError
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

// MappingIncompleteError a mandatory concern could not be resolved for a method.
type MappingIncompleteError struct {
	Method  string
	Concern Concern
}

func (e *MappingIncompleteError) Error() string {
	return fmt.Sprintf("method %s: missing mandatory marker for concern %q", e.Method, e.Concern)
}

func (e *MappingIncompleteError) Kind() ErrorKind { return KindResolution }

// ConflictingMarkerError two equally specific markers disagree on a single-valued concern.
type ConflictingMarkerError struct {
	Method  string
	Concern Concern
	Markers []Marker
}

func (e *ConflictingMarkerError) Error() string {
	var names []string
	for _, m := range e.Markers {
		names = append(names, m.String())
	}
	return fmt.Sprintf("method %s: conflicting markers for concern %q: %s", e.Method, e.Concern, strings.Join(names, ", "))
}

func (e *ConflictingMarkerError) Kind() ErrorKind { return KindResolution }

// UnknownMarkerError a tag names a marker the catalogue does not know, or references an unknown collaborator.
type UnknownMarkerError struct {
	Method string
	Marker string
	Detail string
}

func (e *UnknownMarkerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("method %s: unknown %s %q", e.Method, e.Detail, e.Marker)
	}
	return fmt.Sprintf("method %s: unknown marker %q", e.Method, e.Marker)
}

func (e *UnknownMarkerError) Kind() ErrorKind { return KindResolution }

// MarkerPlacementError a marker was declared on a level it does not support, or its tag is malformed.
type MarkerPlacementError struct {
	Method string
	Marker string
	Level  Level
	Reason string
}

func (e *MarkerPlacementError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("method %s: marker %q: %s", e.Method, e.Marker, e.Reason)
	}
	return fmt.Sprintf("method %s: marker %q is not allowed on %s level", e.Method, e.Marker, e.Level)
}

func (e *MarkerPlacementError) Kind() ErrorKind { return KindResolution }

// SignatureError a declared func field has a shape the proxy cannot implement.
type SignatureError struct {
	Method string
	Type   reflect.Type
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("method %s: unsupported signature %v: %s", e.Method, e.Type, e.Reason)
}

func (e *SignatureError) Kind() ErrorKind { return KindResolution }

// PathSubstitutionError a path binding does not match a URL placeholder, or a placeholder stayed unfilled.
type PathSubstitutionError struct {
	Method      string
	Placeholder string
	URL         string
}

func (e *PathSubstitutionError) Error() string {
	return fmt.Sprintf("method %s: path placeholder {%s} does not match url %q", e.Method, e.Placeholder, e.URL)
}

func (e *PathSubstitutionError) Kind() ErrorKind { return KindAssembly }

// ConflictingBodyError more than one binding tried to provide the request body.
type ConflictingBodyError struct {
	Method string
	Param  string
}

func (e *ConflictingBodyError) Error() string {
	return fmt.Sprintf("method %s: parameter %s provides a second request body", e.Method, e.Param)
}

func (e *ConflictingBodyError) Kind() ErrorKind { return KindAssembly }

// EvaluationError an expression failed to compile or run.
type EvaluationError struct {
	Expr  string
	Cause error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %q: %v", e.Expr, e.Cause)
}

func (e *EvaluationError) Unwrap() error { return e.Cause }

func (e *EvaluationError) Kind() ErrorKind { return KindAssembly }

// ConversionError a value could not be coerced into the expected type.
type ConversionError struct {
	Expr   string
	Value  any
	Target reflect.Type
	Cause  error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert %v (%T) to %v", e.Value, e.Value, e.Target)
	if e.Expr != "" {
		msg = fmt.Sprintf("expression %q: %s", e.Expr, msg)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Cause }

func (e *ConversionError) Kind() ErrorKind { return KindConversion }

// TransportReason narrows a transport failure.
type TransportReason string

const (
	ReasonTimeout    TransportReason = "timeout"
	ReasonConnection TransportReason = "connection"
	ReasonTLS        TransportReason = "tls"
	ReasonCanceled   TransportReason = "canceled"
	ReasonOther      TransportReason = "other"
)

// TransportError a failure raised by the transport collaborator.
type TransportError struct {
	Reason TransportReason
	Method string
	URL    string
	Cause  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, e.Reason, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

func (e *TransportError) Kind() ErrorKind {
	if e.Reason == ReasonCanceled {
		return KindCanceled
	}
	return KindTransport
}

// UnacceptableResultError a response arrived but an acceptability predicate rejected it.
type UnacceptableResultError struct {
	StatusCode int
	Predicate  string
}

func (e *UnacceptableResultError) Error() string {
	return fmt.Sprintf("response status %d rejected by %q", e.StatusCode, e.Predicate)
}

func (e *UnacceptableResultError) Kind() ErrorKind { return KindUnacceptable }

// RetryExhaustedError wraps the last failure once all attempts are spent.
type RetryExhaustedError struct {
	Method   string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("method %s: giving up after %d attempts: %v", e.Method, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

func (e *RetryExhaustedError) Kind() ErrorKind { return KindOf(e.Last) }

// CanceledError the call was canceled, typically during a backoff wait.
type CanceledError struct {
	Method  string
	Attempt int
	Cause   error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("method %s: canceled after attempt %d: %v", e.Method, e.Attempt, e.Cause)
}

func (e *CanceledError) Unwrap() error { return e.Cause }

func (e *CanceledError) Kind() ErrorKind { return KindCanceled }

// InterceptorAbortError an interceptor's before-hook aborted the call.
type InterceptorAbortError struct {
	Interceptor string
	Cause       error
}

func (e *InterceptorAbortError) Error() string {
	return fmt.Sprintf("interceptor %s aborted the call: %v", e.Interceptor, e.Cause)
}

func (e *InterceptorAbortError) Unwrap() error { return e.Cause }

func (e *InterceptorAbortError) Kind() ErrorKind { return KindAbort }

// NoBranchMatchedError no branch assertion held and no default was configured.
type NoBranchMatchedError struct {
	Method     string
	Assertions []string
	Message    string
}

func (e *NoBranchMatchedError) Error() string {
	msg := fmt.Sprintf("method %s: no branch matched, evaluated [%s]", e.Method, strings.Join(e.Assertions, "; "))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *NoBranchMatchedError) Kind() ErrorKind { return KindConversion }

// DeclaredError is raised by a throw marker whose predicate matched.
type DeclaredError struct {
	Code       string
	Message    string
	StatusCode int
	Cause      error
}

func (e *DeclaredError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *DeclaredError) Unwrap() error { return e.Cause }

func (e *DeclaredError) Kind() ErrorKind { return KindConversion }

// StatusError is returned by the default conversion for non-2xx responses.
type StatusError struct {
	Method     string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("method %s: unexpected status %s: %s", e.Method, e.Status, e.Body)
}

func (e *StatusError) Kind() ErrorKind { return KindConversion }
