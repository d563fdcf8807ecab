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
	"time"
)

// RetrySettings are the defaults of methods without a retry marker, and the base a retry marker overrides.
type RetrySettings struct {
	MaxAttempts int
	Wait        time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	// RetryOn lists retryable failure kinds: timeout, connection, tls, unacceptable, transport, any.
	RetryOn []string
}

// DefaultRetrySettings performs a single attempt.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxAttempts: 1,
		Wait:        100 * time.Millisecond,
		MinWait:     0,
		MaxWait:     10 * time.Second,
		Multiplier:  2,
		RetryOn:     []string{"timeout", "connection", "unacceptable"},
	}
}

// Config defines the configuration shared by the proxies bound with it.
type Config struct {
	// OnDebug is called at every stage of a call: assemble, attempt, retry, convert.
	// - method: qualified method name.
	// - stage: one of the Stage constants.
	// - req: the request, nil before assembly succeeded.
	// - resp: the response of the stage, if any.
	// - err: error information, if any.
	OnDebug func(method string, stage string, req *Request, resp *Response, err error)
	// Logger is the logging interface, defaulting to `DefaultLogger()`.
	Logger Logger
	// Transport executes requests. The root package defaults it to the net/http transport.
	Transport Transport
	// BaseURL is used when no base marker applies.
	BaseURL string
	// BaseURLProvider overrides base URL resolution entirely.
	BaseURLProvider BaseURLProvider
	// Evaluator evaluates templates, defaulting to the process-wide evaluator.
	Evaluator Evaluator
	// Pool is the shared pool of asynchronous methods. If not configured, a default pool is created on demand.
	// The default implementation is `pool.WorkerPool`.
	Pool Pool
	// Pools are named pools selected with async(pool=name).
	Pools map[string]Pool
	// Interceptors apply to every method, in registration order before ordering.
	Interceptors []InterceptorRegistration
	// NamedInterceptors are referenced by interceptor(name) markers.
	NamedInterceptors map[string]Interceptor
	// InterceptorFactories build named interceptors from marker arguments.
	InterceptorFactories map[string]InterceptorFactory
	// Converters are referenced by convert(name) markers.
	Converters map[string]Converter
	// Codecs override or extend the built-in body codecs.
	Codecs map[string]Codec
	// Deciders are referenced by retry(decider=name).
	Deciders map[string]RetryDecider
	// Backoffs are referenced by retry(backoff=name).
	Backoffs map[string]BackoffStrategy
	// Properties are global variables in key-value format, visible to expressions as ${global.key}.
	Properties map[string]any
	// Retry holds retry defaults.
	Retry RetrySettings
	// Timeout is the default request timeout. Zero means none.
	Timeout time.Duration
	// Udf holds functions visible to script converters. A string value is JavaScript
	// source evaluated in every VM, any other value is set as a global with its key.
	Udf map[string]any
	// ScriptMaxExecutionTime is the maximum execution time for script converters, defaulting to 2000 milliseconds.
	ScriptMaxExecutionTime time.Duration
	// DownloadDir is the default directory of download converters.
	DownloadDir string
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		Logger:                 DefaultLogger(),
		Properties:             make(map[string]any),
		Udf:                    make(map[string]any),
		Retry:                  DefaultRetrySettings(),
		ScriptMaxExecutionTime: time.Millisecond * 2000,
		DownloadDir:            ".",
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}

// NewConfigE is NewConfig returning the first option error.
func NewConfigE(opts ...Option) (Config, error) {
	c := NewConfig()
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Debug reports a stage to OnDebug, if set.
func (c *Config) Debug(method, stage string, req *Request, resp *Response, err error) {
	if c != nil && c.OnDebug != nil {
		c.OnDebug(method, stage, req, resp, err)
	}
}
