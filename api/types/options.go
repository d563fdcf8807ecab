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
	"errors"
	"time"
)

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithOnDebug is an option that sets the on debug callback of the Config.
func WithOnDebug(onDebug func(method string, stage string, req *Request, resp *Response, err error)) Option {
	return func(c *Config) error {
		c.OnDebug = onDebug
		return nil
	}
}

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithTransport is an option that sets the transport of the Config.
func WithTransport(transport Transport) Option {
	return func(c *Config) error {
		c.Transport = transport
		return nil
	}
}

// WithBaseURL is an option that sets the fallback base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Config) error {
		c.BaseURL = baseURL
		return nil
	}
}

// WithBaseURLProvider is an option that sets the base URL provider.
func WithBaseURLProvider(provider BaseURLProvider) Option {
	return func(c *Config) error {
		c.BaseURLProvider = provider
		return nil
	}
}

// WithEvaluator is an option that sets the template evaluator.
func WithEvaluator(evaluator Evaluator) Option {
	return func(c *Config) error {
		c.Evaluator = evaluator
		return nil
	}
}

// WithPool is an option that sets the pool of the Config.
func WithPool(pool Pool) Option {
	return func(c *Config) error {
		c.Pool = pool
		return nil
	}
}

// WithNamedPool registers a pool selectable with async(pool=name).
func WithNamedPool(name string, pool Pool) Option {
	return func(c *Config) error {
		if c.Pools == nil {
			c.Pools = make(map[string]Pool)
		}
		c.Pools[name] = pool
		return nil
	}
}

// WithInterceptors appends global interceptors. Their order is taken from Order().
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(c *Config) error {
		for _, i := range interceptors {
			if i == nil {
				return errors.New("nil interceptor")
			}
			c.Interceptors = append(c.Interceptors, InterceptorRegistration{
				Interceptor: i,
				Order:       i.Order(),
				Scope:       ScopeGlobal,
			})
		}
		return nil
	}
}

// WithInterceptorRegistration appends a fully specified global registration.
func WithInterceptorRegistration(reg InterceptorRegistration) Option {
	return func(c *Config) error {
		if reg.Interceptor == nil {
			return errors.New("nil interceptor")
		}
		reg.Scope = ScopeGlobal
		c.Interceptors = append(c.Interceptors, reg)
		return nil
	}
}

// WithNamedInterceptor registers an interceptor referenced by interceptor(name) markers.
func WithNamedInterceptor(name string, interceptor Interceptor) Option {
	return func(c *Config) error {
		if c.NamedInterceptors == nil {
			c.NamedInterceptors = make(map[string]Interceptor)
		}
		c.NamedInterceptors[name] = interceptor
		return nil
	}
}

// WithInterceptorFactory registers a factory building named interceptors from marker arguments.
func WithInterceptorFactory(name string, factory InterceptorFactory) Option {
	return func(c *Config) error {
		if c.InterceptorFactories == nil {
			c.InterceptorFactories = make(map[string]InterceptorFactory)
		}
		c.InterceptorFactories[name] = factory
		return nil
	}
}

// WithConverter registers a converter referenced by convert(name) markers.
func WithConverter(name string, converter Converter) Option {
	return func(c *Config) error {
		if c.Converters == nil {
			c.Converters = make(map[string]Converter)
		}
		c.Converters[name] = converter
		return nil
	}
}

// WithCodec registers a body codec under its name.
func WithCodec(codec Codec) Option {
	return func(c *Config) error {
		if c.Codecs == nil {
			c.Codecs = make(map[string]Codec)
		}
		c.Codecs[codec.Name()] = codec
		return nil
	}
}

// WithDecider registers a retry decider referenced by retry(decider=name).
func WithDecider(name string, decider RetryDecider) Option {
	return func(c *Config) error {
		if c.Deciders == nil {
			c.Deciders = make(map[string]RetryDecider)
		}
		c.Deciders[name] = decider
		return nil
	}
}

// WithBackoff registers a backoff strategy referenced by retry(backoff=name).
func WithBackoff(name string, backoff BackoffStrategy) Option {
	return func(c *Config) error {
		if c.Backoffs == nil {
			c.Backoffs = make(map[string]BackoffStrategy)
		}
		c.Backoffs[name] = backoff
		return nil
	}
}

// WithProperties merges global variables.
func WithProperties(properties map[string]any) Option {
	return func(c *Config) error {
		if c.Properties == nil {
			c.Properties = make(map[string]any)
		}
		for k, v := range properties {
			c.Properties[k] = v
		}
		return nil
	}
}

// WithRetry sets the retry defaults.
func WithRetry(settings RetrySettings) Option {
	return func(c *Config) error {
		if settings.MaxAttempts < 1 {
			return errors.New("retry max attempts must be at least 1")
		}
		c.Retry = settings
		return nil
	}
}

// WithTimeout sets the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.Timeout = timeout
		return nil
	}
}

// WithScriptMaxExecutionTime is an option that sets the js max execution time of the Config.
func WithScriptMaxExecutionTime(scriptMaxExecutionTime time.Duration) Option {
	return func(c *Config) error {
		c.ScriptMaxExecutionTime = scriptMaxExecutionTime
		return nil
	}
}

// WithDownloadDir sets the default directory of download converters.
func WithDownloadDir(dir string) Option {
	return func(c *Config) error {
		c.DownloadDir = dir
		return nil
	}
}

// WithUdf is an option that registers a function or JavaScript snippet for script converters.
func WithUdf(name string, fn any) Option {
	return func(c *Config) error {
		if c.Udf == nil {
			c.Udf = make(map[string]any)
		}
		c.Udf[name] = fn
		return nil
	}
}
