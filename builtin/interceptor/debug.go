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
	"time"

	"github.com/lucklike/luckliy-sub000/api/types"
)

var (
	// Compile-time check Debug implements types.BeforeInterceptor.
	_ types.BeforeInterceptor = (*Debug)(nil)
	// Compile-time check Debug implements types.AfterInterceptor.
	_ types.AfterInterceptor = (*Debug)(nil)
)

const debugStartKey = "debug.start"

// Debug is a logging interceptor. It logs the outgoing request of every attempt
// and the status, duration and error it ended with.
//
// Debug 是一个调试日志拦截器，记录每次尝试的请求和结果。
//
// Logs are written through the logger of the proxy configuration, see types.WithLogger.
// 日志通过配置的 Logger 输出。
type Debug struct {
	// Logger overrides the configured logger when set.
	Logger types.Logger
}

// NewDebug builds a Debug interceptor from marker attributes. It takes none.
func NewDebug(map[string]string) (types.Interceptor, error) {
	return &Debug{}, nil
}

// Order returns the execution order of this interceptor. Higher values execute later.
// Debug executes with order 900, making it one of the last interceptors to run.
//
// Order 返回执行顺序，Debug 为 900，是最后执行的拦截器之一。
func (d *Debug) Order() int {
	return 900
}

func (d *Debug) Name() string {
	return NameDebug
}

// Before logs the request about to be sent.
func (d *Debug) Before(inv *types.Invocation) types.Outcome {
	inv.SetAttr(debugStartKey, time.Now())
	req := inv.Request
	u, err := req.FullURL()
	if err != nil {
		u = req.URL
	}
	d.logger(inv).Printf("[lucky] %s attempt=%d -> %s %s headers=%v body=%d bytes",
		inv.MethodName(), inv.Attempt, req.Method, u, req.Header, len(req.Body))
	return types.Continue()
}

// After logs the outcome of the attempt. It never changes it.
func (d *Debug) After(inv *types.Invocation, resp *types.Response, err error) (*types.Response, error) {
	var elapsed time.Duration
	if v, ok := inv.Attr(debugStartKey); ok {
		elapsed = time.Since(v.(time.Time))
	}
	switch {
	case err != nil:
		d.logger(inv).Printf("[lucky] %s attempt=%d <- error=%v (%s)", inv.MethodName(), inv.Attempt, err, elapsed)
	case resp != nil && resp.HasValue:
		d.logger(inv).Printf("[lucky] %s attempt=%d <- short-circuit value=%v", inv.MethodName(), inv.Attempt, resp.Value)
	case resp != nil:
		d.logger(inv).Printf("[lucky] %s attempt=%d <- %d %s body=%d bytes (%s)",
			inv.MethodName(), inv.Attempt, resp.StatusCode, resp.MediaType(), len(resp.Body), elapsed)
	}
	return resp, err
}

func (d *Debug) logger(inv *types.Invocation) types.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return inv.Logger()
}
