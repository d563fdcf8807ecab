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

package engine

import (
	"context"
	"reflect"
	"strconv"
	"sync"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/converter"
	"github.com/lucklike/luckliy-sub000/utils/el"
	"github.com/lucklike/luckliy-sub000/utils/pool"
	lruntime "github.com/lucklike/luckliy-sub000/utils/runtime"
)

// DefaultPoolSize is the worker bound of the pool shared by asynchronous methods
// when Config.Pool is not set.
const DefaultPoolSize = 4096

var (
	defaultPoolOnce sync.Once
	defaultPool     *pool.WorkerPool
)

// sharedPool returns the lazily created process-wide pool.
func sharedPool(cfg *types.Config) types.Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = pool.NewWorkerPool(DefaultPoolSize)
		var logger types.Logger = types.DefaultLogger()
		if cfg != nil {
			logger = types.NewLogger(cfg.Logger)
		}
		defaultPool.OnPanic = func(err *lruntime.PanicError) {
			logger.Printf("async task panic: %v\n%s", err.Value, err.Stack)
		}
	})
	return defaultPool
}

// Method is the executable form of one bound method: its descriptor plus the
// collaborators built from it. It is created once per Bind and is safe for concurrent calls.
// Method 绑定后的可执行方法
type Method struct {
	Descriptor *MethodDescriptor
	config     *types.Config
	chain      *Chain
	retry      *RetryPolicy
	pipeline   *converter.Pipeline
	pool       types.Pool
	ownedPool  bool
}

// NewMethod builds the interceptor chain, retry policy, conversion pipeline and,
// for asynchronous methods, selects the pool.
func NewMethod(md *MethodDescriptor, cfg *types.Config) (*Method, error) {
	if cfg == nil {
		c := types.NewConfig()
		cfg = &c
	}
	m := &Method{Descriptor: md, config: cfg}
	var err error
	if m.chain, err = BuildChain(md, cfg); err != nil {
		return nil, err
	}
	if m.retry, err = NewRetryPolicy(md, cfg); err != nil {
		return nil, err
	}
	if m.pipeline, err = converter.Build(md, cfg); err != nil {
		return nil, err
	}
	if md.IsAsync() {
		if err = m.selectPool(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// selectPool resolves async(pool=name), async(workers=n), Config.Pool, then the shared pool.
func (m *Method) selectPool() error {
	md := m.Descriptor
	a, _ := md.Effective(types.ConcernAsync)
	if name, ok := a.Attr(types.AttrPool); ok {
		p, ok := m.config.Pools[name]
		if !ok {
			return &types.UnknownMarkerError{Method: md.Name(), Marker: name, Detail: "pool"}
		}
		m.pool = p
		return nil
	}
	if v, ok := a.Attr(types.AttrWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return &types.MarkerPlacementError{Method: md.Name(), Marker: a.String(), Level: a.Level, Reason: "workers must be a positive integer"}
		}
		wp := pool.NewWorkerPool(n)
		logger := types.NewLogger(m.config.Logger)
		wp.OnPanic = func(err *lruntime.PanicError) {
			logger.Printf("async task panic in %s: %v\n%s", md.Name(), err.Value, err.Stack)
		}
		m.pool, m.ownedPool = wp, true
		return nil
	}
	if m.config.Pool != nil {
		m.pool = m.config.Pool
		return nil
	}
	m.pool = sharedPool(m.config)
	return nil
}

// Chain returns the ordered interceptors of the method.
func (m *Method) Chain() *Chain {
	return m.chain
}

// Retry returns the retry policy of the method.
func (m *Method) Retry() *RetryPolicy {
	return m.retry
}

// Close releases a pool created for this method alone.
func (m *Method) Close() {
	if m.ownedPool && m.pool != nil {
		m.pool.Release()
	}
}

// call is the state of one invocation shared by its attempts.
type call struct {
	m    *Method
	inv  *types.Invocation
	base *types.Request
	eval *types.EvalContext
}

// prepare unwraps deferred arguments, builds the call variables and assembles the base request.
func (m *Method) prepare(ctx context.Context, args []any) (*call, error) {
	md := m.Descriptor
	unwrapped := make([]any, len(args))
	for i, a := range args {
		v, err := types.UnwrapDeferred(ctx, a)
		if err != nil {
			return nil, err
		}
		unwrapped[i] = v
	}
	eval, err := NewEvalContext(md, m.config, unwrapped)
	if err != nil {
		return nil, err
	}
	inv := &types.Invocation{Ctx: ctx, Method: md, Args: unwrapped, Eval: eval, Config: m.config, Attempt: 1}
	req, err := Assemble(md, inv)
	m.config.Debug(md.Name(), types.StageAssemble, req, nil, err)
	if err != nil {
		return nil, err
	}
	inv.Request = req
	return &call{m: m, inv: inv, base: req, eval: eval}, nil
}

// attempt sends a fresh copy of the base request through the chain.
func (c *call) attempt(inv *types.Invocation) AttemptResult {
	inv.Request = c.base.Clone()
	inv.Eval = c.eval.WithAll(map[string]any{
		types.VarAttempt: inv.Attempt,
		types.VarRequest: converter.RequestView(inv.Request),
	})
	res := c.m.chain.Execute(inv, c.m.config.Transport)
	c.m.config.Debug(inv.MethodName(), types.StageAttempt, inv.Request, res.Response, res.Err)
	return res
}

// finish maps the final attempt state to the method's return value.
func (c *call) finish(st *RetryAttemptState) (any, error) {
	m, inv := c.m, c.inv
	md := m.Descriptor
	resp := st.LastResponse
	if err := m.retry.Err(md.Name(), st); err != nil {
		m.config.Debug(md.Name(), types.StageRetry, inv.Request, resp, err)
		err = m.pipeline.Failure(inv, resp, err)
		_ = resp.Close()
		return nil, err
	}
	if resp == nil {
		// no response and no error, e.g. an after hook swallowed a failure
		resp = &types.Response{HasValue: true}
	}
	if resp.HasValue {
		v, err := el.Coerce(resp.Value, md.ReturnType)
		if err != nil {
			err = &types.ConversionError{Value: resp.Value, Target: md.ReturnType, Cause: err}
		}
		m.config.Debug(md.Name(), types.StageConvert, inv.Request, resp, err)
		return v, err
	}
	v, err := m.pipeline.Convert(inv, resp, md.ReturnType)
	m.config.Debug(md.Name(), types.StageConvert, inv.Request, resp, err)
	if err != nil || !md.Streams() {
		_ = resp.Close()
	}
	return v, err
}

// Invoke runs a call on the calling goroutine: assembly, attempts with blocking
// backoff waits, conversion.
func (m *Method) Invoke(ctx context.Context, args []any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := m.prepare(ctx, args)
	if err != nil {
		return nil, err
	}
	return c.finish(m.retry.Run(c.inv, c.attempt))
}

// Call dispatches according to the method's shape: future methods return their
// future, asynchronous value methods run on the pool while the caller waits, the rest
// run inline.
func (m *Method) Call(ctx context.Context, args []any) (any, error) {
	md := m.Descriptor
	switch {
	case md.Result == ResultFuture:
		return m.InvokeAsync(ctx, args), nil
	case md.IsAsync():
		f := m.InvokeAsync(ctx, args)
		return f.(types.Awaitable).Await(ctx)
	default:
		return m.Invoke(ctx, args)
	}
}

// MakeFunc returns a func value of the declared type calling this method.
func (m *Method) MakeFunc() reflect.Value {
	return reflect.MakeFunc(m.Descriptor.Func, m.callValues)
}

func (m *Method) callValues(in []reflect.Value) []reflect.Value {
	md := m.Descriptor
	ctx := context.Background()
	if md.HasContext {
		if c, ok := in[0].Interface().(context.Context); ok && c != nil {
			ctx = c
		}
		in = in[1:]
	}
	args := make([]any, len(in))
	for i, v := range in {
		args[i] = v.Interface()
	}
	v, err := m.Call(ctx, args)
	switch md.Result {
	case ResultFuture:
		return []reflect.Value{reflect.ValueOf(v)}
	case ResultError:
		return []reflect.Value{errorValue(err)}
	default:
		out, cerr := resultValue(v, md.ReturnType)
		if err == nil && cerr != nil {
			err = &types.ConversionError{Value: v, Target: md.ReturnType, Cause: cerr}
		}
		return []reflect.Value{out, errorValue(err)}
	}
}

func resultValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	out, err := el.CoerceValue(v, t)
	if err != nil {
		return reflect.Zero(t), err
	}
	return out, nil
}

func errorValue(err error) reflect.Value {
	out := reflect.New(errorType).Elem()
	if err != nil {
		out.Set(reflect.ValueOf(err))
	}
	return out
}
