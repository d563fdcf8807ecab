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

	"github.com/lucklike/luckliy-sub000/api/types"
	lruntime "github.com/lucklike/luckliy-sub000/utils/runtime"
)

// newFuture creates an incomplete future of the method's declared *Future[T] type,
// or a Future[any] for asynchronous value methods.
func (m *Method) newFuture() types.FutureHandle {
	if ft := m.Descriptor.FutureType; ft != nil {
		return reflect.Zero(ft).Interface().(types.FutureHandle).NewHandle()
	}
	return types.NewFuture[any]()
}

// InvokeAsync submits the call to the method's pool and returns its future at once.
// Argument unwrapping, assembly and every attempt run on pool workers; backoff waits
// hold no worker. Canceling the future cancels the call context. A rejected submission
// completes the future with the pool's error.
// InvokeAsync 异步执行，立即返回 Future
func (m *Method) InvokeAsync(ctx context.Context, args []any) types.FutureHandle {
	if ctx == nil {
		ctx = context.Background()
	}
	f := m.newFuture()
	cctx, cancel := context.WithCancel(ctx)
	f.SetCancel(cancel)
	complete := func(v any, err error) {
		f.Complete(v, err)
		cancel()
	}
	p := m.pool
	if p == nil {
		p = sharedPool(m.config)
	}
	submit := func(task func()) error {
		return p.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					perr := lruntime.NewPanicError(r)
					types.NewLogger(m.config.Logger).Printf("async call %s panic: %v\n%s", m.Descriptor.Name(), r, perr.Stack)
					complete(nil, perr)
				}
			}()
			task()
		})
	}
	err := submit(func() {
		c, err := m.prepare(cctx, args)
		if err != nil {
			complete(nil, err)
			return
		}
		m.retry.RunAsync(c.inv, c.attempt, submit, func(st *RetryAttemptState) {
			complete(c.finish(st))
		})
	})
	if err != nil {
		complete(nil, err)
	}
	return f
}
