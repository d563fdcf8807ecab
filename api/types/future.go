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
	"reflect"
	"sync"
)

// FutureHandle is the untyped view of a Future used by the dispatcher.
type FutureHandle interface {
	NewHandle() FutureHandle
	Complete(v any, err error)
	SetCancel(cancel context.CancelFunc)
	ResultType() reflect.Type
	Done() <-chan struct{}
}

// Awaitable is any deferred value that can be waited for.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// Future is the handle returned by asynchronous methods.
// Future 异步方法的返回句柄
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	cancel context.CancelFunc
	value  T
	err    error
}

// NewFuture creates an incomplete future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// CompletedFuture returns a future that is already done.
func CompletedFuture[T any](v T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Complete(v, err)
	return f
}

// Get waits for the result or for ctx to be done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Await implements Awaitable.
func (f *Future[T]) Await(ctx context.Context) (any, error) {
	return f.Get(ctx)
}

// Done is closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future completed.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Complete sets the result. Only the first call has effect.
func (f *Future[T]) Complete(v any, err error) {
	f.once.Do(func() {
		if err == nil && v != nil {
			if t, ok := v.(T); ok {
				f.value = t
			} else {
				err = &ConversionError{Value: v, Target: f.ResultType()}
			}
		}
		f.err = err
		close(f.done)
	})
}

// SetCancel attaches the cancel function of the running call.
func (f *Future[T]) SetCancel(cancel context.CancelFunc) {
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
}

// Cancel cancels the running call on a best effort basis. A pending backoff wait
// stops and no further attempt starts. Returns false if the future was already done.
func (f *Future[T]) Cancel() bool {
	if f.IsDone() {
		return false
	}
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	f.Complete(nil, ErrFutureCanceled)
	return true
}

// NewHandle creates a fresh future of the same type. It may be called on a nil *Future[T],
// which lets the dispatcher create futures from a reflect.Type.
func (f *Future[T]) NewHandle() FutureHandle {
	return NewFuture[T]()
}

// ResultType returns the reflect type of T.
func (f *Future[T]) ResultType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
