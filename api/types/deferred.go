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
)

// DeferredKind is the closed set of argument shapes seen before resolution.
type DeferredKind int

const (
	// DeferredEager a plain value.
	DeferredEager DeferredKind = iota
	// DeferredLazy a supplier computed on demand.
	DeferredLazy
	// DeferredFuture a handle completed elsewhere.
	DeferredFuture
)

// Supplier computes a value on demand.
type Supplier interface {
	Supply(ctx context.Context) (any, error)
}

// Lazy is a supplier declared as a function.
type Lazy[T any] func() (T, error)

// Supply implements Supplier.
func (l Lazy[T]) Supply(context.Context) (any, error) {
	if l == nil {
		return nil, nil
	}
	return l()
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ClassifyDeferred tells which variant v is. Functions without inputs returning T
// or (T, error) are lazy suppliers.
// A nil handle, such as a nil *Future[T], is an eager nil.
func ClassifyDeferred(v any) DeferredKind {
	if v == nil || isNilHandle(v) {
		return DeferredEager
	}
	switch v.(type) {
	case Awaitable:
		return DeferredFuture
	case Supplier:
		return DeferredLazy
	}
	if isSupplierFunc(reflect.TypeOf(v)) {
		return DeferredLazy
	}
	return DeferredEager
}

func isNilHandle(v any) bool {
	switch v.(type) {
	case Awaitable, Supplier:
	default:
		if !isSupplierFunc(reflect.TypeOf(v)) {
			return false
		}
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func isSupplierFunc(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 0 || t.IsVariadic() {
		return false
	}
	switch t.NumOut() {
	case 1:
		return t.Out(0) != errorType
	case 2:
		return t.Out(1) == errorType
	}
	return false
}

// UnwrapDeferred returns the underlying value, blocking until a future completes or ctx is done.
func UnwrapDeferred(ctx context.Context, v any) (any, error) {
	if v == nil || isNilHandle(v) {
		return nil, nil
	}
	switch ClassifyDeferred(v) {
	case DeferredFuture:
		return v.(Awaitable).Await(ctx)
	case DeferredLazy:
		if s, ok := v.(Supplier); ok {
			return s.Supply(ctx)
		}
		return callSupplierFunc(v)
	default:
		return v, nil
	}
}

func callSupplierFunc(v any) (any, error) {
	fv := reflect.ValueOf(v)
	if fv.IsNil() {
		return nil, nil
	}
	out := fv.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}
