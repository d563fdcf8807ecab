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
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/lucklike/luckliy-sub000/api/types"
)

// ResultKind is the shape of a method's return values.
type ResultKind int

const (
	// ResultValue func(...) (T, error)
	ResultValue ResultKind = iota
	// ResultError func(...) error
	ResultError
	// ResultFuture func(...) *Future[T]
	ResultFuture
)

var (
	contextType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	futureType     = reflect.TypeOf((*types.FutureHandle)(nil)).Elem()
	readCloserType = reflect.TypeOf((*io.ReadCloser)(nil)).Elem()
	readerType     = reflect.TypeOf((*io.Reader)(nil)).Elem()
)

// MethodDescriptor is the resolved metadata of one declared method. It is immutable
// once built and shared by every proxy bound to the same struct type.
// MethodDescriptor 方法元数据，构建后不可变
type MethodDescriptor struct {
	name  string
	owner reflect.Type
	// Index is the field index path of the func field within the owner.
	Index []int
	// Func is the declared func type.
	Func reflect.Type
	// HasContext is true when the first parameter is a context.Context.
	HasContext bool
	Params     []*types.ParameterDescriptor
	Result     ResultKind
	// ReturnType is T of (T, error) and *Future[T], nil for error-only methods.
	ReturnType reflect.Type
	// FutureType is the *Future[T] type of future methods.
	FutureType reflect.Type

	effective   map[types.Concern]types.Marker
	accumulated map[types.Concern][]types.Marker
}

var _ types.MethodInfo = (*MethodDescriptor)(nil)

func (d *MethodDescriptor) Name() string {
	return d.name
}

func (d *MethodDescriptor) Owner() reflect.Type {
	return d.owner
}

func (d *MethodDescriptor) Effective(concern types.Concern) (types.Marker, bool) {
	m, ok := d.effective[concern]
	return m, ok
}

func (d *MethodDescriptor) Accumulated(concern types.Concern) []types.Marker {
	return d.accumulated[concern]
}

// Streams reports whether the response body must be handed over unread:
// download conversion, or an io.ReadCloser / io.Reader return type.
func (d *MethodDescriptor) Streams() bool {
	if m, ok := d.effective[types.ConcernConvert]; ok && m.Name == "download" {
		return true
	}
	return d.ReturnType == readCloserType || d.ReturnType == readerType
}

// IsAsync reports whether calls are dispatched to a pool.
func (d *MethodDescriptor) IsAsync() bool {
	_, ok := d.effective[types.ConcernAsync]
	return ok
}

type descriptorKey struct {
	owner reflect.Type
	index string
}

// descriptors caches resolved methods process-wide. Entries are never evicted:
// the set of declared methods is finite.
var descriptors sync.Map

// Describe returns the cached descriptor of the func field at index within owner,
// resolving it with DefaultCatalogue on first use.
func Describe(owner reflect.Type, index []int) (*MethodDescriptor, error) {
	key := descriptorKey{owner: owner, index: indexKey(index)}
	if d, ok := descriptors.Load(key); ok {
		return d.(*MethodDescriptor), nil
	}
	d, err := Resolve(DefaultCatalogue, owner, index)
	if err != nil {
		return nil, err
	}
	actual, _ := descriptors.LoadOrStore(key, d)
	return actual.(*MethodDescriptor), nil
}

func indexKey(index []int) string {
	parts := make([]string, len(index))
	for i, n := range index {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// checkSignature validates the func type and fills the result fields of d.
func checkSignature(d *MethodDescriptor) error {
	ft := d.Func
	fail := func(reason string) error {
		return &types.SignatureError{Method: d.name, Type: ft, Reason: reason}
	}
	if ft.IsVariadic() {
		return fail("variadic parameters are not supported")
	}
	d.HasContext = ft.NumIn() > 0 && ft.In(0) == contextType
	switch ft.NumOut() {
	case 1:
		out := ft.Out(0)
		switch {
		case out == errorType:
			d.Result = ResultError
		case out.Kind() == reflect.Ptr && out.Implements(futureType):
			d.Result = ResultFuture
			d.FutureType = out
			d.ReturnType = reflect.Zero(out).Interface().(types.FutureHandle).ResultType()
		default:
			return fail("a single result must be error or *Future[T]")
		}
	case 2:
		if ft.Out(1) != errorType {
			return fail("the second result must be error")
		}
		d.Result = ResultValue
		d.ReturnType = ft.Out(0)
	default:
		return fail("want (T, error), error or *Future[T]")
	}
	return nil
}
