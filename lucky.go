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

// Package lucky binds declared HTTP APIs to working clients.
//
// # Usage
//
// An API is a struct whose func fields are its methods. Markers in struct tags describe
// the requests: `lucky:` tags on blank Meta fields apply to every method of the struct,
// `lucky:` tags on func fields to one method, and `params:` tags to its parameters,
// one `|` separated group per parameter.
//
//	type BaseAPI struct {
//		_ lucky.Meta `lucky:"base(https://api.example.com); header('Accept: application/json')"`
//	}
//
//	type UserAPI struct {
//		BaseAPI
//		_ lucky.Meta `lucky:"retry(max=3, wait=100ms); interceptor(requestId)"`
//
//		GetUser  func(ctx context.Context, id int) (*User, error) `lucky:"get(/users/{id})" params:"path(id)"`
//		Search   func(q string, tags []string) ([]User, error)   `lucky:"get(/users)" params:"query(q) | queries(name='tag[${index}]')"`
//		Create   func(u *User) (*User, error)                    `lucky:"post(/users); result('${body.data}')" params:"json"`
//		GetAsync func(id int) *lucky.Future[User]                `lucky:"get(/users/{id})" params:"path(id)"`
//	}
//
//	var api UserAPI
//	proxy, err := lucky.Bind(&api, types.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer proxy.Close()
//	user, err := api.GetUser(ctx, 1)
//
// Markers of embedded structs are inherited, the most derived declaration wins.
// A leading context.Context parameter carries cancellation and deadlines, it binds nothing.
//
// Supported signatures: func(...) (T, error), func(...) error and func(...) *lucky.Future[T].
package lucky

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/builtin/interceptor"
	"github.com/lucklike/luckliy-sub000/components/transport"
	"github.com/lucklike/luckliy-sub000/engine"
)

// Meta carries type-level markers in the lucky tag of a blank field.
type Meta = types.Meta

// Future is the result of asynchronous methods.
type Future[T any] = types.Future[T]

// Lazy is an argument computed when the call needs it.
type Lazy[T any] = types.Lazy[T]

// NewFuture creates an incomplete future.
func NewFuture[T any]() *Future[T] {
	return types.NewFuture[T]()
}

// RegisterMarker adds a meta-marker expanding to other markers, for example:
//
//	lucky.RegisterMarker("resilient", "retry(max=5, wait=200ms); interceptor(requestId)")
func RegisterMarker(name, expansion string, levels ...types.Level) error {
	return engine.RegisterMarker(name, expansion, levels...)
}

// Proxy holds the methods bound into one API struct.
// Proxy 代理对象
type Proxy struct {
	config  types.Config
	methods map[string]*engine.Method
	names   []string
}

// Bind fills every func field of the struct ptr points to that carries a `lucky` tag,
// embedded structs included. Fields without the tag are left alone.
//
// The default transport is the net/http transport and the built-in interceptors are
// available by name. Options override both.
func Bind(ptr any, opts ...types.Option) (*Proxy, error) {
	v := reflect.ValueOf(ptr)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, types.ErrNotPointerToStruct
	}
	defaults := []types.Option{types.WithTransport(transport.Default()), interceptor.WithBuiltins()}
	config, err := types.NewConfigE(append(defaults, opts...)...)
	if err != nil {
		return nil, err
	}
	p := &Proxy{config: config, methods: make(map[string]*engine.Method)}
	owner := v.Elem().Type()
	for _, f := range bindableFields(owner) {
		md, err := engine.Describe(owner, f.Index)
		if err != nil {
			p.Close()
			return nil, err
		}
		m, err := engine.NewMethod(md, &p.config)
		if err != nil {
			p.Close()
			return nil, err
		}
		v.Elem().FieldByIndex(f.Index).Set(m.MakeFunc())
		p.methods[f.Name] = m
		p.names = append(p.names, f.Name)
	}
	sort.Strings(p.names)
	return p, nil
}

// MustBind is Bind panicking on error.
func MustBind(ptr any, opts ...types.Option) *Proxy {
	p, err := Bind(ptr, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// bindableFields lists the tagged func fields of t, shallower fields first. A field
// shadowed by a shallower one of the same name is skipped, as Go's selector rules do.
func bindableFields(t reflect.Type) []reflect.StructField {
	var out []reflect.StructField
	seen := make(map[string]bool)
	level := []reflect.StructField{{Type: t}}
	visited := map[reflect.Type]bool{t: true}
	for len(level) > 0 {
		var next []reflect.StructField
		names := make(map[string]bool)
		for _, parent := range level {
			st := parent.Type
			for i := 0; i < st.NumField(); i++ {
				f := st.Field(i)
				f.Index = append(append([]int(nil), parent.Index...), i)
				if f.Anonymous && f.Type.Kind() == reflect.Struct {
					if !visited[f.Type] {
						visited[f.Type] = true
						next = append(next, f)
					}
					continue
				}
				if !f.IsExported() || f.Type.Kind() != reflect.Func || seen[f.Name] {
					continue
				}
				names[f.Name] = true
				if _, ok := f.Tag.Lookup(types.TagMarkers); !ok {
					continue
				}
				out = append(out, f)
			}
		}
		for n := range names {
			seen[n] = true
		}
		level = next
	}
	return out
}

// Invoke calls a bound method by field name with its binding arguments.
// The result is the method's value, or its future for future methods.
func (p *Proxy) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	m, ok := p.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrMethodNotFound, name)
	}
	return m.Call(ctx, args)
}

// Method returns the bound method of a field.
func (p *Proxy) Method(name string) (*engine.Method, bool) {
	m, ok := p.methods[name]
	return m, ok
}

// Methods returns the names of the bound fields, sorted.
func (p *Proxy) Methods() []string {
	return append([]string(nil), p.names...)
}

// Config returns the configuration the methods were bound with.
func (p *Proxy) Config() types.Config {
	return p.config
}

// Close releases the pools owned by the bound methods. The shared and configured pools are not touched.
func (p *Proxy) Close() {
	for _, m := range p.methods {
		m.Close()
	}
}
