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

// Package resolver provides the parameter binding resolvers. Each resolver turns one
// argument into request fragments:
//
//   - pass-through: path, query, header, cookie, form. One value, one fragment; slices of
//     scalars bound to multi-valued locations give one fragment per element.
//   - expanding: queries, headers, cookies, forms. A slice, array, map or struct gives one
//     fragment per element named by a template, e.g. queries(name='tag[${index}]').
//   - body: the whole argument becomes the request body, encoded by the named codec.
//   - reference: any binding with ref=true looks the argument up as a variable name.
//   - var, ignore: no fragment.
//
// Package resolver 参数绑定解析器
package resolver

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/codec"
	"github.com/lucklike/luckliy-sub000/utils/maps"
	"github.com/lucklike/luckliy-sub000/utils/str"
)

// Binding marker names.
const (
	Path    = "path"
	Query   = "query"
	Header  = "header"
	Cookie  = "cookie"
	Form    = "form"
	Queries = "queries"
	Headers = "headers"
	Cookies = "cookies"
	Forms   = "forms"
	Body    = "body"
	Var     = "var"
	Ignore  = "ignore"
)

// Registry is the default resolver registry, keyed by binding marker name.
var Registry = new(ResolverRegistry)

func init() {
	for name, loc := range map[string]types.Location{
		Path: types.LocationPath, Query: types.LocationQuery, Header: types.LocationHeader,
		Cookie: types.LocationCookie, Form: types.LocationForm,
	} {
		_ = Registry.Register(name, loc, &PassThrough{Location: loc})
	}
	for name, loc := range map[string]types.Location{
		Queries: types.LocationQuery, Headers: types.LocationHeader,
		Cookies: types.LocationCookie, Forms: types.LocationForm,
	} {
		_ = Registry.Register(name, loc, &Expanding{Location: loc})
	}
	_ = Registry.Register(Body, types.LocationBody, &BodyResolver{})
	_ = Registry.Register(Var, types.LocationNone, None{})
	_ = Registry.Register(Ignore, types.LocationNone, None{})
}

type entry struct {
	resolver types.Resolver
	location types.Location
}

// ResolverRegistry holds resolvers by binding marker name.
type ResolverRegistry struct {
	resolvers map[string]entry
	sync.RWMutex
}

// Register adds a resolver placing fragments at location. Names are unique.
func (r *ResolverRegistry) Register(name string, location types.Location, resolver types.Resolver) error {
	r.Lock()
	defer r.Unlock()
	if r.resolvers == nil {
		r.resolvers = make(map[string]entry)
	}
	if _, ok := r.resolvers[name]; ok {
		return errors.New("the resolver already exists. name=" + name)
	}
	r.resolvers[name] = entry{resolver: resolver, location: location}
	return nil
}

// Get returns the resolver and location registered under name.
func (r *ResolverRegistry) Get(name string) (types.Resolver, types.Location, bool) {
	r.RLock()
	defer r.RUnlock()
	e, ok := r.resolvers[name]
	return e.resolver, e.location, ok
}

// Has reports whether name is a binding marker.
func (r *ResolverRegistry) Has(name string) bool {
	_, _, ok := r.Get(name)
	return ok
}

// For builds the resolver of a binding marker, wrapping it in a Reference when ref=true.
func (r *ResolverRegistry) For(m types.Marker) (types.Resolver, types.Location, error) {
	res, loc, ok := r.Get(m.Name)
	if !ok {
		return nil, types.LocationNone, fmt.Errorf("no resolver for marker %s", m.Name)
	}
	if m.Bool(types.AttrRef) {
		res = &Reference{Inner: res}
	}
	return res, loc, nil
}

// None resolves to no fragment. Used by var and ignore.
type None struct{}

func (None) Resolve(*types.ResolveContext, any) ([]types.Fragment, error) {
	return nil, nil
}

// PassThrough places the argument at Location under one name.
type PassThrough struct {
	Location types.Location
}

func (p *PassThrough) Resolve(rc *types.ResolveContext, value any) ([]types.Fragment, error) {
	if isNil(value) {
		return nil, nil
	}
	m := rc.Binding.Marker
	name, err := bindingName(rc, value)
	if err != nil {
		return nil, err
	}
	var items []any
	if p.Location != types.LocationPath && isList(value) {
		items = listItems(value)
	} else {
		items = []any{value}
	}
	replace := m.Bool(types.AttrReplace)
	out := make([]types.Fragment, 0, len(items))
	for i, item := range items {
		v, err := renderValue(rc, item, map[string]any{types.VarIndex: i, types.VarKey: i})
		if err != nil {
			return nil, err
		}
		// replace applies to the first element only so the rest accumulate
		out = append(out, types.Fragment{Name: name, Value: v, Location: p.Location, Replace: replace && i == 0})
	}
	return out, nil
}

// Expanding spreads a collection into one fragment per element.
// Names come from the name template with index, key and value bound;
// the default name is the map key or struct field name, or the parameter name for lists.
type Expanding struct {
	Location types.Location
}

type kv struct {
	key   string
	value any
}

func (e *Expanding) Resolve(rc *types.ResolveContext, value any) ([]types.Fragment, error) {
	if isNil(value) {
		return nil, nil
	}
	m := rc.Binding.Marker
	nameTmpl, hasName := m.Attr(types.AttrName)
	if !hasName {
		nameTmpl, hasName = m.Attr(types.AttrValue)
	}
	var pairs []kv
	list := false
	rv := reflect.Indirect(reflect.ValueOf(value))
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		list = true
		for i := 0; i < rv.Len(); i++ {
			pairs = append(pairs, kv{key: str.ToString(i), value: rv.Index(i).Interface()})
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, kv{key: str.ToString(iter.Key().Interface()), value: iter.Value().Interface()})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	case reflect.Struct:
		pairs = structFields(rv)
	default:
		return nil, fmt.Errorf("%s: %s expects a slice, array, map or struct, got %T", rc.Method, m.Name, value)
	}

	replace := m.Bool(types.AttrReplace)
	// replace applies to the first fragment of each name, later ones accumulate
	replaced := make(map[string]bool)
	var out []types.Fragment
	for i, p := range pairs {
		if isNil(p.value) {
			continue
		}
		vars := map[string]any{types.VarIndex: i, types.VarKey: p.key, types.VarValue: p.value}
		if list {
			vars[types.VarKey] = i
		}
		name := p.key
		if list {
			name = rc.Param.Name
		}
		if hasName {
			n, err := rc.Evaluator.String(nameTmpl, rc.Eval.WithAll(vars))
			if err != nil {
				return nil, err
			}
			name = n
		}
		items := []any{p.value}
		if isList(p.value) {
			items = listItems(p.value)
		}
		for _, item := range items {
			v, err := renderValue(rc, item, vars)
			if err != nil {
				return nil, err
			}
			first := replace && !replaced[name]
			replaced[name] = true
			out = append(out, types.Fragment{Name: name, Value: v, Location: e.Location, Replace: first})
		}
	}
	return out, nil
}

// BodyResolver makes the argument the request body. A value template, positional or
// value=..., selects what is sent, e.g. body('${arg.payload}').
type BodyResolver struct{}

func (b *BodyResolver) Resolve(rc *types.ResolveContext, value any) ([]types.Fragment, error) {
	m := rc.Binding.Marker
	v := value
	if tmpl, ok := m.Attr(types.AttrValue); ok {
		var err error
		if v, err = rc.Evaluator.Evaluate(tmpl, rc.Eval.With(types.VarArg, value), nil); err != nil {
			return nil, err
		}
	}
	if isNil(v) {
		return nil, nil
	}
	return []types.Fragment{{
		Name:     rc.Param.Name,
		Value:    v,
		Location: types.LocationBody,
		Codec:    m.Get(types.AttrCodec, codec.JSON),
	}}, nil
}

// Reference treats the argument as a variable name and resolves the variable's value with Inner.
type Reference struct {
	Inner types.Resolver
}

func (r *Reference) Resolve(rc *types.ResolveContext, value any) ([]types.Fragment, error) {
	key := strings.TrimSpace(str.ToString(value))
	if key == "" {
		return nil, &types.EvaluationError{Expr: key, Cause: errors.New("empty variable reference")}
	}
	v, ok := Lookup(rc.Eval, key)
	if !ok {
		return nil, &types.EvaluationError{Expr: key, Cause: fmt.Errorf("variable %q not found", key)}
	}
	return r.Inner.Resolve(rc, v)
}

// Lookup finds a possibly dotted variable, e.g. global.token.
func Lookup(ctx *types.EvalContext, key string) (any, bool) {
	if v, ok := ctx.Get(key); ok {
		return v, true
	}
	root, rest, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	base, ok := ctx.Get(root)
	if !ok {
		return nil, false
	}
	v := maps.Get(base, rest)
	return v, v != nil
}

// Static resolves a type or method level binding such as header('Accept: application/json')
// or query(name=page, value='${global.page}'). The value is a template evaluated against ctx.
func Static(m types.Marker, location types.Location, ctx *types.EvalContext, evaluator types.Evaluator) ([]types.Fragment, error) {
	name, valueTmpl, err := SplitStatic(m)
	if err != nil {
		return nil, err
	}
	v, err := evaluator.Evaluate(valueTmpl, ctx, nil)
	if err != nil {
		return nil, err
	}
	if isNil(v) {
		return nil, nil
	}
	replace := m.Bool(types.AttrReplace)
	items := []any{v}
	if location != types.LocationPath && isList(v) {
		items = listItems(v)
	}
	out := make([]types.Fragment, 0, len(items))
	for i, item := range items {
		out = append(out, types.Fragment{Name: name, Value: item, Location: location, Replace: replace && i == 0})
	}
	return out, nil
}

// SplitStatic returns the name and value template of a static binding.
func SplitStatic(m types.Marker) (string, string, error) {
	if name, ok := m.Attr(types.AttrName); ok {
		return name, m.Get(types.AttrValue, ""), nil
	}
	raw, ok := m.Attr(types.AttrValue)
	if !ok {
		return "", "", fmt.Errorf("static %s binding needs 'name: value' or name=..., value=...", m.Name)
	}
	idx := str.IndexTopLevel(raw, ':')
	if idx < 0 {
		idx = str.IndexTopLevel(raw, '=')
	}
	if idx <= 0 {
		return "", "", fmt.Errorf("static %s binding %q is not 'name: value'", m.Name, raw)
	}
	return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx+1:]), nil
}

// bindingName: name attr, else the positional value, else the parameter name.
// Names may be templates.
func bindingName(rc *types.ResolveContext, value any) (string, error) {
	m := rc.Binding.Marker
	name, ok := m.Attr(types.AttrName)
	if !ok {
		name, ok = m.Attr(types.AttrValue)
	}
	if !ok || name == "" {
		return rc.Param.Name, nil
	}
	if !str.CheckHasVar(name) {
		return name, nil
	}
	return rc.Evaluator.String(name, rc.Eval.With(types.VarArg, value))
}

// renderValue applies the value template of a named binding, if any.
func renderValue(rc *types.ResolveContext, item any, vars map[string]any) (any, error) {
	m := rc.Binding.Marker
	if _, named := m.Attr(types.AttrName); !named {
		return item, nil
	}
	tmpl, ok := m.Attr(types.AttrValue)
	if !ok {
		return item, nil
	}
	ctx := rc.Eval.With(types.VarArg, item)
	if len(vars) > 0 {
		ctx = ctx.WithAll(vars)
	}
	return rc.Evaluator.Evaluate(tmpl, ctx, nil)
}

func structFields(rv reflect.Value) []kv {
	var out []kv
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		omitEmpty := false
		if tag, ok := f.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				omitEmpty = omitEmpty || opt == "omitempty"
			}
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		out = append(out, kv{key: name, value: fv.Interface()})
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	return (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() != reflect.Uint8
}

func listItems(v any) []any {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
