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
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Meta is the carrier of type-level markers. Declare it as a blank field:
//
//	type UserAPI struct {
//	    _ lucky.Meta `lucky:"base(https://api.example.com); retry(max=3)"`
//	}
type Meta struct{}

// MetaType is the reflect type of Meta.
var MetaType = reflect.TypeOf(Meta{})

// Level is the declaration level of a marker.
// Level 标记声明的层级
type Level int

const (
	LevelType Level = iota
	LevelMethod
	LevelParam
)

func (l Level) String() string {
	switch l {
	case LevelType:
		return "type"
	case LevelMethod:
		return "method"
	case LevelParam:
		return "param"
	default:
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
}

// Concern groups markers that configure the same aspect of a call.
// Single-valued concerns resolve to one effective marker, repeatable concerns accumulate.
type Concern string

const (
	ConcernRequest     Concern = "request"
	ConcernBase        Concern = "base"
	ConcernTimeout     Concern = "timeout"
	ConcernRetry       Concern = "retry"
	ConcernAsync       Concern = "async"
	ConcernConvert     Concern = "convert"
	ConcernBranch      Concern = "branch"
	ConcernDefault     Concern = "default"
	ConcernFailure     Concern = "failure"
	ConcernThrow       Concern = "throw"
	ConcernInterceptor Concern = "interceptor"
	ConcernProhibit    Concern = "prohibit"
	ConcernVar         Concern = "var"
	ConcernHeader      Concern = "header"
	ConcernQuery       Concern = "query"
	ConcernCookie      Concern = "cookie"
	ConcernForm        Concern = "form"
	ConcernBinding     Concern = "binding"
)

// Well-known marker attribute keys.
const (
	AttrValue      = "value"
	AttrName       = "name"
	AttrMethod     = "method"
	AttrURL        = "url"
	AttrReplace    = "replace"
	AttrRef        = "ref"
	AttrCodec      = "codec"
	AttrWhen       = "when"
	AttrResult     = "result"
	AttrOrder      = "order"
	AttrCode       = "code"
	AttrMessage    = "message"
	AttrPool       = "pool"
	AttrWorkers    = "workers"
	AttrMax        = "max"
	AttrWait       = "wait"
	AttrMinWait    = "min"
	AttrMaxWait    = "maxwait"
	AttrMultiplier = "multiplier"
	AttrOn         = "on"
	AttrAccept     = "accept"
	AttrDecider    = "decider"
	AttrBackoff    = "backoff"
	AttrDir        = "dir"
)

// Marker is one declarative metadata tag together with its provenance.
// Marker 一个声明式标记及其来源信息
type Marker struct {
	// Name is the catalogue name, e.g. request, header, retry.
	Name string
	// Attrs holds the marker arguments.
	Attrs map[string]string
	// Level where the marker was declared.
	Level Level
	// Depth is the embedding depth of the declaring type. 0 is the bound struct itself.
	Depth int
	// Seq is the discovery sequence within the method, used for stable ordering.
	Seq int
	// Param is the parameter index for parameter level markers, -1 otherwise.
	Param int
	// Synthesized is true for defaults added during resolution. Expanded markers keep the provenance of their source.
	Synthesized bool
	// Origin names the marker this one was expanded from, if any.
	Origin string
}

// Attr returns the attribute value for key.
func (m Marker) Attr(key string) (string, bool) {
	v, ok := m.Attrs[key]
	return v, ok
}

// Get returns the attribute value for key, or def when absent.
func (m Marker) Get(key, def string) string {
	if v, ok := m.Attrs[key]; ok {
		return v
	}
	return def
}

// Bool reports whether the attribute is set to a truthy value.
func (m Marker) Bool(key string) bool {
	v, ok := m.Attrs[key]
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// SameAttrs reports whether both markers carry the same name and arguments.
func (m Marker) SameAttrs(o Marker) bool {
	if m.Name != o.Name || len(m.Attrs) != len(o.Attrs) {
		return false
	}
	for k, v := range m.Attrs {
		if ov, ok := o.Attrs[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// WithAttrs returns a copy of the marker carrying attrs merged over its own.
func (m Marker) WithAttrs(attrs map[string]string) Marker {
	merged := make(map[string]string, len(m.Attrs)+len(attrs))
	for k, v := range m.Attrs {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}
	m.Attrs = merged
	return m
}

func (m Marker) String() string {
	if len(m.Attrs) == 0 {
		return m.Name
	}
	keys := make([]string, 0, len(m.Attrs))
	for k := range m.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(m.Attrs[k]))
	}
	sb.WriteByte(')')
	return sb.String()
}

// MethodInfo exposes the resolved metadata of a bound method.
type MethodInfo interface {
	// Name returns the qualified method name, e.g. UserAPI.GetUser.
	Name() string
	// Owner returns the declaring struct type.
	Owner() reflect.Type
	// Effective returns the effective marker of a single-valued concern.
	Effective(concern Concern) (Marker, bool)
	// Accumulated returns the markers of a repeatable concern in resolution order.
	Accumulated(concern Concern) []Marker
}
