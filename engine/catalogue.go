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
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/converter"
	"github.com/lucklike/luckliy-sub000/components/resolver"
)

var (
	typeAndMethod = []types.Level{types.LevelType, types.LevelMethod}
	methodOnly    = []types.Level{types.LevelMethod}
	paramOnly     = []types.Level{types.LevelParam}
	allLevels     = []types.Level{types.LevelType, types.LevelMethod, types.LevelParam}
)

// maxExpansionDepth bounds meta-marker expansion chains.
const maxExpansionDepth = 8

// repeatable concerns accumulate instead of resolving to one effective marker.
var repeatable = map[types.Concern]bool{
	types.ConcernHeader:      true,
	types.ConcernQuery:       true,
	types.ConcernCookie:      true,
	types.ConcernForm:        true,
	types.ConcernVar:         true,
	types.ConcernInterceptor: true,
	types.ConcernProhibit:    true,
	types.ConcernThrow:       true,
	types.ConcernBranch:      true,
	types.ConcernBinding:     true,
}

// IsRepeatable reports whether markers of the concern accumulate.
func IsRepeatable(c types.Concern) bool {
	return repeatable[c]
}

// MarkerDef is one entry of the marker catalogue.
// MarkerDef 标记目录中的一项
type MarkerDef struct {
	Name    string
	Concern types.Concern
	// Levels lists where the marker may be declared.
	Levels []types.Level
	// Expand rewrites a meta-marker into other markers. Nil for plain markers.
	Expand func(m types.Marker) ([]types.Marker, error)
}

// Allows reports whether the marker may be declared on level.
func (s MarkerDef) Allows(level types.Level) bool {
	for _, l := range s.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// Catalogue maps marker names to their concern, placement and expansion.
// It is read when descriptors are built, so registrations must happen before Bind.
type Catalogue struct {
	defs map[string]MarkerDef
	sync.RWMutex
}

// DefaultCatalogue holds the built-in markers and those added with RegisterMarker.
var DefaultCatalogue = NewCatalogue()

// NewCatalogue creates a catalogue with the built-in markers.
func NewCatalogue() *Catalogue {
	c := &Catalogue{defs: make(map[string]MarkerDef)}
	plain := func(name string, concern types.Concern, levels []types.Level) {
		c.defs[name] = MarkerDef{Name: name, Concern: concern, Levels: levels}
	}
	plain("request", types.ConcernRequest, methodOnly)
	plain("base", types.ConcernBase, typeAndMethod)
	plain("timeout", types.ConcernTimeout, typeAndMethod)
	plain("retry", types.ConcernRetry, typeAndMethod)
	plain("async", types.ConcernAsync, typeAndMethod)
	for _, name := range []string{converter.Result, converter.JQName, converter.Script, converter.Download, converter.Convert} {
		plain(name, types.ConcernConvert, typeAndMethod)
	}
	plain("branch", types.ConcernBranch, typeAndMethod)
	plain("default", types.ConcernDefault, typeAndMethod)
	plain("failure", types.ConcernFailure, typeAndMethod)
	plain("throw", types.ConcernThrow, typeAndMethod)
	plain("interceptor", types.ConcernInterceptor, typeAndMethod)
	plain("prohibit", types.ConcernProhibit, typeAndMethod)

	// static at type and method level, bindings at parameter level
	plain(resolver.Header, types.ConcernHeader, allLevels)
	plain(resolver.Query, types.ConcernQuery, allLevels)
	plain(resolver.Cookie, types.ConcernCookie, allLevels)
	plain(resolver.Form, types.ConcernForm, allLevels)
	plain(resolver.Var, types.ConcernVar, allLevels)
	for _, name := range []string{resolver.Path, resolver.Queries, resolver.Headers, resolver.Cookies,
		resolver.Forms, resolver.Body, resolver.Ignore} {
		plain(name, types.ConcernBinding, paramOnly)
	}

	for _, verb := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		http.MethodPatch, http.MethodHead, http.MethodOptions} {
		verb := verb
		c.defs[strings.ToLower(verb)] = MarkerDef{
			Name:    strings.ToLower(verb),
			Concern: types.ConcernRequest,
			Levels:  methodOnly,
			Expand: func(m types.Marker) ([]types.Marker, error) {
				return []types.Marker{rename(m, "request", map[string]string{
					types.AttrMethod: verb,
					types.AttrURL:    m.Get(types.AttrURL, m.Get(types.AttrValue, "")),
				}, types.AttrValue)}, nil
			},
		}
	}
	c.defs["noretry"] = MarkerDef{Name: "noretry", Concern: types.ConcernRetry, Levels: typeAndMethod,
		Expand: func(m types.Marker) ([]types.Marker, error) {
			return []types.Marker{rename(m, "retry", map[string]string{types.AttrMax: "1"})}, nil
		},
	}
	bodyAlias := func(name, codecName string) {
		c.defs[name] = MarkerDef{Name: name, Concern: types.ConcernBinding, Levels: paramOnly,
			Expand: func(m types.Marker) ([]types.Marker, error) {
				return []types.Marker{rename(m, resolver.Body, map[string]string{types.AttrCodec: codecName})}, nil
			},
		}
	}
	bodyAlias("json", "json")
	bodyAlias("yaml", "yaml")
	bodyAlias("form-body", "form")
	bodyAlias("text-body", "text")
	return c
}

// rename returns a copy of m named name carrying attrs over m's own, minus drop.
func rename(m types.Marker, name string, attrs map[string]string, drop ...string) types.Marker {
	out := m.WithAttrs(attrs)
	for _, k := range drop {
		delete(out.Attrs, k)
	}
	out.Origin = m.Name
	out.Name = name
	return out
}

// Register adds a marker. Names are unique.
func (c *Catalogue) Register(def MarkerDef) error {
	if def.Name == "" || !isIdent(def.Name) {
		return fmt.Errorf("invalid marker name %q", def.Name)
	}
	if len(def.Levels) == 0 {
		return errors.New("marker " + def.Name + " allows no level")
	}
	c.Lock()
	defer c.Unlock()
	def.Name = strings.ToLower(def.Name)
	if _, ok := c.defs[def.Name]; ok {
		return errors.New("the marker already exists. name=" + def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// RegisterMeta adds a meta-marker expanding to the markers of expansion, e.g.
//
//	RegisterMeta("jsonapi", "header('Accept: application/json'); retry(max=2)")
//
// Levels default to type and method.
func (c *Catalogue) RegisterMeta(name, expansion string, levels ...types.Level) error {
	targets, err := ParseMarkers(expansion)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("meta-marker " + name + " expands to nothing")
	}
	if len(levels) == 0 {
		levels = typeAndMethod
	}
	return c.Register(MarkerDef{
		Name:   name,
		Levels: levels,
		Expand: func(m types.Marker) ([]types.Marker, error) {
			out := make([]types.Marker, len(targets))
			for i, t := range targets {
				// the meta-marker's own arguments do not leak into its targets
				out[i] = rename(m, t.Name, nil)
				out[i].Attrs = t.WithAttrs(nil).Attrs
			}
			return out, nil
		},
	})
}

// Lookup returns the def of a marker name.
func (c *Catalogue) Lookup(name string) (MarkerDef, bool) {
	c.RLock()
	defer c.RUnlock()
	s, ok := c.defs[name]
	return s, ok
}

// Names returns the registered marker names, sorted.
func (c *Catalogue) Names() []string {
	c.RLock()
	defer c.RUnlock()
	names := make([]string, 0, len(c.defs))
	for n := range c.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// expand rewrites meta-markers recursively. Expanded markers keep the provenance of
// the marker they came from and record it in Origin.
func (c *Catalogue) expand(method string, m types.Marker, depth int) ([]types.Marker, error) {
	def, ok := c.Lookup(m.Name)
	if !ok {
		return nil, &types.UnknownMarkerError{Method: method, Marker: m.Name}
	}
	if !def.Allows(m.Level) {
		return nil, &types.MarkerPlacementError{Method: method, Marker: m.Name, Level: m.Level}
	}
	if def.Expand == nil {
		return []types.Marker{m}, nil
	}
	if depth >= maxExpansionDepth {
		return nil, &types.MarkerPlacementError{Method: method, Marker: m.Name, Level: m.Level, Reason: "meta-marker expansion too deep"}
	}
	targets, err := def.Expand(m)
	if err != nil {
		return nil, &types.MarkerPlacementError{Method: method, Marker: m.Name, Level: m.Level, Reason: err.Error()}
	}
	var out []types.Marker
	for _, t := range targets {
		expanded, err := c.expand(method, t, depth+1)
		if err != nil {
			return nil, err
		}
		for _, e := range expanded {
			if depth == 0 {
				e.Origin = m.Name
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// concernOf returns the concern markers of name are grouped under on level.
func (c *Catalogue) concernOf(name string, level types.Level) types.Concern {
	if level == types.LevelParam {
		return types.ConcernBinding
	}
	def, _ := c.Lookup(name)
	return def.Concern
}

// RegisterMarker adds a meta-marker to DefaultCatalogue.
// RegisterMarker 注册自定义组合标记
func RegisterMarker(name, expansion string, levels ...types.Level) error {
	return DefaultCatalogue.RegisterMeta(name, expansion, levels...)
}
