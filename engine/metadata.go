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
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/resolver"
)

// Resolve builds the descriptor of the func field at index within owner without caching.
//
// Resolution runs in two passes. The first collects every reachable marker with its
// provenance: type level markers of owner and of the structs it embeds (depth 0 for
// owner, +1 per embedding), the field's method markers and its parameter markers,
// expanding meta-markers through the catalogue and adding synthesized defaults.
// The second groups markers by concern and selects:
//   - single-valued concerns: explicit beats synthesized, then method beats type,
//     then the lowest depth (most derived) wins; equally specific markers that
//     disagree are a ConflictingMarkerError
//   - repeatable concerns: accumulate supertype, type, then method
func Resolve(cat *Catalogue, owner reflect.Type, index []int) (*MethodDescriptor, error) {
	if owner.Kind() != reflect.Struct {
		return nil, types.ErrNotPointerToStruct
	}
	field := owner.FieldByIndex(index)
	d := &MethodDescriptor{
		name:  owner.Name() + "." + field.Name,
		owner: owner,
		Index: append([]int(nil), index...),
		Func:  field.Type,
	}
	if field.Type.Kind() != reflect.Func {
		return nil, &types.SignatureError{Method: d.name, Type: field.Type, Reason: "not a func field"}
	}
	if err := checkSignature(d); err != nil {
		return nil, err
	}

	c := &collector{cat: cat, method: d.name}
	if err := c.collectType(owner, 0, map[reflect.Type]bool{}); err != nil {
		return nil, err
	}
	if err := c.collectTag(field.Tag.Get(types.TagMarkers), types.LevelMethod, declaringDepth(index), -1); err != nil {
		return nil, err
	}
	if err := c.collectParams(d, field.Tag.Get(types.TagParams)); err != nil {
		return nil, err
	}
	if d.Result == ResultFuture && !c.has(types.ConcernAsync) {
		c.synthesize(types.Marker{Name: "async", Attrs: map[string]string{}, Level: types.LevelMethod, Param: -1})
	}

	var err error
	if d.effective, d.accumulated, err = c.resolveConcerns(); err != nil {
		return nil, err
	}
	req, ok := d.effective[types.ConcernRequest]
	if !ok || req.Get(types.AttrMethod, "") == "" {
		return nil, &types.MappingIncompleteError{Method: d.name, Concern: types.ConcernRequest}
	}
	if err = c.bindParams(d); err != nil {
		return nil, err
	}
	return d, nil
}

// declaringDepth is the embedding depth of the struct declaring the field at index.
func declaringDepth(index []int) int {
	return len(index) - 1
}

type collector struct {
	cat     *Catalogue
	method  string
	seq     int
	markers []types.Marker
	// params holds parameter markers by binding parameter index
	params map[int][]types.Marker
}

func (c *collector) collectType(t reflect.Type, depth int, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type == types.MetaType {
			if err := c.collectTag(f.Tag.Get(types.TagMarkers), types.LevelType, depth, -1); err != nil {
				return err
			}
			continue
		}
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			if err := c.collectType(ft, depth+1, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *collector) collectTag(tag string, level types.Level, depth, param int) error {
	parsed, err := ParseMarkers(tag)
	if err != nil {
		return &types.MarkerPlacementError{Method: c.method, Marker: tag, Level: level, Reason: err.Error()}
	}
	return c.add(parsed, level, depth, param)
}

func (c *collector) add(parsed []types.Marker, level types.Level, depth, param int) error {
	for _, m := range parsed {
		m.Level, m.Depth, m.Param = level, depth, param
		c.seq++
		m.Seq = c.seq
		expanded, err := c.cat.expand(c.method, m, 0)
		if err != nil {
			return err
		}
		for _, e := range expanded {
			if level == types.LevelParam {
				c.params[param] = append(c.params[param], e)
			} else {
				c.markers = append(c.markers, e)
			}
		}
	}
	return nil
}

func (c *collector) synthesize(m types.Marker) {
	c.seq++
	m.Seq = c.seq
	m.Synthesized = true
	if m.Level == types.LevelParam {
		c.params[m.Param] = append(c.params[m.Param], m)
		return
	}
	c.markers = append(c.markers, m)
}

func (c *collector) has(concern types.Concern) bool {
	for _, m := range c.markers {
		if c.cat.concernOf(m.Name, m.Level) == concern {
			return true
		}
	}
	return false
}

// collectParams creates the parameter descriptors and collects their markers.
func (c *collector) collectParams(d *MethodDescriptor, tag string) error {
	c.params = make(map[int][]types.Marker)
	first := 0
	if d.HasContext {
		first = 1
	}
	for i := first; i < d.Func.NumIn(); i++ {
		idx := i - first
		d.Params = append(d.Params, &types.ParameterDescriptor{
			Index:    idx,
			ArgIndex: i,
			Type:     d.Func.In(i),
			Name:     "p" + strconv.Itoa(idx),
		})
	}
	groups, err := ParseParamGroups(tag)
	if err != nil {
		return &types.MarkerPlacementError{Method: c.method, Marker: tag, Level: types.LevelParam, Reason: err.Error()}
	}
	if len(groups) > len(d.Params) {
		return &types.MarkerPlacementError{Method: c.method, Marker: tag, Level: types.LevelParam,
			Reason: fmt.Sprintf("%d parameter groups for %d parameters", len(groups), len(d.Params))}
	}
	for i, g := range groups {
		if err = c.add(g, types.LevelParam, 0, i); err != nil {
			return err
		}
	}
	for _, p := range d.Params {
		if len(c.params[p.Index]) == 0 {
			c.synthesize(types.Marker{Name: resolver.Var, Attrs: map[string]string{}, Level: types.LevelParam, Param: p.Index})
		}
	}
	return nil
}

// bindParams attaches resolvers to the parameter markers.
func (c *collector) bindParams(d *MethodDescriptor) error {
	for _, p := range d.Params {
		for _, m := range c.params[p.Index] {
			switch m.Name {
			case resolver.Ignore:
				p.Ignored = true
			case resolver.Var:
				if name := m.Get(types.AttrName, m.Get(types.AttrValue, "")); name != "" {
					p.Name = name
				}
			}
			res, loc, err := resolver.Registry.For(m)
			if err != nil {
				return &types.UnknownMarkerError{Method: c.method, Marker: m.Name, Detail: "resolver"}
			}
			p.Bindings = append(p.Bindings, types.Binding{Marker: m, Resolver: res, Location: loc})
		}
	}
	return nil
}

// resolveConcerns is the second pass.
func (c *collector) resolveConcerns() (map[types.Concern]types.Marker, map[types.Concern][]types.Marker, error) {
	groups := make(map[types.Concern][]types.Marker)
	for _, m := range c.markers {
		concern := c.cat.concernOf(m.Name, m.Level)
		groups[concern] = append(groups[concern], m)
	}
	effective := make(map[types.Concern]types.Marker)
	accumulated := make(map[types.Concern][]types.Marker)
	for concern, ms := range groups {
		if IsRepeatable(concern) {
			sort.SliceStable(ms, func(i, j int) bool {
				a, b := ms[i], ms[j]
				if a.Level != b.Level {
					return a.Level < b.Level
				}
				if a.Depth != b.Depth {
					return a.Depth > b.Depth
				}
				return a.Seq < b.Seq
			})
			accumulated[concern] = ms
			continue
		}
		sort.SliceStable(ms, func(i, j int) bool {
			return moreSpecific(ms[i], ms[j])
		})
		winner := ms[0]
		for _, other := range ms[1:] {
			if !sameSpecificity(winner, other) {
				break
			}
			if !other.SameAttrs(winner) {
				return nil, nil, &types.ConflictingMarkerError{Method: c.method, Concern: concern, Markers: []types.Marker{winner, other}}
			}
		}
		effective[concern] = winner
	}
	return effective, accumulated, nil
}

// moreSpecific orders single-valued candidates, the winner first.
func moreSpecific(a, b types.Marker) bool {
	if a.Synthesized != b.Synthesized {
		return !a.Synthesized
	}
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if a.Depth != b.Depth {
		return a.Depth < b.Depth
	}
	return a.Seq < b.Seq
}

func sameSpecificity(a, b types.Marker) bool {
	return a.Synthesized == b.Synthesized && a.Level == b.Level && a.Depth == b.Depth
}
