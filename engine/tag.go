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
	"strings"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/utils/str"
)

// ParseMarkers parses one tag group such as
//
//	get(/users/{id}); header('Accept: application/json'); retry(max=3, wait=100ms)
//
// into markers. Level, depth and parameter index are filled in by the caller.
func ParseMarkers(tag string) ([]types.Marker, error) {
	parts, err := str.SplitTopLevel(tag, types.MarkerSeparator[0])
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", tag, err)
	}
	markers := make([]types.Marker, 0, len(parts))
	for _, p := range parts {
		m, err := ParseMarker(p)
		if err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, nil
}

// ParseParamGroups splits a params tag into one group per parameter. Empty groups are kept
// so that `|path(id)` leaves the first parameter unmarked.
func ParseParamGroups(tag string) ([][]types.Marker, error) {
	groups, err := str.SplitKeepEmpty(tag, types.ParamSeparator[0])
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", tag, err)
	}
	out := make([][]types.Marker, len(groups))
	for i, g := range groups {
		if out[i], err = ParseMarkers(g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ParseMarker parses `name` or `name(args)`. Arguments are comma separated `key=value`
// pairs or a single positional value, stored under "value". Keys are case-insensitive.
func ParseMarker(text string) (types.Marker, error) {
	text = strings.TrimSpace(text)
	m := types.Marker{Attrs: map[string]string{}, Param: -1}
	open := strings.IndexByte(text, '(')
	if open < 0 {
		if !isIdent(text) {
			return m, fmt.Errorf("invalid marker %q", text)
		}
		m.Name = strings.ToLower(text)
		return m, nil
	}
	if !strings.HasSuffix(text, ")") {
		return m, fmt.Errorf("invalid marker %q: missing ')'", text)
	}
	m.Name = strings.ToLower(strings.TrimSpace(text[:open]))
	if !isIdent(m.Name) {
		return m, fmt.Errorf("invalid marker name in %q", text)
	}
	args, err := str.SplitTopLevel(text[open+1:len(text)-1], ',')
	if err != nil {
		return m, fmt.Errorf("invalid marker %q: %w", text, err)
	}
	positional := 0
	for _, arg := range args {
		if eq := str.IndexTopLevel(arg, '='); eq > 0 {
			key := strings.ToLower(strings.TrimSpace(arg[:eq]))
			if isIdent(key) {
				m.Attrs[key] = str.Unquote(arg[eq+1:])
				continue
			}
		}
		positional++
		if positional > 1 {
			return m, fmt.Errorf("invalid marker %q: more than one positional argument, quote values containing ','", text)
		}
		m.Attrs[types.AttrValue] = str.Unquote(arg)
	}
	return m, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case i > 0 && (c == '-' || c >= '0' && c <= '9'):
		default:
			return false
		}
	}
	return true
}
