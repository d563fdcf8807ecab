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

package el

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/lucklike/luckliy-sub000/utils/cast"
	"github.com/lucklike/luckliy-sub000/utils/json"
	"github.com/lucklike/luckliy-sub000/utils/maps"
)

var bytesType = reflect.TypeOf([]byte(nil))

// Coerce converts v into a value of type t:
//   - assignable values are returned as is
//   - scalars, named scalars and time.Duration go through utils/cast
//   - pointers are coerced to their element and addressed
//   - json text decodes into structs, maps and slices
//   - maps and slices decode into structs, maps and slices with utils/maps
func Coerce(v any, t reflect.Type) (any, error) {
	if t == nil {
		return v, nil
	}
	rv, err := coerceValue(v, t)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

// CoerceValue is Coerce returning a reflect.Value of type t.
func CoerceValue(v any, t reflect.Type) (reflect.Value, error) {
	return coerceValue(v, t)
}

func coerceValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	vt := reflect.TypeOf(v)
	if vt.AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(reflect.ValueOf(v))
		return out, nil
	}
	switch t.Kind() {
	case reflect.Interface:
		return reflect.Value{}, fmt.Errorf("%v does not implement %v", vt, t)
	case reflect.Ptr:
		elem, err := coerceValue(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	}
	if t == bytesType {
		switch s := v.(type) {
		case string:
			return reflect.ValueOf([]byte(s)), nil
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(b), nil
		}
	}
	if cast.IsScalarKind(t.Kind()) {
		return cast.ToScalar(v, t)
	}
	if vt.Kind() == reflect.Ptr {
		pv := reflect.ValueOf(v)
		if pv.IsNil() {
			return reflect.Zero(t), nil
		}
		return coerceValue(pv.Elem().Interface(), t)
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		p := reflect.New(t)
		var raw []byte
		switch s := v.(type) {
		case string:
			raw = []byte(strings.TrimSpace(s))
		case []byte:
			raw = s
		}
		if raw != nil {
			if err := json.Unmarshal(raw, p.Interface()); err != nil {
				return reflect.Value{}, err
			}
			return p.Elem(), nil
		}
		if err := maps.WeakMap2Struct(v, p.Interface()); err != nil {
			return reflect.Value{}, err
		}
		return p.Elem(), nil
	}
	if vt.ConvertibleTo(t) {
		return reflect.ValueOf(v).Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported conversion from %v to %v", vt, t)
}
