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

package codec

import (
	"fmt"
	"io"
	"net/url"
	"reflect"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/lucklike/luckliy-sub000/utils/cast"
	"github.com/lucklike/luckliy-sub000/utils/json"
	"github.com/lucklike/luckliy-sub000/utils/maps"
	"github.com/lucklike/luckliy-sub000/utils/str"
)

// JSONCodec application/json
type JSONCodec struct{}

func (c *JSONCodec) Name() string        { return JSON }
func (c *JSONCodec) ContentType() string { return "application/json" }

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if p, ok := v.(*any); ok {
		out, err := json.DecodeAny(data)
		if err != nil {
			return err
		}
		*p = out
		return nil
	}
	return json.Unmarshal(data, v)
}

// YAMLCodec application/yaml
type YAMLCodec struct{}

func (c *YAMLCodec) Name() string        { return YAML }
func (c *YAMLCodec) ContentType() string { return "application/yaml" }

func (c *YAMLCodec) Encode(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return yaml.Marshal(v)
}

// Decode fills structs by their json tags through maps.WeakMap2Struct.
func (c *YAMLCodec) Decode(data []byte, v any) error {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	if p, ok := v.(*any); ok {
		*p = generic
		return nil
	}
	return maps.WeakMap2Struct(generic, v)
}

// FormCodec application/x-www-form-urlencoded
type FormCodec struct{}

func (c *FormCodec) Name() string        { return Form }
func (c *FormCodec) ContentType() string { return "application/x-www-form-urlencoded" }

// Encode accepts url.Values, string maps, structs and generic maps. Slice values
// become repeated fields. Keys are encoded in sorted order.
func (c *FormCodec) Encode(v any) ([]byte, error) {
	values, err := ToValues(v)
	if err != nil {
		return nil, err
	}
	return []byte(values.Encode()), nil
}

// Decode fills *url.Values, *map[string]string, *map[string]any, *any or a struct pointer.
func (c *FormCodec) Decode(data []byte, v any) error {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return err
	}
	switch p := v.(type) {
	case *url.Values:
		*p = values
		return nil
	case *map[string]string:
		m := make(map[string]string, len(values))
		for k := range values {
			m[k] = values.Get(k)
		}
		*p = m
		return nil
	}
	m := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			m[k] = vs[0]
		} else {
			m[k] = vs
		}
	}
	if p, ok := v.(*any); ok {
		*p = m
		return nil
	}
	return maps.WeakMap2Struct(m, v)
}

// ToValues flattens v into form values.
func ToValues(v any) (url.Values, error) {
	switch m := v.(type) {
	case nil:
		return url.Values{}, nil
	case url.Values:
		return m, nil
	case map[string][]string:
		return url.Values(m), nil
	case map[string]string:
		values := url.Values{}
		for k, s := range m {
			values.Set(k, s)
		}
		return values, nil
	case string:
		return url.ParseQuery(m)
	}
	generic := v
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() == reflect.Struct {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if generic, err = json.DecodeAny(b); err != nil {
			return nil, err
		}
	}
	fields, ok := generic.(map[string]any)
	if !ok {
		mv := reflect.ValueOf(generic)
		if mv.Kind() != reflect.Map || mv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot form-encode %T", v)
		}
		fields = make(map[string]any, mv.Len())
		iter := mv.MapRange()
		for iter.Next() {
			fields[iter.Key().String()] = iter.Value().Interface()
		}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, k := range keys {
		for _, s := range FieldValues(fields[k]) {
			values.Add(k, s)
		}
	}
	return values, nil
}

// FieldValues renders one field value, expanding slices and arrays.
func FieldValues(v any) []string {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, str.ToString(rv.Index(i).Interface()))
		}
		return out
	}
	return []string{str.ToString(v)}
}

// TextCodec text/plain
type TextCodec struct{}

func (c *TextCodec) Name() string        { return Text }
func (c *TextCodec) ContentType() string { return "text/plain; charset=utf-8" }

func (c *TextCodec) Encode(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return []byte(str.ToString(v)), nil
}

// Decode fills *string, *[]byte, *any or a pointer to a scalar.
func (c *TextCodec) Decode(data []byte, v any) error {
	switch p := v.(type) {
	case *string:
		*p = string(data)
		return nil
	case *[]byte:
		*p = append((*p)[:0], data...)
		return nil
	case *any:
		*p = string(data)
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || !cast.IsScalarKind(rv.Elem().Kind()) {
		return fmt.Errorf("text codec cannot decode into %T", v)
	}
	out, err := cast.ToScalar(string(data), rv.Elem().Type())
	if err != nil {
		return err
	}
	rv.Elem().Set(out)
	return nil
}

// RawCodec application/octet-stream
type RawCodec struct{}

func (c *RawCodec) Name() string        { return Raw }
func (c *RawCodec) ContentType() string { return "application/octet-stream" }

// Encode accepts []byte, string and io.Reader.
func (c *RawCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case io.Reader:
		return io.ReadAll(b)
	}
	return nil, fmt.Errorf("raw codec cannot encode %T", v)
}

// Decode fills *[]byte, *string or *any.
func (c *RawCodec) Decode(data []byte, v any) error {
	switch p := v.(type) {
	case *[]byte:
		*p = append((*p)[:0], data...)
	case *string:
		*p = string(data)
	case *any:
		*p = data
	default:
		return fmt.Errorf("raw codec cannot decode into %T", v)
	}
	return nil
}
