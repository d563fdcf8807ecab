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

package maps

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Map2Struct Decode takes an input structure and uses reflection to translate it to
// the output structure. output must be a pointer to a map or struct.
// Duration strings such as "5s" are decoded into time.Duration fields.
func Map2Struct(input interface{}, output interface{}) error {
	return decode(input, output, "mapstructure", false)
}

// WeakMap2Struct is Map2Struct with weakly typed input and `json` tags,
// used to coerce decoded response bodies into declared types.
func WeakMap2Struct(input interface{}, output interface{}) error {
	return decode(input, output, "json", true)
}

func decode(input interface{}, output interface{}, tagName string, weak bool) error {
	config := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: weak,
		ZeroFields:       true,
		TagName:          tagName,
		Result:           output,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Get 获取map中的字段，支持嵌套字段查找，例如：address.city
// 如果字段不存在，返回nil
func Get(input interface{}, fieldName string) interface{} {
	if fieldName == "" {
		return nil
	}
	current := input
	for _, key := range strings.Split(fieldName, ".") {
		if key == "" {
			return nil
		}
		switch m := current.(type) {
		case map[string]interface{}:
			v, ok := m[key]
			if !ok {
				return nil
			}
			current = v
		case map[string]string:
			v, ok := m[key]
			if !ok {
				return nil
			}
			current = v
		default:
			rv := reflect.ValueOf(current)
			if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
				return nil
			}
			v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
			if !v.IsValid() {
				return nil
			}
			current = v.Interface()
		}
	}
	return current
}
