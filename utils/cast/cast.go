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

// Package cast converts loosely typed values, such as expression results and
// marker arguments, into Go scalars.
package cast

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/lucklike/luckliy-sub000/utils/str"
)

var durationType = reflect.TypeOf(time.Duration(0))

// ToInt converts an interface{} to int.
// It returns 0 if conversion fails.
func ToInt(value interface{}) int {
	v, _ := ToIntE(value)
	return v
}

// ToIntE converts an interface{} to int with error handling.
func ToIntE(value interface{}) (int, error) {
	v, err := ToInt64E(value)
	return int(v), err
}

// ToInt64 converts an interface{} to int64.
// It returns 0 if conversion fails.
func ToInt64(value interface{}) int64 {
	v, _ := ToInt64E(value)
	return v
}

// ToInt64E converts an interface{} to int64 with error handling.
// Returns 0 and an error if conversion fails.
func ToInt64E(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("unable to cast %v of type %T to int", value, value)
	}
}

// ToUint64E converts an interface{} to uint64 with error handling.
func ToUint64E(value interface{}) (uint64, error) {
	if s, ok := value.(string); ok {
		return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	}
	v, err := ToInt64E(value)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("unable to cast negative %v to uint", value)
	}
	return uint64(v), nil
}

// ToDurationE converts an interface{} to time.Duration with error handling.
// Strings are parsed with time.ParseDuration, bare integers in strings are milliseconds.
// Returns 0 and an error if conversion fails.
func ToDurationE(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		return time.ParseDuration(s)
	case float64:
		return time.Duration(v), nil
	default:
		i, err := ToInt64E(value)
		if err != nil {
			return 0, fmt.Errorf("unable to cast %v of type %T to duration", value, value)
		}
		return time.Duration(i), nil
	}
}

// ToBool converts an interface{} to bool.
// It returns false if conversion fails.
func ToBool(value interface{}) bool {
	v, _ := ToBoolE(value)
	return v
}

// ToBoolE converts an interface{} to bool with error handling.
// Returns false and an error if conversion fails.
func ToBoolE(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v != reflect.Zero(reflect.TypeOf(v)).Interface(), nil
	case float32:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, nil
		}
		return false, fmt.Errorf("unable to cast %v of type %T to bool", value, value)
	default:
		return false, fmt.Errorf("unable to cast %v of type %T to bool", value, value)
	}
}

// ToFloat64 converts an interface{} to float64.
// It returns 0 if conversion fails.
func ToFloat64(value interface{}) float64 {
	v, _ := ToFloat64E(value)
	return v
}

// ToFloat64E converts an interface{} to float64 with error handling.
// Returns 0 and an error if conversion fails.
func ToFloat64E(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		i, err := ToInt64E(value)
		if err != nil {
			return 0, fmt.Errorf("unable to cast %v of type %T to float64", value, value)
		}
		return float64(i), nil
	}
}

// ToString converts an interface{} to string.
// It returns empty string if conversion fails.
func ToString(input interface{}) string {
	v, _ := ToStringE(input)
	return v
}

// ToStringE converts an interface{} to string with error handling.
func ToStringE(input interface{}) (string, error) {
	return str.ToStringMaybeErr(input)
}

// ToStringSliceE converts a slice, array or comma separated string to []string.
func ToStringSliceE(input interface{}) ([]string, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	rv := reflect.ValueOf(input)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("unable to cast %v of type %T to []string", input, input)
	}
	out := make([]string, rv.Len())
	for i := range out {
		s, err := ToStringE(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// IsScalarKind reports whether values of kind k are converted by ToScalar.
func IsScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// ToScalar converts value into the scalar type t, including named types such as time.Duration.
func ToScalar(value interface{}, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	if t == durationType {
		d, err := ToDurationE(value)
		if err != nil {
			return out, err
		}
		out.SetInt(int64(d))
		return out, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		b, err := ToBoolE(value)
		if err != nil {
			return out, err
		}
		out.SetBool(b)
	case reflect.String:
		s, err := ToStringE(value)
		if err != nil {
			return out, err
		}
		out.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := ToInt64E(value)
		if err != nil {
			return out, err
		}
		if out.OverflowInt(i) {
			return out, fmt.Errorf("value %d overflows %v", i, t)
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := ToUint64E(value)
		if err != nil {
			return out, err
		}
		if out.OverflowUint(u) {
			return out, fmt.Errorf("value %d overflows %v", u, t)
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := ToFloat64E(value)
		if err != nil {
			return out, err
		}
		out.SetFloat(f)
	default:
		return out, fmt.Errorf("%v is not a scalar type", t)
	}
	return out, nil
}
