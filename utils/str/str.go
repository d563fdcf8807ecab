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

// Package str provides string helpers used by tag parsing, templates and request assembly.
// Key features:
// - ToString: converts values to their request representation
// - SplitTopLevel: splits marker lists while respecting quotes and parentheses
// - Unquote: removes single quotes from marker arguments
package str

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lucklike/luckliy-sub000/utils/json"
)

const (
	VarPrefix = "${"
	VarSuffix = "}"
)

// ErrUnbalanced is returned for unterminated quotes or parentheses.
var ErrUnbalanced = errors.New("unbalanced quotes or parentheses")

// ToString input的值转成字符串,忽略错误
func ToString(input interface{}) string {
	v, _ := ToStringMaybeErr(input)
	return v
}

// ToStringMaybeErr input的值转成字符串
func ToStringMaybeErr(input interface{}) (string, error) {
	if input == nil {
		return "", nil
	}
	switch v := input.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case int8:
		return strconv.Itoa(int(v)), nil
	case uint8:
		return strconv.Itoa(int(v)), nil
	case int16:
		return strconv.Itoa(int(v)), nil
	case uint16:
		return strconv.Itoa(int(v)), nil
	case int32:
		return strconv.Itoa(int(v)), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case error:
		return v.Error(), nil
	case map[interface{}]interface{}:
		// 转换为 map[string]interface{}
		convertedInput := make(map[string]interface{})
		for k, value := range v {
			convertedInput[fmt.Sprintf("%v", k)] = value
		}
		newValue, err := json.Marshal(convertedInput)
		if err != nil {
			return "", err
		}
		return string(newValue), nil
	default:
		newValue, err := json.Marshal(input)
		if err != nil {
			return "", err
		}
		return string(newValue), nil
	}
}

// CheckHasVar 检查字符串是否有占位符
func CheckHasVar(str string) bool {
	i := strings.Index(str, VarPrefix)
	return i >= 0 && strings.Contains(str[i:], VarSuffix)
}

// Contains 检查切片中是否包含元素
func Contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

// SplitTopLevel splits s on sep, ignoring separators inside single quotes,
// parentheses and `${...}` blocks. Parts are trimmed, empty parts dropped.
// Example: SplitTopLevel("a(x;y); b('1;2')", ';') returns [a(x;y) b('1;2')].
func SplitTopLevel(s string, sep byte) ([]string, error) {
	return split(s, sep, false)
}

// SplitKeepEmpty is SplitTopLevel keeping empty parts, so that groups stay addressable by position.
func SplitKeepEmpty(s string, sep byte) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return split(s, sep, true)
}

func split(s string, sep byte, keepEmpty bool) ([]string, error) {
	var parts []string
	depth, braces := 0, 0
	inQuote := false
	start := 0
	appendPart := func(p string) {
		p = strings.TrimSpace(p)
		if p != "" || keepEmpty {
			parts = append(parts, p)
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			if c == '\\' {
				i++
			} else if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			inQuote = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, ErrUnbalanced
			}
		case c == '{':
			braces++
		case c == '}':
			if braces > 0 {
				braces--
			}
		case c == sep && depth == 0 && braces == 0:
			appendPart(s[start:i])
			start = i + 1
		}
	}
	if inQuote || depth != 0 {
		return nil, ErrUnbalanced
	}
	appendPart(s[start:])
	return parts, nil
}

// Unquote removes surrounding single quotes and resolves `\'` and `\\` escapes.
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return s
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\'' || s[i+1] == '\\') {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// IndexTopLevel returns the index of the first c outside single quotes, or -1.
func IndexTopLevel(s string, c byte) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch {
		case inQuote && s[i] == '\\':
			i++
		case s[i] == '\'':
			inQuote = !inQuote
		case !inQuote && s[i] == c:
			return i
		}
	}
	return -1
}
