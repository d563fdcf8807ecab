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

// Package funcs holds the functions available to `${...}` templates and scripts.
package funcs

import (
	"encoding/base64"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/lucklike/luckliy-sub000/utils/json"
	"github.com/lucklike/luckliy-sub000/utils/str"
)

// TemplateFuncMap 内置模板函数
var TemplateFuncMap funcMap

// UdfMap 内置Js用户函数
var UdfMap funcMap

func init() {
	TemplateFuncMap.Register("escape", func(s string) string {
		var replacer = strings.NewReplacer(
			"\\", "\\\\", // 反斜杠
			"\"", "\\\"", // 双引号
			"\n", "\\n", // 换行符
			"\r", "\\r", // 回车符
			"\t", "\\t", // 制表符
		)
		return replacer.Replace(s)
	})
	TemplateFuncMap.RegisterAll(map[string]any{
		"urlEncode": url.QueryEscape,
		"urlDecode": func(s string) string {
			v, err := url.QueryUnescape(s)
			if err != nil {
				return s
			}
			return v
		},
		"pathEscape": url.PathEscape,
		"base64": func(v any) string {
			return base64.StdEncoding.EncodeToString([]byte(str.ToString(v)))
		},
		"base64Decode": func(s string) string {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return ""
			}
			return string(b)
		},
		"basicAuth": func(user, password string) string {
			return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
		},
		"uuid": func() string {
			return uuid.Must(uuid.NewV4()).String()
		},
		"env": os.Getenv,
		"join": func(items any, sep string) string {
			var parts []string
			switch v := items.(type) {
			case []string:
				parts = v
			case []any:
				for _, item := range v {
					parts = append(parts, str.ToString(item))
				}
			default:
				return str.ToString(items)
			}
			return strings.Join(parts, sep)
		},
		"now": func() int64 {
			return time.Now().UnixMilli()
		},
		"toJson": func(v any) string {
			b, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return string(b)
		},
		"str": str.ToString,
	})
	UdfMap.Register("uuid", func() string {
		return uuid.Must(uuid.NewV4()).String()
	})
}

type funcMap struct {
	v map[string]any
	sync.RWMutex
}

func (x *funcMap) Register(name string, value any) {
	x.Lock()
	defer x.Unlock()
	if x.v == nil {
		x.v = make(map[string]any)
	}
	x.v[name] = value
}

func (x *funcMap) RegisterAll(values map[string]any) {
	x.Lock()
	defer x.Unlock()
	if x.v == nil {
		x.v = make(map[string]any)
	}
	for k, v := range values {
		x.v[k] = v
	}
}

func (x *funcMap) UnRegister(name string) {
	x.Lock()
	defer x.Unlock()
	if x.v != nil {
		delete(x.v, name)
	}
}

func (x *funcMap) Get(name string) (any, bool) {
	x.RLock()
	defer x.RUnlock()
	if x.v != nil {
		f, ok := x.v[name]
		return f, ok
	}
	return nil, false
}

func (x *funcMap) GetAll() map[string]any {
	x.RLock()
	defer x.RUnlock()
	if x.v == nil {
		return nil
	}
	cp := make(map[string]any)
	for k, v := range x.v {
		cp[k] = v
	}
	return cp
}

// MergeInto copies the functions into dst without overwriting existing keys.
func (x *funcMap) MergeInto(dst map[string]any) {
	x.RLock()
	defer x.RUnlock()
	for k, v := range x.v {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

func (x *funcMap) Names() []string {
	x.RLock()
	defer x.RUnlock()
	var keys = make([]string, 0, len(x.v))
	for k := range x.v {
		keys = append(keys, k)
	}
	return keys
}
