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

// Package codec provides the built-in body codecs: json, yaml, form, text and raw.
//
// Package codec 内置请求体/响应体编解码器
package codec

import (
	"errors"
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/lucklike/luckliy-sub000/api/types"
)

const (
	JSON = "json"
	Form = "form"
	Text = "text"
	Raw  = "raw"
	YAML = "yaml"
)

// Registry is the default codec registry.
var Registry = new(CodecRegistry)

func init() {
	_ = Registry.Register(&JSONCodec{})
	_ = Registry.Register(&FormCodec{})
	_ = Registry.Register(&TextCodec{})
	_ = Registry.Register(&RawCodec{})
	_ = Registry.Register(&YAMLCodec{})
}

// CodecRegistry holds codecs by name.
type CodecRegistry struct {
	codecs map[string]types.Codec
	sync.RWMutex
}

// Register adds a codec. Names are unique.
func (r *CodecRegistry) Register(c types.Codec) error {
	r.Lock()
	defer r.Unlock()
	if r.codecs == nil {
		r.codecs = make(map[string]types.Codec)
	}
	if _, ok := r.codecs[c.Name()]; ok {
		return errors.New("the codec already exists. name=" + c.Name())
	}
	r.codecs[c.Name()] = c
	return nil
}

// Get returns the codec registered under name.
func (r *CodecRegistry) Get(name string) (types.Codec, bool) {
	r.RLock()
	defer r.RUnlock()
	c, ok := r.codecs[name]
	return c, ok
}

// Names returns the registered codec names, sorted.
func (r *CodecRegistry) Names() []string {
	r.RLock()
	defer r.RUnlock()
	names := make([]string, 0, len(r.codecs))
	for k := range r.codecs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a codec by name, preferring overrides over the registry.
func Lookup(name string, overrides map[string]types.Codec) (types.Codec, error) {
	if c, ok := overrides[name]; ok {
		return c, nil
	}
	if c, ok := Registry.Get(name); ok {
		return c, nil
	}
	return nil, fmt.Errorf("codec not found: %s", name)
}

// NameForContentType maps a Content-Type header to a codec name.
func NameForContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return JSON
	case mediaType == "application/yaml" || mediaType == "application/x-yaml" || mediaType == "text/yaml" || strings.HasSuffix(mediaType, "+yaml"):
		return YAML
	case mediaType == "application/x-www-form-urlencoded":
		return Form
	case strings.HasPrefix(mediaType, "text/") || mediaType == "application/xml" || strings.HasSuffix(mediaType, "+xml"):
		return Text
	default:
		return Raw
	}
}

// ForContentType returns the codec decoding bodies of contentType.
func ForContentType(contentType string, overrides map[string]types.Codec) types.Codec {
	c, err := Lookup(NameForContentType(contentType), overrides)
	if err != nil {
		c, _ = Registry.Get(Raw)
	}
	return c
}
