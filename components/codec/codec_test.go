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
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucklike/luckliy-sub000/api/types"
)

type login struct {
	User  string   `json:"user"`
	Pass  string   `json:"pass,omitempty"`
	Roles []string `json:"roles"`
	Age   int      `json:"age"`
}

func TestNameForContentType(t *testing.T) {
	tests := map[string]string{
		"application/json":                  JSON,
		"application/json; charset=utf-8":   JSON,
		"application/problem+json":          JSON,
		"application/x-www-form-urlencoded": Form,
		"text/plain":                        Text,
		"text/html; charset=utf-8":          Text,
		"application/xml":                   Text,
		"application/octet-stream":          Raw,
		"application/yaml":                  YAML,
		"application/vnd.api+yaml":          YAML,
		"":                                  Raw,
	}
	for ct, want := range tests {
		assert.Equal(t, want, NameForContentType(ct), ct)
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{Form, JSON, Raw, Text, YAML}, Registry.Names())
	assert.Error(t, Registry.Register(&JSONCodec{}))

	_, err := Lookup("msgpack", nil)
	assert.Error(t, err)

	custom := &TextCodec{}
	c, err := Lookup(JSON, map[string]types.Codec{JSON: custom})
	require.NoError(t, err)
	assert.Same(t, custom, c)
}

func TestJSONCodec(t *testing.T) {
	c := &JSONCodec{}
	b, err := c.Encode(login{User: "a&b", Roles: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, `{"user":"a&b","roles":["x"],"age":0}`, string(b))

	var out login
	require.NoError(t, c.Decode(b, &out))
	assert.Equal(t, "a&b", out.User)

	var generic any
	require.NoError(t, c.Decode([]byte(`{"n":1}`), &generic))
	assert.Equal(t, map[string]any{"n": float64(1)}, generic)
}

func TestFormCodec(t *testing.T) {
	c := &FormCodec{}
	b, err := c.Encode(login{User: "ann", Roles: []string{"a", "b"}, Age: 3})
	require.NoError(t, err)
	assert.Equal(t, "age=3&roles=a&roles=b&user=ann", string(b))

	b, err = c.Encode(map[string]any{"q": "a b", "n": 1})
	require.NoError(t, err)
	assert.Equal(t, "n=1&q=a+b", string(b))

	_, err = c.Encode(42)
	assert.Error(t, err)

	var out login
	require.NoError(t, c.Decode([]byte("user=ann&age=7&roles=a&roles=b"), &out))
	assert.Equal(t, login{User: "ann", Age: 7, Roles: []string{"a", "b"}}, out)

	var values url.Values
	require.NoError(t, c.Decode([]byte("a=1&a=2"), &values))
	assert.Equal(t, []string{"1", "2"}, values["a"])
}

func TestTextAndRawCodec(t *testing.T) {
	text := &TextCodec{}
	b, err := text.Encode(12)
	require.NoError(t, err)
	assert.Equal(t, "12", string(b))

	var n int64
	require.NoError(t, text.Decode([]byte("42"), &n))
	assert.Equal(t, int64(42), n)

	var s string
	require.NoError(t, text.Decode([]byte("hi"), &s))
	assert.Equal(t, "hi", s)

	raw := &RawCodec{}
	b, err = raw.Encode(strings.NewReader("stream"))
	require.NoError(t, err)
	assert.Equal(t, "stream", string(b))
	_, err = raw.Encode(1)
	assert.Error(t, err)

	var data []byte
	require.NoError(t, raw.Decode([]byte{1, 2}, &data))
	assert.Equal(t, []byte{1, 2}, data)
}

func TestYAMLCodec(t *testing.T) {
	c := &YAMLCodec{}
	b, err := c.Encode(map[string]any{"user": "ann", "roles": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "roles:\n    - a\n    - b\nuser: ann\n", string(b))

	var out login
	require.NoError(t, c.Decode([]byte("user: ann\nage: 7\nroles: [x]\n"), &out))
	assert.Equal(t, login{User: "ann", Age: 7, Roles: []string{"x"}}, out)

	var generic any
	require.NoError(t, c.Decode([]byte("n: 1"), &generic))
	assert.Equal(t, map[string]any{"n": 1}, generic)

	assert.Error(t, c.Decode([]byte("a: [1"), &generic))
}
