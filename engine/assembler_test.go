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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucklike/luckliy-sub000/api/types"
)

type assembleAPI struct {
	_ types.Meta `lucky:"base(http://api.example/v1/); var('region: eu'); header('Accept-Encoding: gzip'); header('X-Region: ${global.region}')"`

	Get       func(id string, tags []string) error       `lucky:"get(/users/{id})" params:"path(id)|query(tag)"`
	Replace   func() error                               `lucky:"get(/a); header('Accept-Encoding: br', replace=true)"`
	Append    func() error                               `lucky:"get(/a); header('Accept-Encoding: br')"`
	Unfilled  func() error                               `lucky:"get(/users/{id})"`
	Extra     func(id int) error                         `lucky:"get(/users)" params:"path(id)"`
	TwoBodies func(a, b map[string]any) error            `lucky:"post(/a)" params:"json|json"`
	BodyForm  func(a map[string]any, name string) error  `lucky:"post(/a)" params:"json|form(name)"`
	Create    func(u testUser) error                     `lucky:"post(/users); timeout(250)" params:"json"`
	Absolute  func() error                               `lucky:"get(http://other.example/x); timeout('${global.wait}')"`
	Expr      func(id int) error                         `lucky:"get('/users/${userId * 2}')" params:"var(userId)"`
	Cookies   func(sid string) error                     `lucky:"get(/a); cookie('lang: en')" params:"cookie(sid)"`
	Ignored   func(ctx context.Context, id int, x string) error `lucky:"get(/users/{id})" params:"path(id)|ignore"`
}

type noBaseAPI struct {
	Get func() error `lucky:"get(users)"`
}

func assembleCall(t *testing.T, owner any, field string, cfg *types.Config, args ...any) (*types.Request, error) {
	t.Helper()
	md, err := resolve(t, NewCatalogue(), owner, field)
	require.NoError(t, err)
	eval, err := NewEvalContext(md, cfg, args)
	require.NoError(t, err)
	inv := &types.Invocation{Ctx: context.Background(), Method: md, Args: args, Eval: eval, Config: cfg}
	return Assemble(md, inv)
}

func TestAssemble(t *testing.T) {
	req, err := assembleCall(t, assembleAPI{}, "Get", nil, "a b/c", []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "http://api.example/v1/users/a%20b%2Fc", req.URL)
	assert.Equal(t, []string{"x", "y"}, req.Query["tag"])
	assert.Equal(t, "eu", req.Header.Get("X-Region"))
	assert.Equal(t, []string{"gzip"}, req.Header.Values("Accept-Encoding"))
	assert.False(t, req.HasBody)
	assert.False(t, req.Stream)
}

func TestAssembleIsDeterministic(t *testing.T) {
	a, err := assembleCall(t, assembleAPI{}, "Get", nil, "7", []string{"x"})
	require.NoError(t, err)
	b, err := assembleCall(t, assembleAPI{}, "Get", nil, "7", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAssembleHeaderMerge(t *testing.T) {
	req, err := assembleCall(t, assembleAPI{}, "Replace", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"br"}, req.Header.Values("Accept-Encoding"))

	req, err = assembleCall(t, assembleAPI{}, "Append", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"gzip", "br"}, req.Header.Values("Accept-Encoding"))
}

func TestAssemblePathErrors(t *testing.T) {
	_, err := assembleCall(t, assembleAPI{}, "Unfilled", nil)
	var pe *types.PathSubstitutionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "id", pe.Placeholder)
	assert.Equal(t, types.KindAssembly, types.KindOf(err))

	_, err = assembleCall(t, assembleAPI{}, "Extra", nil, 1)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "id", pe.Placeholder)
}

func TestAssembleBodies(t *testing.T) {
	_, err := assembleCall(t, assembleAPI{}, "TwoBodies", nil, map[string]any{"a": 1}, map[string]any{"b": 2})
	var be *types.ConflictingBodyError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, types.KindAssembly, types.KindOf(err))

	_, err = assembleCall(t, assembleAPI{}, "BodyForm", nil, map[string]any{"a": 1}, "x")
	assert.True(t, errors.As(err, &be))

	req, err := assembleCall(t, assembleAPI{}, "Create", nil, testUser{ID: 1, Name: "ann"})
	require.NoError(t, err)
	assert.True(t, req.HasBody)
	assert.JSONEq(t, `{"id":1,"name":"ann"}`, string(req.Body))
	assert.Contains(t, req.ContentType, "json")
	assert.Equal(t, 250*time.Millisecond, req.Timeout)
}

func TestAssembleBaseAndTimeout(t *testing.T) {
	cfg := types.NewConfig(types.WithProperties(map[string]any{"wait": "2s"}))
	req, err := assembleCall(t, assembleAPI{}, "Absolute", &cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://other.example/x", req.URL)
	assert.Equal(t, 2*time.Second, req.Timeout)

	cfg = types.NewConfig()
	cfg.BaseURL = "http://fallback.example"
	cfg.Timeout = time.Second
	req, err = assembleCall(t, noBaseAPI{}, "Get", &cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://fallback.example/users", req.URL)
	assert.Equal(t, time.Second, req.Timeout)

	cfg.BaseURLProvider = baseURLFunc(func(inv *types.Invocation) (string, error) {
		return "http://provided.example/" + inv.MethodName(), nil
	})
	req, err = assembleCall(t, noBaseAPI{}, "Get", &cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://provided.example/noBaseAPI.Get/users", req.URL)
}

type baseURLFunc func(inv *types.Invocation) (string, error)

func (f baseURLFunc) ResolveBaseURL(inv *types.Invocation) (string, error) {
	return f(inv)
}

func TestAssembleExpressions(t *testing.T) {
	req, err := assembleCall(t, assembleAPI{}, "Expr", nil, 21)
	require.NoError(t, err)
	assert.Equal(t, "http://api.example/v1/users/42", req.URL)

	req, err = assembleCall(t, assembleAPI{}, "Cookies", nil, "s1")
	require.NoError(t, err)
	require.Len(t, req.Cookies, 2)
	assert.Equal(t, "lang", req.Cookies[0].Name)
	assert.Equal(t, "sid", req.Cookies[1].Name)
	assert.Equal(t, "s1", req.Cookies[1].Value)

	req, err = assembleCall(t, assembleAPI{}, "Ignored", nil, 3, "secret")
	require.NoError(t, err)
	assert.Equal(t, "http://api.example/v1/users/3", req.URL)
	assert.Empty(t, req.Query)
}
