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

package converter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/utils/el"
)

type stubMethod struct {
	effective   map[types.Concern]types.Marker
	accumulated map[types.Concern][]types.Marker
}

func (s *stubMethod) Name() string        { return "UserAPI.Get" }
func (s *stubMethod) Owner() reflect.Type { return nil }
func (s *stubMethod) Effective(c types.Concern) (types.Marker, bool) {
	m, ok := s.effective[c]
	return m, ok
}
func (s *stubMethod) Accumulated(c types.Concern) []types.Marker { return s.accumulated[c] }

// countingEvaluator records every evaluated text.
type countingEvaluator struct {
	*el.Evaluator
	seen []string
}

func (c *countingEvaluator) Bool(text string, ctx *types.EvalContext) (bool, error) {
	c.seen = append(c.seen, text)
	return c.Evaluator.Bool(text, ctx)
}

func newInvocation(ev types.Evaluator) *types.Invocation {
	cfg := types.NewConfig(types.WithEvaluator(ev), types.WithDownloadDir(os.TempDir()))
	return &types.Invocation{
		Ctx:     context.Background(),
		Method:  &stubMethod{},
		Attempt: 1,
		Eval: types.NewEvalContext(map[string]any{
			types.VarArgs:   []any{7},
			types.VarGlobal: map[string]any{"env": "test"},
		}),
		Config:  &cfg,
		Request: types.NewRequest(http.MethodGet, "http://example.com/users/7"),
	}
}

func jsonResponse(status int, body string) *types.Response {
	return &types.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}
}

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestDefault(t *testing.T) {
	inv := newInvocation(el.NewEvaluator(8))
	d := &Default{}

	v, err := d.Convert(inv, jsonResponse(200, `{"id":1,"name":"ann"}`), reflect.TypeOf(&user{}))
	require.NoError(t, err)
	assert.Equal(t, &user{ID: 1, Name: "ann"}, v)

	v, err = d.Convert(inv, jsonResponse(200, `{"id":1}`), reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, v)

	v, err = d.Convert(inv, jsonResponse(204, ``), reflect.TypeOf(user{}))
	require.NoError(t, err)
	assert.Equal(t, user{}, v)

	_, err = d.Convert(inv, jsonResponse(404, `{"error":"nope"}`), reflect.TypeOf(user{}))
	var se *types.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.StatusCode)
	assert.Equal(t, types.KindConversion, types.KindOf(err))

	_, err = d.Convert(inv, jsonResponse(500, ``), nil)
	assert.True(t, errors.As(err, &se))

	_, err = d.Convert(inv, jsonResponse(200, `{"id":"x"}`), reflect.TypeOf(user{}))
	var ce *types.ConversionError
	assert.True(t, errors.As(err, &ce))

	resp := &types.Response{StatusCode: 200, Stream: io.NopCloser(strings.NewReader("streamed"))}
	v, err = d.Convert(inv, resp, reflect.TypeOf((*io.ReadCloser)(nil)).Elem())
	require.NoError(t, err)
	b, _ := io.ReadAll(v.(io.ReadCloser))
	assert.Equal(t, "streamed", string(b))

	raw := jsonResponse(500, "")
	v, err = d.Convert(inv, raw, reflect.TypeOf(raw))
	require.NoError(t, err)
	assert.Same(t, raw, v)

	v, err = d.Convert(inv, &types.Response{Value: map[string]any{"id": 3}, HasValue: true}, reflect.TypeOf(user{}))
	require.NoError(t, err)
	assert.Equal(t, user{ID: 3}, v)
}

func TestDirect(t *testing.T) {
	inv := newInvocation(el.NewEvaluator(8))
	d := &Direct{Result: "${body.data}"}
	v, err := d.Convert(inv, jsonResponse(200, `{"data":{"id":2,"name":"bo"}}`), reflect.TypeOf(user{}))
	require.NoError(t, err)
	assert.Equal(t, user{ID: 2, Name: "bo"}, v)

	d = &Direct{Result: "${status}-${request.method}-${global.env}-${args[0]}"}
	v, err = d.Convert(inv, jsonResponse(201, `{}`), reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "201-GET-test-7", v)

	d = &Direct{Result: "${body.data.name}"}
	_, err = d.Convert(inv, jsonResponse(200, `{"data":{"name":"x"}}`), reflect.TypeOf(0))
	var ce *types.ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "${body.data.name}", ce.Expr)
}

func TestJQAndScript(t *testing.T) {
	inv := newInvocation(el.NewEvaluator(8))
	j, err := NewJQ(".items | map(.id)")
	require.NoError(t, err)
	v, err := j.Convert(inv, jsonResponse(200, `{"items":[{"id":1},{"id":2}]}`), reflect.TypeOf([]int{}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v)

	_, err = NewJQ(".[")
	assert.Error(t, err)

	s, err := NewScript(*inv.Config, "function(resp) { return resp.body.items.length + resp.status }")
	require.NoError(t, err)
	v, err = s.Convert(inv, jsonResponse(200, `{"items":[1,2,3]}`), reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 203, v)

	s, err = NewScript(*inv.Config, "resp.body.name.toUpperCase()")
	require.NoError(t, err)
	v, err = s.Convert(inv, jsonResponse(200, `{"name":"ann"}`), reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "ANN", v)
}

func TestBranchSelection(t *testing.T) {
	ev := &countingEvaluator{Evaluator: el.NewEvaluator(16)}
	inv := newInvocation(ev)
	b := &Branch{Branches: []BranchRule{
		{When: "${false}", Result: "A"},
		{When: "${1 > 2}", Result: "B"},
		{When: "${status == 200}", Result: "C"},
		{When: "${true}", Result: "D"},
	}}
	v, err := b.Convert(inv, jsonResponse(200, `{}`), reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "C", v)
	assert.Equal(t, []string{"${false}", "${1 > 2}", "${status == 200}"}, ev.seen)
}

func TestBranchFallback(t *testing.T) {
	inv := newInvocation(el.NewEvaluator(16))
	def := "${body.code}"
	b := &Branch{Branches: []BranchRule{{When: "${status == 500}", Result: "x"}}, Default: &def}
	v, err := b.Convert(inv, jsonResponse(200, `{"code":9}`), reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	b = &Branch{
		Branches: []BranchRule{{When: "${status == 500}", Result: "x"}, {When: "${body.ok}", Result: "y"}},
		Failure:  "unexpected status ${status}",
	}
	_, err = b.Convert(inv, jsonResponse(418, `{"ok":false}`), reflect.TypeOf(""))
	var nb *types.NoBranchMatchedError
	require.True(t, errors.As(err, &nb))
	assert.Equal(t, []string{"${status == 500}", "${body.ok}"}, nb.Assertions)
	assert.Equal(t, "unexpected status 418", nb.Message)
	assert.Equal(t, "UserAPI.Get", nb.Method)
}

func TestThrow(t *testing.T) {
	inv := newInvocation(el.NewEvaluator(16))
	p := &Pipeline{
		Throw: NewThrow([]types.Marker{
			{Name: "throw", Attrs: map[string]string{"when": "${status == 404}", "code": "NOT_FOUND", "message": "user ${args[0]} not found"}},
			{Name: "throw", Attrs: map[string]string{"when": "${errorKind == 'transport'}", "code": "DOWN", "message": "${error}"}},
		}),
		Main: &Default{},
	}
	_, err := p.Convert(inv, jsonResponse(404, `{}`), reflect.TypeOf(user{}))
	var de *types.DeclaredError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "NOT_FOUND", de.Code)
	assert.Equal(t, "user 7 not found", de.Message)
	assert.Equal(t, 404, de.StatusCode)

	v, err := p.Convert(inv, jsonResponse(200, `{"id":5}`), reflect.TypeOf(user{}))
	require.NoError(t, err)
	assert.Equal(t, user{ID: 5}, v)

	cause := &types.TransportError{Reason: types.ReasonConnection, Method: "GET", URL: "http://x", Cause: errors.New("refused")}
	err = p.Failure(inv, nil, cause)
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "DOWN", de.Code)
	assert.ErrorIs(t, err, cause)

	other := errors.New("other")
	assert.Same(t, other, p.Failure(inv, nil, other))
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	inv := newInvocation(el.NewEvaluator(8))
	resp := &types.Response{
		StatusCode: 200,
		Header: http.Header{
			"Content-Type":        []string{"text/csv"},
			"Content-Disposition": []string{`attachment; filename="report.csv"`},
		},
		Stream:  io.NopCloser(strings.NewReader("a,b\n1,2\n")),
		Request: inv.Request,
	}
	d := &DownloadConverter{Dir: dir}
	v, err := d.Convert(inv, resp, reflect.TypeOf(&types.FileDescriptor{}))
	require.NoError(t, err)
	fd := v.(*types.FileDescriptor)
	assert.Equal(t, "report.csv", fd.Name)
	assert.Equal(t, filepath.Join(dir, "report.csv"), fd.Path)
	assert.Equal(t, int64(8), fd.Size)
	assert.Equal(t, "text/csv", fd.ContentType)
	assert.Nil(t, resp.Stream)

	// name from the URL path, directory from a template
	resp = &types.Response{StatusCode: 200, Body: []byte("x"), Request: inv.Request}
	d = &DownloadConverter{Dir: dir + "/${global.env}"}
	v, err = d.Convert(inv, resp, reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "test", "7"), v)

	_, err = d.Convert(inv, jsonResponse(403, `denied`), reflect.TypeOf(""))
	var se *types.StatusError
	assert.True(t, errors.As(err, &se))
}

func TestBuild(t *testing.T) {
	cfg := types.NewConfig()
	info := &stubMethod{effective: map[types.Concern]types.Marker{}, accumulated: map[types.Concern][]types.Marker{}}
	p, err := Build(info, &cfg)
	require.NoError(t, err)
	assert.IsType(t, &Default{}, p.Main)
	assert.Nil(t, p.Throw)

	info.effective[types.ConcernConvert] = types.Marker{Name: Result, Attrs: map[string]string{"value": "${body}"}}
	p, err = Build(info, &cfg)
	require.NoError(t, err)
	assert.Equal(t, &Direct{Result: "${body}"}, p.Main)

	info.accumulated[types.ConcernBranch] = []types.Marker{{Name: "branch", Attrs: map[string]string{"when": "${true}", "result": "1"}}}
	_, err = Build(info, &cfg)
	var cm *types.ConflictingMarkerError
	assert.True(t, errors.As(err, &cm))

	delete(info.effective, types.ConcernConvert)
	info.effective[types.ConcernDefault] = types.Marker{Name: "default", Attrs: map[string]string{"value": "0"}}
	p, err = Build(info, &cfg)
	require.NoError(t, err)
	b := p.Main.(*Branch)
	assert.Equal(t, []BranchRule{{When: "${true}", Result: "1"}}, b.Branches)
	assert.Equal(t, "0", *b.Default)

	info.accumulated[types.ConcernBranch] = nil
	info.effective[types.ConcernConvert] = types.Marker{Name: Convert, Attrs: map[string]string{"value": "nope"}}
	_, err = Build(info, &cfg)
	var um *types.UnknownMarkerError
	assert.True(t, errors.As(err, &um))
}
