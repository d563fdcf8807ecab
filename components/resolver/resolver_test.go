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

package resolver

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/utils/el"
)

func resolve(t *testing.T, m types.Marker, value any, vars map[string]any) ([]types.Fragment, error) {
	t.Helper()
	res, loc, err := Registry.For(m)
	require.NoError(t, err)
	rc := &types.ResolveContext{
		Method:    "API.Call",
		Param:     &types.ParameterDescriptor{Name: "p0", Type: reflect.TypeOf(value)},
		Binding:   &types.Binding{Marker: m, Resolver: res, Location: loc},
		Eval:      types.NewEvalContext(vars),
		Evaluator: el.NewEvaluator(16),
	}
	return res.Resolve(rc, value)
}

func marker(name string, attrs map[string]string) types.Marker {
	return types.Marker{Name: name, Attrs: attrs, Level: types.LevelParam}
}

func TestPassThrough(t *testing.T) {
	frags, err := resolve(t, marker(Path, map[string]string{"value": "id"}), 7, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{{Name: "id", Value: 7, Location: types.LocationPath}}, frags)

	// unnamed binding uses the parameter name
	frags, err = resolve(t, marker(Query, nil), "go", nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{{Name: "p0", Value: "go", Location: types.LocationQuery}}, frags)

	// slices give one fragment per element
	frags, err = resolve(t, marker(Query, map[string]string{"value": "tag"}), []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{
		{Name: "tag", Value: "a", Location: types.LocationQuery},
		{Name: "tag", Value: "b", Location: types.LocationQuery},
	}, frags)

	// nil pointers are skipped
	var page *int
	frags, err = resolve(t, marker(Query, map[string]string{"value": "page"}), page, nil)
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestPassThroughValueTemplate(t *testing.T) {
	m := marker(Header, map[string]string{"name": "Authorization", "value": "Bearer ${arg}", "replace": "true"})
	frags, err := resolve(t, m, "t0k", nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{{Name: "Authorization", Value: "Bearer t0k", Location: types.LocationHeader, Replace: true}}, frags)
}

type filter struct {
	Name   string   `json:"name"`
	Tags   []string `json:"tags"`
	Hidden string   `json:"-"`
	Opt    string   `json:"opt,omitempty"`
	Limit  int
}

func TestExpanding(t *testing.T) {
	frags, err := resolve(t, marker(Queries, map[string]string{"name": "tag[${index}]"}), []string{"x", "y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{
		{Name: "tag[0]", Value: "x", Location: types.LocationQuery},
		{Name: "tag[1]", Value: "y", Location: types.LocationQuery},
	}, frags)

	// map keys are sorted
	frags, err = resolve(t, marker(Headers, nil), map[string]string{"X-B": "2", "X-A": "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{
		{Name: "X-A", Value: "1", Location: types.LocationHeader},
		{Name: "X-B", Value: "2", Location: types.LocationHeader},
	}, frags)

	frags, err = resolve(t, marker(Queries, nil), filter{Name: "n", Tags: []string{"a", "b"}, Hidden: "h", Limit: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{
		{Name: "name", Value: "n", Location: types.LocationQuery},
		{Name: "tags", Value: "a", Location: types.LocationQuery},
		{Name: "tags", Value: "b", Location: types.LocationQuery},
		{Name: "Limit", Value: 5, Location: types.LocationQuery},
	}, frags)

	frags, err = resolve(t, marker(Forms, map[string]string{"name": "f_${key}", "value": "${value * 10}"}), map[string]int{"a": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{{Name: "f_a", Value: 10, Location: types.LocationForm}}, frags)

	// replace drops earlier bindings of a name, not this binding's own elements
	frags, err = resolve(t, marker(Queries, map[string]string{"replace": "true"}), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{
		{Name: "p0", Value: "a", Location: types.LocationQuery, Replace: true},
		{Name: "p0", Value: "b", Location: types.LocationQuery},
		{Name: "p0", Value: "c", Location: types.LocationQuery},
	}, frags)
	frags, err = resolve(t, marker(Headers, map[string]string{"replace": "true"}), map[string][]string{"X-A": {"1", "2"}, "X-B": {"3"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{
		{Name: "X-A", Value: "1", Location: types.LocationHeader, Replace: true},
		{Name: "X-A", Value: "2", Location: types.LocationHeader},
		{Name: "X-B", Value: "3", Location: types.LocationHeader, Replace: true},
	}, frags)

	_, err = resolve(t, marker(Queries, nil), 3, nil)
	assert.Error(t, err)
}

func TestBodyVarIgnore(t *testing.T) {
	frags, err := resolve(t, marker(Body, map[string]string{"codec": "form"}), map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{{Name: "p0", Value: map[string]any{"a": 1}, Location: types.LocationBody, Codec: "form"}}, frags)

	frags, err = resolve(t, marker(Body, map[string]string{"value": "${arg.payload}"}), map[string]any{"payload": "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", frags[0].Value)
	assert.Equal(t, "json", frags[0].Codec)

	frags, err = resolve(t, marker(Var, map[string]string{"value": "id"}), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, frags)
	frags, err = resolve(t, marker(Ignore, nil), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestReference(t *testing.T) {
	vars := map[string]any{
		"global": map[string]any{"token": "secret"},
		"region": "eu",
	}
	frags, err := resolve(t, marker(Header, map[string]string{"value": "X-Token", "ref": "true"}), "global.token", vars)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{{Name: "X-Token", Value: "secret", Location: types.LocationHeader}}, frags)

	frags, err = resolve(t, marker(Query, map[string]string{"value": "r", "ref": "true"}), "region", vars)
	require.NoError(t, err)
	assert.Equal(t, "eu", frags[0].Value)

	_, err = resolve(t, marker(Query, map[string]string{"ref": "true"}), "missing", vars)
	var ee *types.EvaluationError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "missing", ee.Expr)
}

func TestStatic(t *testing.T) {
	ev := el.NewEvaluator(4)
	ctx := types.NewEvalContext(map[string]any{"global": map[string]any{"v": "2"}})

	frags, err := Static(types.Marker{Name: Header, Attrs: map[string]string{"value": "Accept: application/json"}}, types.LocationHeader, ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{{Name: "Accept", Value: "application/json", Location: types.LocationHeader}}, frags)

	frags, err = Static(types.Marker{Name: Query, Attrs: map[string]string{"name": "v", "value": "${global.v}", "replace": ""}}, types.LocationQuery, ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, []types.Fragment{{Name: "v", Value: "2", Location: types.LocationQuery, Replace: true}}, frags)

	frags, err = Static(types.Marker{Name: Query, Attrs: map[string]string{"value": "page=1"}}, types.LocationQuery, ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, "page", frags[0].Name)
	assert.Equal(t, "1", frags[0].Value)

	_, err = Static(types.Marker{Name: Header, Attrs: map[string]string{"value": "novalue"}}, types.LocationHeader, ctx, ev)
	assert.Error(t, err)
}
