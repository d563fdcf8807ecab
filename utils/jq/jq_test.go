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

package jq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	X int `json:"x"`
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		data       any
		want       any
		wantErr    bool
	}{
		{
			name: "empty expression returns data as-is",
			data: map[string]any{"foo": "bar"},
			want: map[string]any{"foo": "bar"},
		},
		{
			name:       "simple field extraction",
			expression: ".foo",
			data:       map[string]any{"foo": "bar"},
			want:       "bar",
		},
		{
			name:       "raw json body",
			expression: ".data.items[0].x",
			data:       []byte(`{"data":{"items":[{"x":1}]}}`),
			want:       float64(1),
		},
		{
			name:       "structs are normalized",
			expression: "map(.x)",
			data:       []item{{X: 1}, {X: 2}},
			want:       []any{float64(1), float64(2)},
		},
		{
			name:       "multiple results are collected",
			expression: ".[]",
			data:       []any{"a", "b"},
			want:       []any{"a", "b"},
		},
		{
			name:       "no result",
			expression: "empty",
			data:       map[string]any{},
			want:       nil,
		},
		{
			name:       "invalid expression",
			expression: ".[",
			data:       map[string]any{"foo": "bar"},
			wantErr:    true,
		},
		{
			name:       "runtime error",
			expression: ".foo + 1",
			data:       map[string]any{"foo": "bar"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Execute(context.Background(), tt.expression, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileCached(t *testing.T) {
	a, err := Compile(".a")
	require.NoError(t, err)
	b, err := Compile(".a")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, ".a", a.String())
}

func TestRunCanceled(t *testing.T) {
	q, err := Compile("def f: f; f")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Run(ctx, nil)
	assert.Error(t, err)
}
