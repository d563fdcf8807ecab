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

// Package jq runs jq queries over decoded response bodies with gojq.
package jq

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/lucklike/luckliy-sub000/utils/cache"
	"github.com/lucklike/luckliy-sub000/utils/json"
)

var queries = cache.NewLRU[string, *Query](cache.DefaultCapacity)

// Query is a compiled jq program. Safe for concurrent use.
type Query struct {
	src  string
	code *gojq.Code
}

// Compile parses and compiles src, reusing a cached program when possible.
func Compile(src string) (*Query, error) {
	return queries.GetOrLoad(src, func(src string) (*Query, error) {
		parsed, err := gojq.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("invalid jq expression %q: %w", src, err)
		}
		code, err := gojq.Compile(parsed)
		if err != nil {
			return nil, fmt.Errorf("jq compilation failed %q: %w", src, err)
		}
		return &Query{src: src, code: code}, nil
	})
}

// String returns the query source.
func (q *Query) String() string {
	return q.src
}

// Run executes the query against data. No result yields nil, one result is
// returned as is and several results are collected into a slice.
func (q *Query) Run(ctx context.Context, data any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	input, err := Normalize(data)
	if err != nil {
		return nil, err
	}
	iter := q.code.RunWithContext(ctx, input)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if haltErr, ok := err.(*gojq.HaltError); ok && haltErr.Value() == nil {
				break
			}
			return nil, err
		}
		results = append(results, v)
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Execute compiles src and runs it against data.
func Execute(ctx context.Context, src string, data any) (any, error) {
	if src == "" {
		return data, nil
	}
	q, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return q.Run(ctx, data)
}

// Normalize converts data into the value shapes gojq accepts: nil, bool, int,
// float64, string, []any and map[string]any. Byte slices are decoded as JSON.
func Normalize(data any) (any, error) {
	switch v := data.(type) {
	case nil, bool, int, float64, string, map[string]any, []any:
		return v, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return json.DecodeAny(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return json.DecodeAny(b)
	}
}
