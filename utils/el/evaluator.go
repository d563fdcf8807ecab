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

package el

import (
	"reflect"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/builtin/funcs"
	"github.com/lucklike/luckliy-sub000/utils/cache"
	"github.com/lucklike/luckliy-sub000/utils/cast"
	"github.com/lucklike/luckliy-sub000/utils/str"
)

// DefaultEvaluator is the process-wide evaluator shared by all proxies.
var DefaultEvaluator = NewEvaluator(cache.DefaultCapacity)

var _ types.Evaluator = (*Evaluator)(nil)

// Evaluator compiles templates once, keeps them in a bounded LRU cache keyed by
// text and evaluates them against an evaluation context. Safe for concurrent use.
// Evaluator 带LRU缓存的表达式求值器
type Evaluator struct {
	cache *cache.LRU[string, Template]
}

// NewEvaluator creates an evaluator whose cache holds at most capacity templates.
func NewEvaluator(capacity int) *Evaluator {
	return &Evaluator{cache: cache.NewLRU[string, Template](capacity)}
}

// Cache exposes the template cache.
func (e *Evaluator) Cache() *cache.LRU[string, Template] {
	return e.cache
}

// Compile returns the cached template for text, compiling it on a miss.
// Plain text without `${` never enters the cache.
func (e *Evaluator) Compile(text string) (Template, error) {
	if !str.CheckHasVar(text) {
		return NewTemplate(text)
	}
	tmpl, err := e.cache.GetOrLoad(text, NewTemplate)
	if err != nil {
		return nil, &types.EvaluationError{Expr: text, Cause: err}
	}
	return tmpl, nil
}

// Evaluate evaluates text against ctx and coerces the result to expected.
// A nil expected returns the raw result. The context is never modified.
func (e *Evaluator) Evaluate(text string, ctx *types.EvalContext, expected reflect.Type) (any, error) {
	tmpl, err := e.Compile(text)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if tmpl.HasVar() {
		data = Env(ctx)
	}
	v, err := tmpl.Execute(data)
	if err != nil {
		return nil, &types.EvaluationError{Expr: text, Cause: err}
	}
	if expected == nil {
		return v, nil
	}
	out, err := Coerce(v, expected)
	if err != nil {
		return nil, &types.ConversionError{Expr: text, Value: v, Target: expected, Cause: err}
	}
	return out, nil
}

// Bool evaluates a predicate. A nil result is false.
func (e *Evaluator) Bool(text string, ctx *types.EvalContext) (bool, error) {
	v, err := e.Evaluate(text, ctx, nil)
	if err != nil {
		return false, err
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, &types.ConversionError{Expr: text, Value: v, Target: reflect.TypeOf(true), Cause: err}
	}
	return b, nil
}

// String evaluates text into a string.
func (e *Evaluator) String(text string, ctx *types.EvalContext) (string, error) {
	v, err := e.Evaluate(text, ctx, nil)
	if err != nil {
		return "", err
	}
	return str.ToString(v), nil
}

// Env returns the variables of ctx merged with the built-in template functions.
// Variables shadow functions of the same name.
func Env(ctx *types.EvalContext) map[string]any {
	data := ctx.Vars()
	funcs.TemplateFuncMap.MergeInto(data)
	return data
}
