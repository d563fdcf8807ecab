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
	"reflect"
	"strings"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/utils/jq"
	"github.com/lucklike/luckliy-sub000/utils/js"
)

// Direct evaluates one template against the response context, e.g. result('${body.data}').
type Direct struct {
	Result string
}

func (d *Direct) Convert(inv *types.Invocation, resp *types.Response, target reflect.Type) (any, error) {
	if err := readBody(resp); err != nil {
		return nil, err
	}
	ctx := ResponseContext(inv, resp)
	if target == nil {
		// error-only methods still evaluate for side effects and errors
		_, err := evaluator(inv).Evaluate(d.Result, ctx, nil)
		return nil, err
	}
	return evaluator(inv).Evaluate(d.Result, ctx, target)
}

// JQ runs a jq query over the decoded body, e.g. jq('.data.items | map(.id)').
type JQ struct {
	query *jq.Query
}

// NewJQ compiles the query.
func NewJQ(src string) (*JQ, error) {
	q, err := jq.Compile(src)
	if err != nil {
		return nil, err
	}
	return &JQ{query: q}, nil
}

func (j *JQ) Convert(inv *types.Invocation, resp *types.Response, target reflect.Type) (any, error) {
	if err := readBody(resp); err != nil {
		return nil, err
	}
	v, err := j.query.Run(inv.Context(), DecodeBody(inv, resp))
	if err != nil {
		return nil, conversionError(j.query.String(), nil, target, err)
	}
	return coerce(j.query.String(), v, target)
}

const scriptFunc = "__convert"

// ScriptConverter calls a JavaScript function with the response context, e.g.
// script('function(resp) { return resp.body.items.length }'). A bare expression
// is wrapped as the function body with resp in scope.
type ScriptConverter struct {
	src    string
	engine *js.GojaJsEngine
}

// NewScript compiles the script with the config's globals and UDFs.
func NewScript(cfg types.Config, src string) (*ScriptConverter, error) {
	trimmed := strings.TrimSpace(src)
	var script string
	if strings.HasPrefix(trimmed, "function") || strings.Contains(trimmed, "=>") {
		script = "var " + scriptFunc + " = (" + trimmed + ");"
	} else {
		script = "function " + scriptFunc + "(resp) { return (" + trimmed + "); }"
	}
	engine, err := js.NewGojaJsEngine(cfg, script, nil)
	if err != nil {
		return nil, err
	}
	return &ScriptConverter{src: src, engine: engine}, nil
}

func (s *ScriptConverter) Convert(inv *types.Invocation, resp *types.Response, target reflect.Type) (any, error) {
	if err := readBody(resp); err != nil {
		return nil, err
	}
	vars := ResponseContext(inv, resp).Vars()
	delete(vars, types.VarResponse)
	v, err := s.engine.Execute(inv.Context(), scriptFunc, vars)
	if err != nil {
		return nil, conversionError(s.src, nil, target, err)
	}
	return coerce(s.src, v, target)
}
