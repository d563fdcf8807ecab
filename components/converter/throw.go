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
	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/utils/cast"
)

// ThrowRule maps a predicate to a declared error.
type ThrowRule struct {
	When    string
	Code    string
	Message string
}

// Throw raises *types.DeclaredError for the first rule whose predicate holds.
// Rules see the response context, and on final failures also error and errorKind.
type Throw struct {
	Rules []ThrowRule
}

// NewThrow builds rules from throw markers.
func NewThrow(markers []types.Marker) *Throw {
	t := &Throw{}
	for _, m := range markers {
		t.Rules = append(t.Rules, ThrowRule{
			When:    m.Get(types.AttrWhen, m.Get(types.AttrValue, "")),
			Code:    m.Get(types.AttrCode, ""),
			Message: m.Get(types.AttrMessage, ""),
		})
	}
	return t
}

// CheckResponse evaluates the rules against a received response.
func (t *Throw) CheckResponse(inv *types.Invocation, resp *types.Response) error {
	if resp == nil {
		return nil
	}
	if resp.Stream != nil {
		// streamed bodies stay unread; rules see status and headers only
		return t.check(inv, resp, ResponseContext(inv, resp), nil)
	}
	if err := readBody(resp); err != nil {
		return err
	}
	return t.check(inv, resp, ResponseContext(inv, resp), nil)
}

// CheckFailure evaluates the rules against a final failure. It returns the declared
// error of the first match, wrapping cause, or cause itself.
func (t *Throw) CheckFailure(inv *types.Invocation, resp *types.Response, cause error) error {
	if resp != nil && resp.Stream == nil {
		_ = readBody(resp)
	}
	ctx := ResponseContext(inv, resp).WithAll(map[string]any{
		types.VarError:     cause.Error(),
		types.VarErrorKind: types.KindOf(cause).String(),
	})
	if err := t.check(inv, resp, ctx, cause); err != nil {
		return err
	}
	return cause
}

func (t *Throw) check(inv *types.Invocation, resp *types.Response, ctx *types.EvalContext, cause error) error {
	ev := evaluator(inv)
	for _, r := range t.Rules {
		ok, err := ev.Bool(r.When, ctx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		declared := &types.DeclaredError{Cause: cause}
		if resp != nil {
			declared.StatusCode = resp.StatusCode
		}
		if r.Code != "" {
			code, err := ev.Evaluate(r.Code, ctx, nil)
			if err != nil {
				return err
			}
			declared.Code = cast.ToString(code)
		}
		if r.Message != "" {
			msg, err := ev.String(r.Message, ctx)
			if err != nil {
				return err
			}
			declared.Message = msg
		}
		return declared
	}
	return nil
}
