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

	"github.com/lucklike/luckliy-sub000/api/types"
)

// BranchRule is one (assertion, result) pair.
type BranchRule struct {
	When   string
	Result string
}

// Branch returns the result of the first branch whose assertion holds.
// Assertions are evaluated in declaration order and evaluation stops at the first match.
// Without a match the Default template is used, or the call fails with
// *types.NoBranchMatchedError listing every evaluated assertion.
type Branch struct {
	Branches []BranchRule
	Default  *string
	// Failure is a message template for the no-match error.
	Failure string
}

func (b *Branch) Convert(inv *types.Invocation, resp *types.Response, target reflect.Type) (any, error) {
	if err := readBody(resp); err != nil {
		return nil, err
	}
	ev := evaluator(inv)
	ctx := ResponseContext(inv, resp)
	evaluated := make([]string, 0, len(b.Branches))
	for _, br := range b.Branches {
		evaluated = append(evaluated, br.When)
		ok, err := ev.Bool(br.When, ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return ev.Evaluate(br.Result, ctx, target)
		}
	}
	if b.Default != nil {
		return ev.Evaluate(*b.Default, ctx, target)
	}
	noMatch := &types.NoBranchMatchedError{Method: inv.MethodName(), Assertions: evaluated}
	if b.Failure != "" {
		msg, err := ev.String(b.Failure, ctx)
		if err != nil {
			return nil, err
		}
		noMatch.Message = msg
	}
	return nil, noMatch
}
