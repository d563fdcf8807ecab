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

package types

// EvalContext is the variable environment of expression evaluation for one call or attempt.
// Forks shadow their parent and never write through to it.
// EvalContext 表达式求值上下文，Fork 后的修改不会影响父上下文
type EvalContext struct {
	parent *EvalContext
	vars   map[string]any
}

// NewEvalContext creates a root context holding a copy of vars.
func NewEvalContext(vars map[string]any) *EvalContext {
	m := make(map[string]any, len(vars))
	for k, v := range vars {
		m[k] = v
	}
	return &EvalContext{vars: m}
}

// Fork returns a child context.
func (c *EvalContext) Fork() *EvalContext {
	return &EvalContext{parent: c, vars: make(map[string]any)}
}

// With returns a child context with one extra variable.
func (c *EvalContext) With(key string, value any) *EvalContext {
	child := c.Fork()
	child.vars[key] = value
	return child
}

// WithAll returns a child context with the given variables.
func (c *EvalContext) WithAll(vars map[string]any) *EvalContext {
	child := c.Fork()
	for k, v := range vars {
		child.vars[k] = v
	}
	return child
}

// Set sets a variable on this layer.
func (c *EvalContext) Set(key string, value any) {
	c.vars[key] = value
}

// Get looks the variable up through the parent chain.
func (c *EvalContext) Get(key string) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Vars returns a flattened copy of all visible variables.
func (c *EvalContext) Vars() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	var chain []*EvalContext
	for cur := c; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	out := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out[k] = v
		}
	}
	return out
}
