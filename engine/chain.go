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
	"fmt"
	"sort"
	"strconv"

	"github.com/lucklike/luckliy-sub000/api/types"
	lruntime "github.com/lucklike/luckliy-sub000/utils/runtime"
)

// AttemptResult is what one pass through the chain produced.
type AttemptResult struct {
	Response *types.Response
	Err      error
	// Kind is OutcomeContinue when the transport ran.
	Kind types.OutcomeKind
}

// Chain is the ordered interceptors of one bound method. It is built once and shared
// by all calls of the method.
// Chain 拦截器链，按 Order 升序执行，Order 相同时按注册顺序
type Chain struct {
	regs []types.InterceptorRegistration
}

// NewChain orders registrations ascending by Order, ties broken by registration order.
func NewChain(regs []types.InterceptorRegistration) *Chain {
	sorted := append([]types.InterceptorRegistration(nil), regs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return &Chain{regs: sorted}
}

// BuildChain collects the global interceptors of cfg and the interceptor markers of the
// method, type level first, and drops every registration named by a prohibit marker.
func BuildChain(info types.MethodInfo, cfg *types.Config) (*Chain, error) {
	prohibited := make(map[string]bool)
	for _, m := range info.Accumulated(types.ConcernProhibit) {
		prohibited[m.Get(types.AttrName, m.Get(types.AttrValue, ""))] = true
	}
	var regs []types.InterceptorRegistration
	add := func(r types.InterceptorRegistration) {
		if !prohibited[r.Name] {
			regs = append(regs, r)
		}
	}
	if cfg != nil {
		for _, r := range cfg.Interceptors {
			if r.Name == "" {
				r.Name = interceptorName(r.Interceptor)
			}
			add(r)
		}
	}
	for _, m := range info.Accumulated(types.ConcernInterceptor) {
		name := m.Get(types.AttrName, m.Get(types.AttrValue, ""))
		i, err := lookupInterceptor(info, cfg, name, m)
		if err != nil {
			return nil, err
		}
		order := i.Order()
		if v, ok := m.Attr(types.AttrOrder); ok {
			if order, err = strconv.Atoi(v); err != nil {
				return nil, &types.MarkerPlacementError{Method: info.Name(), Marker: m.String(), Level: m.Level, Reason: "order must be an integer"}
			}
		}
		scope := types.ScopeMethod
		if m.Level == types.LevelType {
			scope = types.ScopeType
		}
		add(types.InterceptorRegistration{Name: name, Interceptor: i, Order: order, Scope: scope, When: m.Get(types.AttrWhen, "")})
	}
	return NewChain(regs), nil
}

func lookupInterceptor(info types.MethodInfo, cfg *types.Config, name string, m types.Marker) (types.Interceptor, error) {
	if cfg != nil {
		if i, ok := cfg.NamedInterceptors[name]; ok {
			return i, nil
		}
		if f, ok := cfg.InterceptorFactories[name]; ok {
			i, err := f(m.Attrs)
			if err != nil {
				return nil, &types.MarkerPlacementError{Method: info.Name(), Marker: m.String(), Level: m.Level, Reason: err.Error()}
			}
			return i, nil
		}
	}
	return nil, &types.UnknownMarkerError{Method: info.Name(), Marker: name, Detail: "interceptor"}
}

func interceptorName(i types.Interceptor) string {
	if n, ok := i.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", i)
}

// Registrations returns the ordered registrations.
func (c *Chain) Registrations() []types.InterceptorRegistration {
	return c.regs
}

// applicable filters out registrations suppressed for this attempt by their when
// expression or their PointCut.
func (c *Chain) applicable(inv *types.Invocation) ([]types.InterceptorRegistration, error) {
	ev := evaluatorOf(inv.Config)
	out := make([]types.InterceptorRegistration, 0, len(c.regs))
	for _, r := range c.regs {
		if r.When != "" {
			ok, err := ev.Bool(r.When, inv.Eval)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		if pc, ok := r.Interceptor.(types.PointCut); ok && !pc.PointCut(inv) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Execute runs one attempt: before-hooks ascending, the transport unless a hook
// short-circuited or aborted, then after-hooks ascending on whatever outcome exists.
// inv.Request is frozen before the transport reads it.
func (c *Chain) Execute(inv *types.Invocation, transport types.Transport) AttemptResult {
	active, err := c.applicable(inv)
	if err != nil {
		return AttemptResult{Err: err, Kind: types.OutcomeAbort}
	}
	var res AttemptResult
	proceed := true
	for _, r := range active {
		b, ok := r.Interceptor.(types.BeforeInterceptor)
		if !ok {
			continue
		}
		out := runBefore(b, inv)
		switch out.Kind {
		case types.OutcomeShortCircuit:
			res = AttemptResult{Response: out.Response, Kind: types.OutcomeShortCircuit}
			proceed = false
		case types.OutcomeAbort:
			res = AttemptResult{Err: &types.InterceptorAbortError{Interceptor: r.Name, Cause: out.Err}, Kind: types.OutcomeAbort}
			proceed = false
		}
		if !proceed {
			break
		}
	}
	if proceed {
		res = execute(inv, transport)
	}
	if res.Response != nil && res.Response.Request == nil {
		res.Response.Request = inv.Request
	}
	for _, r := range active {
		if a, ok := r.Interceptor.(types.AfterInterceptor); ok {
			res.Response, res.Err = runAfter(a, inv, res.Response, res.Err)
		}
	}
	return res
}

func execute(inv *types.Invocation, transport types.Transport) AttemptResult {
	if transport == nil {
		return AttemptResult{Err: types.ErrNoTransport, Kind: types.OutcomeAbort}
	}
	inv.Request.Freeze()
	resp, err := transport.Execute(inv.Context(), inv.Request)
	return AttemptResult{Response: resp, Err: err}
}

func runBefore(b types.BeforeInterceptor, inv *types.Invocation) (out types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := lruntime.NewPanicError(r)
			inv.Logger().Printf("interceptor before-hook panic: %v\n%s", r, err.Stack)
			out = types.Abort(err)
		}
	}()
	return b.Before(inv)
}

func runAfter(a types.AfterInterceptor, inv *types.Invocation, resp *types.Response, err error) (outResp *types.Response, outErr error) {
	defer func() {
		if r := recover(); r != nil {
			perr := lruntime.NewPanicError(r)
			inv.Logger().Printf("interceptor after-hook panic: %v\n%s", r, perr.Stack)
			outResp, outErr = resp, perr
		}
	}()
	return a.After(inv, resp, err)
}
