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
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/codec"
	"github.com/lucklike/luckliy-sub000/components/resolver"
	"github.com/lucklike/luckliy-sub000/utils/cast"
	"github.com/lucklike/luckliy-sub000/utils/el"
	"github.com/lucklike/luckliy-sub000/utils/str"
)

// placeholder matches {name} path placeholders. `${` blocks are evaluated before.
var placeholder = regexp.MustCompile(`\{([^{}/?#]+)\}`)

var staticLocations = []struct {
	concern  types.Concern
	location types.Location
}{
	{types.ConcernHeader, types.LocationHeader},
	{types.ConcernQuery, types.LocationQuery},
	{types.ConcernCookie, types.LocationCookie},
	{types.ConcernForm, types.LocationForm},
}

func evaluatorOf(cfg *types.Config) types.Evaluator {
	if cfg != nil && cfg.Evaluator != nil {
		return cfg.Evaluator
	}
	return el.DefaultEvaluator
}

// NewEvalContext builds the variables of one call: args, method, attempt, global and
// every parameter under its expression name. Type and method level var('k: v') markers
// are evaluated in declaration order and added to global.
func NewEvalContext(md *MethodDescriptor, cfg *types.Config, args []any) (*types.EvalContext, error) {
	global := make(map[string]any)
	if cfg != nil {
		for k, v := range cfg.Properties {
			global[k] = v
		}
	}
	vars := map[string]any{
		types.VarArgs:    args,
		types.VarMethod:  md.Name(),
		types.VarAttempt: 1,
		types.VarGlobal:  global,
	}
	for _, p := range md.Params {
		if p.Index < len(args) {
			vars[p.Name] = args[p.Index]
		}
	}
	ctx := types.NewEvalContext(vars)
	ev := evaluatorOf(cfg)
	for _, m := range md.Accumulated(types.ConcernVar) {
		name, tmpl, err := resolver.SplitStatic(m)
		if err != nil {
			return nil, &types.EvaluationError{Expr: m.String(), Cause: err}
		}
		v, err := ev.Evaluate(tmpl, ctx, nil)
		if err != nil {
			return nil, err
		}
		global[name] = v
	}
	return ctx, nil
}

// Assemble builds the request of one call. inv.Args must hold the unwrapped binding
// arguments and inv.Eval the call variables. Static bindings of the type, then of the
// method, then the parameters in declaration order are merged into the request.
// The same arguments always produce the same request.
func Assemble(md *MethodDescriptor, inv *types.Invocation) (*types.Request, error) {
	ev := evaluatorOf(inv.Config)
	reqMarker, _ := md.Effective(types.ConcernRequest)
	verb, err := ev.String(reqMarker.Get(types.AttrMethod, ""), inv.Eval)
	if err != nil {
		return nil, err
	}
	rawURL, err := ev.String(reqMarker.Get(types.AttrURL, ""), inv.Eval)
	if err != nil {
		return nil, err
	}
	base, err := baseURL(md, inv, ev)
	if err != nil {
		return nil, err
	}

	a := &assembly{md: md, req: types.NewRequest(strings.ToUpper(verb), joinURL(base, rawURL))}
	if inv.Config != nil {
		a.codecs = inv.Config.Codecs
	}
	for _, s := range staticLocations {
		for _, m := range md.Accumulated(s.concern) {
			frags, err := resolver.Static(m, s.location, inv.Eval, ev)
			if err != nil {
				return nil, assemblyError(m.String(), err)
			}
			if err = a.merge(frags, m.String()); err != nil {
				return nil, err
			}
		}
	}
	for _, p := range md.Params {
		if p.Ignored || p.Index >= len(inv.Args) {
			continue
		}
		value := inv.Args[p.Index]
		for i := range p.Bindings {
			b := &p.Bindings[i]
			rc := &types.ResolveContext{Method: md.Name(), Param: p, Binding: b, Eval: inv.Eval, Evaluator: ev}
			frags, err := b.Resolver.Resolve(rc, value)
			if err != nil {
				return nil, assemblyError(b.Marker.String(), err)
			}
			if err = a.merge(frags, p.Name); err != nil {
				return nil, err
			}
		}
	}
	if a.req.HasBody && len(a.req.Form) > 0 {
		return nil, &types.ConflictingBodyError{Method: md.Name(), Param: "form"}
	}
	if err = a.substitutePath(); err != nil {
		return nil, err
	}
	if a.req.Timeout, err = timeout(md, inv, ev); err != nil {
		return nil, err
	}
	a.req.Stream = md.Streams()
	return a.req, nil
}

func assemblyError(expr string, err error) error {
	if types.KindOf(err) != types.KindUnknown {
		return err
	}
	return &types.EvaluationError{Expr: expr, Cause: err}
}

// baseURL asks the configured provider, then the effective base marker, then Config.BaseURL.
func baseURL(md *MethodDescriptor, inv *types.Invocation, ev types.Evaluator) (string, error) {
	if inv.Config != nil && inv.Config.BaseURLProvider != nil {
		return inv.Config.BaseURLProvider.ResolveBaseURL(inv)
	}
	if m, ok := md.Effective(types.ConcernBase); ok {
		return ev.String(m.Get(types.AttrURL, m.Get(types.AttrValue, "")), inv.Eval)
	}
	if inv.Config != nil {
		return inv.Config.BaseURL, nil
	}
	return "", nil
}

// joinURL prefixes u with base unless u is absolute.
func joinURL(base, u string) string {
	if base == "" || strings.Contains(u, "://") {
		return u
	}
	if u == "" {
		return base
	}
	if strings.HasPrefix(u, "?") {
		return base + u
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
}

func timeout(md *MethodDescriptor, inv *types.Invocation, ev types.Evaluator) (d time.Duration, err error) {
	m, ok := md.Effective(types.ConcernTimeout)
	if !ok {
		if inv.Config != nil {
			return inv.Config.Timeout, nil
		}
		return 0, nil
	}
	s, err := ev.String(m.Get(types.AttrValue, ""), inv.Eval)
	if err != nil {
		return 0, err
	}
	if d, err = cast.ToDurationE(s); err != nil {
		return 0, &types.EvaluationError{Expr: m.String(), Cause: err}
	}
	return d, nil
}

type assembly struct {
	md     *MethodDescriptor
	req    *types.Request
	codecs map[string]types.Codec
}

func (a *assembly) merge(frags []types.Fragment, source string) error {
	req := a.req
	for _, f := range frags {
		switch f.Location {
		case types.LocationPath:
			req.PathParams[f.Name] = str.ToString(f.Value)
		case types.LocationQuery:
			mergeValues(req.Query, f)
		case types.LocationForm:
			mergeValues(req.Form, f)
		case types.LocationHeader:
			if f.Replace {
				req.Header.Set(f.Name, str.ToString(f.Value))
			} else {
				req.Header.Add(f.Name, str.ToString(f.Value))
			}
		case types.LocationCookie:
			if f.Replace {
				kept := req.Cookies[:0]
				for _, c := range req.Cookies {
					if c.Name != f.Name {
						kept = append(kept, c)
					}
				}
				req.Cookies = kept
			}
			req.Cookies = append(req.Cookies, &http.Cookie{Name: f.Name, Value: str.ToString(f.Value)})
		case types.LocationBody:
			if req.HasBody {
				return &types.ConflictingBodyError{Method: a.md.Name(), Param: source}
			}
			c, err := codec.Lookup(f.Codec, a.codecs)
			if err != nil {
				return &types.EvaluationError{Expr: source, Cause: err}
			}
			body, err := c.Encode(f.Value)
			if err != nil {
				return &types.ConversionError{Expr: source, Value: f.Value, Cause: err}
			}
			if err = req.SetBody(body, c.ContentType()); err != nil {
				return err
			}
		}
	}
	return nil
}

func mergeValues(values url.Values, f types.Fragment) {
	if f.Replace {
		values.Set(f.Name, str.ToString(f.Value))
	} else {
		values.Add(f.Name, str.ToString(f.Value))
	}
}

// substitutePath fills {name} placeholders. Every path binding must match a placeholder
// and every placeholder must be filled.
func (a *assembly) substitutePath() error {
	req := a.req
	found := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(req.URL, -1) {
		found[strings.TrimSpace(m[1])] = true
	}
	for name := range req.PathParams {
		if !found[name] {
			return &types.PathSubstitutionError{Method: a.md.Name(), Placeholder: name, URL: req.URL}
		}
	}
	var missing string
	req.URL = placeholder.ReplaceAllStringFunc(req.URL, func(s string) string {
		name := strings.TrimSpace(s[1 : len(s)-1])
		v, ok := req.PathParams[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return s
		}
		return url.PathEscape(v)
	})
	if missing != "" {
		return &types.PathSubstitutionError{Method: a.md.Name(), Placeholder: missing, URL: req.URL}
	}
	return nil
}
