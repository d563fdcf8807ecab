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

// Package converter turns the final response of a call into the declared return value.
//
// Strategies:
//   - Default: decode the body by Content-Type into the declared type
//   - Direct: result('${body.data}') evaluated against the response context
//   - JQ: jq('.data.items') over the decoded body
//   - Script: a JavaScript function over the response context
//   - Branch: ordered branch(when, result) pairs with default and failure
//   - Download: stream the body to disk and return a *types.FileDescriptor
//
// Throw rules run before any of them and raise declared errors.
//
// Package converter 响应转换器
package converter

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/codec"
	"github.com/lucklike/luckliy-sub000/utils/el"
	"github.com/lucklike/luckliy-sub000/utils/json"
)

// Converter marker names, all of the convert concern.
const (
	Result   = "result"
	JQName   = "jq"
	Script   = "script"
	Download = "download"
	Convert  = "convert"
)

// Registry holds converters referenced by convert(name).
var Registry = new(ConverterRegistry)

func init() {
	_ = Registry.Register("default", &Default{})
}

// ConverterRegistry holds converters by name.
type ConverterRegistry struct {
	converters map[string]types.Converter
	sync.RWMutex
}

// Register adds a converter. Names are unique.
func (r *ConverterRegistry) Register(name string, c types.Converter) error {
	r.Lock()
	defer r.Unlock()
	if r.converters == nil {
		r.converters = make(map[string]types.Converter)
	}
	if _, ok := r.converters[name]; ok {
		return errors.New("the converter already exists. name=" + name)
	}
	r.converters[name] = c
	return nil
}

// Get returns the converter registered under name.
func (r *ConverterRegistry) Get(name string) (types.Converter, bool) {
	r.RLock()
	defer r.RUnlock()
	c, ok := r.converters[name]
	return c, ok
}

// Pipeline applies throw rules, then the main converter.
type Pipeline struct {
	Throw *Throw
	Main  types.Converter
}

// Convert implements types.Converter.
func (p *Pipeline) Convert(inv *types.Invocation, resp *types.Response, target reflect.Type) (any, error) {
	if resp == nil {
		return coerce("", nil, target)
	}
	if p.Throw != nil {
		if err := p.Throw.CheckResponse(inv, resp); err != nil {
			resp.Close()
			return nil, err
		}
	}
	return p.Main.Convert(inv, resp, target)
}

// Failure maps a final call failure through the throw rules. resp may be nil.
// The original error is returned when no rule matches.
func (p *Pipeline) Failure(inv *types.Invocation, resp *types.Response, err error) error {
	if p.Throw == nil {
		return err
	}
	return p.Throw.CheckFailure(inv, resp, err)
}

// Build creates the conversion pipeline of a method from its markers.
func Build(info types.MethodInfo, cfg *types.Config) (*Pipeline, error) {
	p := &Pipeline{}
	if rules := info.Accumulated(types.ConcernThrow); len(rules) > 0 {
		p.Throw = NewThrow(rules)
	}
	branches := info.Accumulated(types.ConcernBranch)
	main, hasMain := info.Effective(types.ConcernConvert)
	switch {
	case hasMain && len(branches) > 0:
		return nil, &types.ConflictingMarkerError{
			Method:  info.Name(),
			Concern: types.ConcernConvert,
			Markers: []types.Marker{main, branches[0]},
		}
	case len(branches) > 0:
		b := &Branch{}
		for _, m := range branches {
			b.Branches = append(b.Branches, BranchRule{
				When:   m.Get(types.AttrWhen, ""),
				Result: m.Get(types.AttrResult, m.Get(types.AttrValue, "")),
			})
		}
		if d, ok := info.Effective(types.ConcernDefault); ok {
			v := d.Get(types.AttrValue, "")
			b.Default = &v
		}
		if f, ok := info.Effective(types.ConcernFailure); ok {
			b.Failure = f.Get(types.AttrValue, f.Get(types.AttrMessage, ""))
		}
		p.Main = b
	case hasMain:
		c, err := buildMain(info, main, cfg)
		if err != nil {
			return nil, err
		}
		p.Main = c
	default:
		p.Main = &Default{}
	}
	return p, nil
}

func buildMain(info types.MethodInfo, m types.Marker, cfg *types.Config) (types.Converter, error) {
	switch m.Name {
	case Result:
		return &Direct{Result: m.Get(types.AttrValue, "")}, nil
	case JQName:
		return NewJQ(m.Get(types.AttrValue, ""))
	case Script:
		return NewScript(*cfg, m.Get(types.AttrValue, ""))
	case Download:
		return &DownloadConverter{Dir: m.Get(types.AttrDir, ""), Name: m.Get(types.AttrName, m.Get(types.AttrValue, ""))}, nil
	case Convert:
		name := m.Get(types.AttrValue, m.Get(types.AttrName, ""))
		if c, ok := cfg.Converters[name]; ok {
			return c, nil
		}
		if c, ok := Registry.Get(name); ok {
			return c, nil
		}
		return nil, &types.UnknownMarkerError{Method: info.Name(), Marker: m.String(), Detail: "converter not found: " + name}
	}
	return nil, &types.UnknownMarkerError{Method: info.Name(), Marker: m.String(), Detail: "not a converter"}
}

func evaluator(inv *types.Invocation) types.Evaluator {
	if inv.Config != nil && inv.Config.Evaluator != nil {
		return inv.Config.Evaluator
	}
	return el.DefaultEvaluator
}

func codecs(inv *types.Invocation) map[string]types.Codec {
	if inv.Config == nil {
		return nil
	}
	return inv.Config.Codecs
}

// ResponseContext forks the call context with the response variables:
// status, headers, cookies, body (decoded), raw, request and response.
func ResponseContext(inv *types.Invocation, resp *types.Response) *types.EvalContext {
	base := inv.Eval
	if base == nil {
		base = types.NewEvalContext(nil)
	}
	if resp == nil {
		return base.WithAll(map[string]any{types.VarStatus: 0, types.VarRequest: RequestView(inv.Request)})
	}
	req := resp.Request
	if req == nil {
		req = inv.Request
	}
	return base.WithAll(map[string]any{
		types.VarStatus:   resp.StatusCode,
		types.VarHeaders:  HeaderMap(resp.Header),
		types.VarCookies:  resp.CookieMap(),
		types.VarBody:     DecodeBody(inv, resp),
		types.VarRaw:      string(resp.Body),
		types.VarRequest:  RequestView(req),
		types.VarResponse: resp,
	})
}

// DecodeBody decodes the buffered body by Content-Type into generic values.
// A short-circuit value is returned as is; undecodable bodies become strings.
func DecodeBody(inv *types.Invocation, resp *types.Response) any {
	if resp.HasValue {
		return resp.Value
	}
	if len(resp.Body) == 0 {
		return nil
	}
	name := codec.NameForContentType(resp.MediaType())
	if name == codec.Raw && json.Valid(resp.Body) {
		name = codec.JSON
	}
	c, err := codec.Lookup(name, codecs(inv))
	if err != nil {
		return string(resp.Body)
	}
	var v any
	if err = c.Decode(resp.Body, &v); err != nil {
		return string(resp.Body)
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// HeaderMap flattens a header to its first values.
func HeaderMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			m[k] = vs[0]
		}
	}
	return m
}

// RequestView exposes a request to expressions.
func RequestView(req *types.Request) map[string]any {
	if req == nil {
		return nil
	}
	fullURL, err := req.FullURL()
	if err != nil {
		fullURL = req.URL
	}
	return map[string]any{
		"method":  req.Method,
		"url":     fullURL,
		"headers": HeaderMap(req.Header),
		"query":   req.Query,
	}
}

func conversionError(expr string, v any, target reflect.Type, err error) error {
	var ce *types.ConversionError
	if errors.As(err, &ce) {
		return err
	}
	return &types.ConversionError{Expr: expr, Value: v, Target: target, Cause: err}
}

func coerce(expr string, v any, target reflect.Type) (any, error) {
	if target == nil {
		return nil, nil
	}
	out, err := el.Coerce(v, target)
	if err != nil {
		return nil, conversionError(expr, v, target, err)
	}
	return out, nil
}

func statusError(inv *types.Invocation, resp *types.Response) error {
	body := resp.Body
	if len(body) > 512 {
		body = body[:512]
	}
	return &types.StatusError{Method: inv.MethodName(), StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
}

func readBody(resp *types.Response) error {
	if _, err := resp.ReadBody(); err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	return nil
}
