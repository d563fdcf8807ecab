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

package interceptor

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucklike/luckliy-sub000/api/types"
)

var (
	_ types.BeforeInterceptor = (*Tracing)(nil)
	_ types.AfterInterceptor  = (*Tracing)(nil)
)

// TracerName is the instrumentation name of the spans started by Tracing.
const TracerName = "github.com/lucklike/luckliy-sub000"

const tracingSpanKey = "tracing.span"

// Tracing starts one client span per attempt and injects its context into the
// request headers, W3C trace context by default.
// The span is a child of the span carried by the call context, if any.
//
// Tracing 每次尝试创建一个客户端 span，并通过请求头传播。
type Tracing struct {
	// Provider defaults to the global otel TracerProvider.
	Provider trace.TracerProvider
	// Propagator defaults to W3C trace context plus baggage.
	Propagator propagation.TextMapPropagator
	// SpanName overrides the default span name, the method name.
	SpanName string
}

// NewTracing builds a Tracing interceptor. Attributes: span.
func NewTracing(attrs map[string]string) (types.Interceptor, error) {
	return &Tracing{SpanName: attrs["span"]}, nil
}

// W3CPropagator returns the TraceContext and Baggage propagators combined.
func W3CPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func (t *Tracing) Order() int {
	return 8
}

func (t *Tracing) Name() string {
	return NameTracing
}

func (t *Tracing) tracer() trace.Tracer {
	p := t.Provider
	if p == nil {
		p = otel.GetTracerProvider()
	}
	return p.Tracer(TracerName)
}

func (t *Tracing) propagator() propagation.TextMapPropagator {
	if t.Propagator != nil {
		return t.Propagator
	}
	return W3CPropagator()
}

func (t *Tracing) Before(inv *types.Invocation) types.Outcome {
	name := t.SpanName
	if name == "" {
		name = inv.MethodName()
	}
	req := inv.Request
	full, err := req.FullURL()
	if err != nil {
		full = req.URL
	}
	ctx, span := t.tracer().Start(inv.Context(), name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", full),
			attribute.Int("lucky.attempt", inv.Attempt),
		),
	)
	inv.SetAttr(tracingSpanKey, span)
	t.propagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return types.Continue()
}

func (t *Tracing) After(inv *types.Invocation, resp *types.Response, err error) (*types.Response, error) {
	v, ok := inv.Attr(tracingSpanKey)
	if !ok || v == nil {
		return resp, err
	}
	span := v.(trace.Span)
	// the next attempt starts its own span
	inv.SetAttr(tracingSpanKey, nil)
	defer span.End()

	if resp != nil && !resp.HasValue {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", types.KindOf(err).String()))
		span.SetStatus(codes.Error, err.Error())
	case resp != nil && resp.StatusCode >= 400:
		span.SetStatus(codes.Error, resp.Status)
	default:
		span.SetStatus(codes.Ok, "")
	}
	return resp, err
}
