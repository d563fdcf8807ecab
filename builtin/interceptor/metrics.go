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
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/api/types/metrics"
	"github.com/lucklike/luckliy-sub000/utils/el"
)

var (
	_ types.BeforeInterceptor = (*Metrics)(nil)
	_ types.AfterInterceptor  = (*Metrics)(nil)
)

const metricsStartKey = "metrics.start"

// Collector holds the Prometheus metrics of lucky proxies.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	retriesTotal     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec

	// expression cache of el.DefaultEvaluator
	exprCacheHits      prometheus.CounterFunc
	exprCacheMisses    prometheus.CounterFunc
	exprCacheEvictions prometheus.CounterFunc
	exprCacheEntries   prometheus.GaugeFunc
	exprCacheCapacity  prometheus.GaugeFunc
}

// NewCollector registers the collectors on reg. Collectors already registered
// by another Collector on the same registerer are shared.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{}
	var err error
	if c.requestsTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lucky_requests_total",
		Help: "Total number of attempts made by lucky proxies",
	}, []string{"method", "status_code"})); err != nil {
		return nil, err
	}
	if c.requestDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lucky_request_duration_seconds",
		Help:    "Duration of attempts in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status_code"})); err != nil {
		return nil, err
	}
	if c.requestsInFlight, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lucky_requests_in_flight",
		Help: "Number of attempts currently in flight",
	}, []string{"method"})); err != nil {
		return nil, err
	}
	if c.retriesTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lucky_retries_total",
		Help: "Total number of attempts after the first one of a call",
	}, []string{"method"})); err != nil {
		return nil, err
	}
	if c.errorsTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lucky_errors_total",
		Help: "Total number of attempts ended with an error, by error kind",
	}, []string{"method", "kind"})); err != nil {
		return nil, err
	}
	if err = c.registerExprCache(reg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) registerExprCache(reg prometheus.Registerer) error {
	exprCache := el.DefaultEvaluator.Cache()
	var err error
	counter := func(name, help string, value func() int64) prometheus.CounterFunc {
		if err != nil {
			return nil
		}
		var cf prometheus.CounterFunc
		cf, err = register(reg, prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(value())
		}))
		return cf
	}
	gauge := func(name, help string, value func() int) prometheus.GaugeFunc {
		if err != nil {
			return nil
		}
		var gf prometheus.GaugeFunc
		gf, err = register(reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(value())
		}))
		return gf
	}
	c.exprCacheHits = counter("lucky_expression_cache_hits_total", "Compiled expressions served from the cache",
		func() int64 { return exprCache.Stats().Hits })
	c.exprCacheMisses = counter("lucky_expression_cache_misses_total", "Expressions compiled on a cache miss",
		func() int64 { return exprCache.Stats().Misses })
	c.exprCacheEvictions = counter("lucky_expression_cache_evictions_total", "Compiled expressions evicted from the cache",
		func() int64 { return exprCache.Stats().Evictions })
	c.exprCacheEntries = gauge("lucky_expression_cache_entries", "Compiled expressions currently cached", exprCache.Len)
	c.exprCacheCapacity = gauge("lucky_expression_cache_capacity", "Maximum number of cached expressions", exprCache.Capacity)
	return err
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

var (
	defaultCollector     *Collector
	defaultCollectorErr  error
	defaultCollectorOnce sync.Once
)

// DefaultCollector returns the collector registered on prometheus.DefaultRegisterer.
func DefaultCollector() (*Collector, error) {
	defaultCollectorOnce.Do(func() {
		defaultCollector, defaultCollectorErr = NewCollector(prometheus.DefaultRegisterer)
	})
	return defaultCollector, defaultCollectorErr
}

// Metrics records every attempt in a Prometheus Collector and in in-process CallMetrics.
//
// Metrics 统计每次尝试的指标
type Metrics struct {
	collector *Collector
	metrics   *metrics.CallMetrics
}

// NewMetrics creates a Metrics interceptor. A nil collector means DefaultCollector.
func NewMetrics(c *Collector) (*Metrics, error) {
	if c == nil {
		var err error
		if c, err = DefaultCollector(); err != nil {
			return nil, err
		}
	}
	return &Metrics{collector: c, metrics: metrics.NewCallMetrics()}, nil
}

// NewMetricsFactory builds a Metrics interceptor on the default collector. It takes no attributes.
func NewMetricsFactory(map[string]string) (types.Interceptor, error) {
	return NewMetrics(nil)
}

func (m *Metrics) Order() int {
	return 20
}

func (m *Metrics) Name() string {
	return NameMetrics
}

func (m *Metrics) Before(inv *types.Invocation) types.Outcome {
	method := inv.MethodName()
	m.metrics.Begin(inv.Attempt)
	m.collector.requestsInFlight.WithLabelValues(method).Inc()
	if inv.Attempt > 1 {
		m.collector.retriesTotal.WithLabelValues(method).Inc()
	}
	inv.SetAttr(metricsStartKey, time.Now())
	return types.Continue()
}

func (m *Metrics) After(inv *types.Invocation, resp *types.Response, err error) (*types.Response, error) {
	v, ok := inv.Attr(metricsStartKey)
	if !ok || v == nil {
		return resp, err
	}
	inv.SetAttr(metricsStartKey, nil)
	method := inv.MethodName()
	m.metrics.End(err)
	m.collector.requestsInFlight.WithLabelValues(method).Dec()

	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	m.collector.requestsTotal.WithLabelValues(method, status).Inc()
	m.collector.requestDuration.WithLabelValues(method, status).Observe(time.Since(v.(time.Time)).Seconds())
	if err != nil {
		m.collector.errorsTotal.WithLabelValues(method, types.KindOf(err).String()).Inc()
	}
	return resp, err
}

// GetMetrics 返回当前的指标
func (m *Metrics) GetMetrics() metrics.CallMetrics {
	return m.metrics.Get()
}
