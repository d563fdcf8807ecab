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
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/utils/cast"
)

var (
	_ types.BeforeInterceptor = (*ConcurrencyLimit)(nil)
	_ types.AfterInterceptor  = (*ConcurrencyLimit)(nil)
	_ types.BeforeInterceptor = (*RateLimit)(nil)
)

// ConcurrencyLimit limits the number of attempts in flight.
// An attempt over the limit is aborted with types.ErrConcurrencyLimitReached.
//
// ConcurrencyLimit 限制并发执行的请求数，超过限制时中止调用。
//
// Features:
// 功能特性：
//   - Atomic operations for thread-safe counting  原子操作确保线程安全计数
//   - Compare-and-swap (CAS) for consistent state  比较并交换（CAS）确保状态一致性
//   - The slot is released by the after-hook, whatever the outcome  无论结果如何，后置钩子都会释放名额
//
// Usage:
// 使用方法：
//
//	limiter := interceptor.NewConcurrencyLimit(100)
//	cfg := types.NewConfig(types.WithInterceptors(limiter))
type ConcurrencyLimit struct {
	Max          int64 // Maximum number of concurrent attempts  最大并发数量
	currentCount int64 // Current number of concurrent attempts  当前并发数量
	key          string
}

// NewConcurrencyLimit creates a limiter with the given maximum.
func NewConcurrencyLimit(max int) *ConcurrencyLimit {
	c := &ConcurrencyLimit{Max: int64(max)}
	c.key = fmt.Sprintf("concurrencyLimit.%p", c)
	return c
}

// NewConcurrencyLimitFactory builds a ConcurrencyLimit from marker attributes: max.
func NewConcurrencyLimitFactory(attrs map[string]string) (types.Interceptor, error) {
	v := attrs[types.AttrMax]
	max, err := cast.ToIntE(v)
	if err != nil || max < 1 {
		return nil, fmt.Errorf("concurrencyLimit: max must be a positive integer, got %q", v)
	}
	return NewConcurrencyLimit(max), nil
}

// Order returns the execution priority of this interceptor. Lower values execute earlier.
//
// Order 返回执行优先级，值越低，执行越早。
func (c *ConcurrencyLimit) Order() int {
	return 10
}

func (c *ConcurrencyLimit) Name() string {
	return NameConcurrencyLimit
}

// Current returns the number of attempts holding a slot.
func (c *ConcurrencyLimit) Current() int64 {
	return atomic.LoadInt64(&c.currentCount)
}

func (c *ConcurrencyLimit) Before(inv *types.Invocation) types.Outcome {
	// 使用原子操作确保检查和增加操作的原子性
	for {
		current := atomic.LoadInt64(&c.currentCount)
		if current >= c.Max {
			return types.Abort(types.ErrConcurrencyLimitReached)
		}
		if atomic.CompareAndSwapInt64(&c.currentCount, current, current+1) {
			break
		}
		// 如果CAS失败，说明有其他goroutine修改了计数器，重试
	}
	inv.SetAttr(c.slotKey(), true)
	return types.Continue()
}

// After releases the slot taken by Before. Attempts that never reached Before hold none.
func (c *ConcurrencyLimit) After(inv *types.Invocation, resp *types.Response, err error) (*types.Response, error) {
	if held, ok := inv.Attr(c.slotKey()); ok && held == true {
		inv.SetAttr(c.slotKey(), false)
		atomic.AddInt64(&c.currentCount, -1)
	}
	return resp, err
}

func (c *ConcurrencyLimit) slotKey() string {
	if c.key == "" {
		return fmt.Sprintf("concurrencyLimit.%p", c)
	}
	return c.key
}

// RateLimit is a token bucket limiter. By default an attempt without a token is
// aborted with types.ErrRateLimited; with Wait set it blocks until a token is
// available or the call context ends.
//
// RateLimit 令牌桶限流拦截器。
type RateLimit struct {
	Limiter *rate.Limiter
	Wait    bool
}

// NewRateLimit creates a limiter allowing r attempts per second with the given burst.
func NewRateLimit(r float64, burst int, wait bool) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{Limiter: rate.NewLimiter(rate.Limit(r), burst), Wait: wait}
}

// NewRateLimitFactory builds a RateLimit from marker attributes: rate (attempts per second),
// burst and wait.
func NewRateLimitFactory(attrs map[string]string) (types.Interceptor, error) {
	v := attrs["rate"]
	r, err := cast.ToFloat64E(v)
	if err != nil || r <= 0 {
		return nil, fmt.Errorf("rateLimit: rate must be a positive number, got %q", v)
	}
	burst := 1
	if b, ok := attrs["burst"]; ok {
		if burst, err = cast.ToIntE(b); err != nil {
			return nil, fmt.Errorf("rateLimit: burst: %w", err)
		}
	}
	wait := false
	if w, ok := attrs[types.AttrWait]; ok {
		if wait, err = cast.ToBoolE(w); err != nil {
			return nil, fmt.Errorf("rateLimit: wait: %w", err)
		}
	}
	return NewRateLimit(r, burst, wait), nil
}

func (r *RateLimit) Order() int {
	return 15
}

func (r *RateLimit) Name() string {
	return NameRateLimit
}

func (r *RateLimit) Before(inv *types.Invocation) types.Outcome {
	if r.Wait {
		if err := r.Limiter.Wait(inv.Context()); err != nil {
			return types.Abort(fmt.Errorf("%w: %v", types.ErrRateLimited, err))
		}
		return types.Continue()
	}
	if !r.Limiter.Allow() {
		return types.Abort(types.ErrRateLimited)
	}
	return types.Continue()
}
