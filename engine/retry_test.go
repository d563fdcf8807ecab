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
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucklike/luckliy-sub000/api/types"
)

func TestExponentialBackoff(t *testing.T) {
	var got []time.Duration
	for attempt := 1; attempt <= 6; attempt++ {
		got = append(got, Exponential{}.Backoff(attempt, 100*time.Millisecond, 50*time.Millisecond, time.Second, 2))
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond,
		800 * time.Millisecond, time.Second, time.Second,
	}, got)

	assert.Equal(t, 50*time.Millisecond, Exponential{}.Backoff(1, 10*time.Millisecond, 50*time.Millisecond, time.Second, 2))
	// no overflow on large attempts, zero max is unbounded
	assert.Greater(t, Exponential{}.Backoff(200, time.Second, 0, 0, 10), time.Duration(0))
	assert.Equal(t, 300*time.Millisecond, Fixed{}.Backoff(5, 300*time.Millisecond, 0, time.Second, 2))
}

func timeoutErr() error {
	return &types.TransportError{Reason: types.ReasonTimeout, Method: "GET", URL: "http://x", Cause: context.DeadlineExceeded}
}

func testPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseWait:    time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2,
		RetryOn:     kindSet([]string{RetryOnTimeout, RetryOnConnection}),
		Decider:     AlwaysDecider{},
		Backoff:     Exponential{},
	}
}

func retryInvocation(ctx context.Context) *types.Invocation {
	inv := newInvocation()
	inv.Ctx = ctx
	inv.Eval = nil
	return inv
}

func TestRetryExhausted(t *testing.T) {
	p := testPolicy()
	var attempts []int
	st := p.Run(retryInvocation(context.Background()), func(inv *types.Invocation) AttemptResult {
		attempts = append(attempts, inv.Attempt)
		return AttemptResult{Err: timeoutErr()}
	})
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, StateExhausted, st.State)
	assert.Len(t, st.Waits, 2)
	assert.Equal(t, st.Waits[0]+st.Waits[1], st.CumulativeWait)

	err := p.Err("api.Get", st)
	var re *types.RetryExhaustedError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 3, re.Attempts)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ReasonTimeout, te.Reason)
	assert.Equal(t, types.KindTransport, types.KindOf(err))
}

func TestRetrySingleAttemptIsNotWrapped(t *testing.T) {
	p := testPolicy()
	p.MaxAttempts = 1
	st := p.Run(retryInvocation(context.Background()), func(*types.Invocation) AttemptResult {
		return AttemptResult{Err: timeoutErr()}
	})
	assert.Equal(t, StateExhausted, st.State)
	var te *types.TransportError
	assert.True(t, errors.As(p.Err("api.Get", st), &te))
	var re *types.RetryExhaustedError
	assert.False(t, errors.As(p.Err("api.Get", st), &re))
}

func TestRetryNonRetryable(t *testing.T) {
	p := testPolicy()
	tls := &types.TransportError{Reason: types.ReasonTLS, Cause: errors.New("bad cert")}
	calls := 0
	st := p.Run(retryInvocation(context.Background()), func(*types.Invocation) AttemptResult {
		calls++
		return AttemptResult{Err: tls}
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateAborted, st.State)
	assert.Same(t, tls, p.Err("api.Get", st))

	// aborts are never retried
	calls = 0
	st = p.Run(retryInvocation(context.Background()), func(*types.Invocation) AttemptResult {
		calls++
		return AttemptResult{Err: &types.InterceptorAbortError{Interceptor: "x", Cause: timeoutErr()}, Kind: types.OutcomeAbort}
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateAborted, st.State)
}

func TestRetryAcceptPredicate(t *testing.T) {
	p := testPolicy()
	p.Accept = []string{"${status < 500}"}
	statuses := []int{503, 502, 200}
	st := p.Run(retryInvocation(context.Background()), func(inv *types.Invocation) AttemptResult {
		return AttemptResult{Response: &types.Response{StatusCode: statuses[inv.Attempt-1]}}
	})
	assert.Equal(t, StateSucceeded, st.State)
	assert.Equal(t, 3, st.Attempt)
	assert.Equal(t, 200, st.LastResponse.StatusCode)
	assert.NoError(t, p.Err("api.Get", st))

	st = p.Run(retryInvocation(context.Background()), func(inv *types.Invocation) AttemptResult {
		return AttemptResult{Response: &types.Response{StatusCode: http.StatusServiceUnavailable}}
	})
	assert.Equal(t, StateExhausted, st.State)
	var ue *types.UnacceptableResultError
	require.True(t, errors.As(p.Err("api.Get", st), &ue))
	assert.Equal(t, 503, ue.StatusCode)
	assert.Equal(t, types.KindUnacceptable, types.KindOf(p.Err("api.Get", st)))

	// short-circuits skip the predicates
	st = p.Run(retryInvocation(context.Background()), func(*types.Invocation) AttemptResult {
		return AttemptResult{Response: &types.Response{StatusCode: 599}, Kind: types.OutcomeShortCircuit}
	})
	assert.Equal(t, StateSucceeded, st.State)
}

func TestRetryDeciders(t *testing.T) {
	p := testPolicy()
	p.Decider = types.RetryDeciderFunc(func(inv *types.Invocation, resp *types.Response, err error) (bool, error) {
		return inv.Attempt < 2, nil
	})
	calls := 0
	st := p.Run(retryInvocation(context.Background()), func(*types.Invocation) AttemptResult {
		calls++
		return AttemptResult{Err: timeoutErr()}
	})
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateAborted, st.State)

	p.Decider = &ExprDecider{When: "${errorKind == 'transport' && attempt < 3}"}
	calls = 0
	inv := retryInvocation(context.Background())
	inv.Eval = types.NewEvalContext(nil)
	st = p.Run(inv, func(inv *types.Invocation) AttemptResult {
		calls++
		inv.Eval = types.NewEvalContext(map[string]any{types.VarAttempt: inv.Attempt})
		return AttemptResult{Err: timeoutErr()}
	})
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateExhausted, st.State)

	broken := errors.New("decider failed")
	p.Decider = types.RetryDeciderFunc(func(*types.Invocation, *types.Response, error) (bool, error) {
		return false, broken
	})
	st = p.Run(retryInvocation(context.Background()), func(*types.Invocation) AttemptResult {
		return AttemptResult{Err: timeoutErr()}
	})
	assert.Equal(t, StateAborted, st.State)
	assert.ErrorIs(t, st.LastErr, broken)
}

func TestRetryCanceledDuringWait(t *testing.T) {
	p := testPolicy()
	p.BaseWait, p.MaxWait = time.Hour, time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	st := p.Run(retryInvocation(ctx), func(*types.Invocation) AttemptResult {
		return AttemptResult{Err: timeoutErr()}
	})
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateAborted, st.State)
	assert.Equal(t, 1, st.Attempt)
	var ce *types.CanceledError
	require.True(t, errors.As(p.Err("api.Get", st), &ce))
	assert.Equal(t, types.KindCanceled, types.KindOf(ce))
}

func TestRetryRunAsync(t *testing.T) {
	p := testPolicy()
	var submitted int32
	submit := func(task func()) error {
		atomic.AddInt32(&submitted, 1)
		go task()
		return nil
	}
	done := make(chan *RetryAttemptState, 1)
	var calls int32
	p.RunAsync(retryInvocation(context.Background()), func(inv *types.Invocation) AttemptResult {
		if atomic.AddInt32(&calls, 1) < 3 {
			return AttemptResult{Err: timeoutErr()}
		}
		return AttemptResult{Response: &types.Response{StatusCode: 200}}
	}, submit, func(st *RetryAttemptState) { done <- st })

	select {
	case st := <-done:
		assert.Equal(t, StateSucceeded, st.State)
		assert.Equal(t, 3, st.Attempt)
		assert.Equal(t, int32(2), atomic.LoadInt32(&submitted))
	case <-time.After(5 * time.Second):
		t.Fatal("async retry did not finish")
	}

	full := errors.New("pool full")
	p.RunAsync(retryInvocation(context.Background()), func(*types.Invocation) AttemptResult {
		return AttemptResult{Err: timeoutErr()}
	}, func(func()) error { return full }, func(st *RetryAttemptState) { done <- st })
	st := <-done
	assert.Equal(t, StateAborted, st.State)
	assert.ErrorIs(t, st.LastErr, full)

	// cancelling the call ends a pending wait without another attempt
	long := testPolicy()
	long.BaseWait, long.MaxWait = time.Hour, time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	calls = 0
	long.RunAsync(retryInvocation(ctx), func(*types.Invocation) AttemptResult {
		atomic.AddInt32(&calls, 1)
		return AttemptResult{Err: timeoutErr()}
	}, submit, func(st *RetryAttemptState) { done <- st })
	cancel()
	select {
	case st := <-done:
		assert.Equal(t, StateAborted, st.State)
		var ce *types.CanceledError
		assert.True(t, errors.As(st.LastErr, &ce))
		assert.Equal(t, 1, st.Attempt)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled async retry is still waiting")
	}
}

type retryAPI struct {
	_ types.Meta `lucky:"retry(max=2)"`

	Tuned   func() error `lucky:"get(/a); retry(max=4, wait=10, min=5ms, maxwait=1s, multiplier=3, on='timeout|tls', backoff=fixed)"`
	Typed   func() error `lucky:"get(/a)"`
	When    func() error `lucky:"get(/a); retry(max=3, when='${status == 429}', accept='${status != 429}')"`
	Named   func() error `lucky:"get(/a); retry(max=3, decider=custom)"`
	Missing func() error `lucky:"get(/a); retry(max=3, decider=nosuch)"`
	Zero    func() error `lucky:"get(/a); retry(max=0)"`
	BadWait func() error `lucky:"get(/a); retry(wait=soon)"`
	Off     func() error `lucky:"get(/a); noretry"`
}

func TestNewRetryPolicy(t *testing.T) {
	cfg := types.NewConfig(types.WithDecider("custom", AlwaysDecider{}))

	p, err := NewRetryPolicy(mustResolve(t, retryAPI{}, "Tuned"), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, p.BaseWait)
	assert.Equal(t, 5*time.Millisecond, p.MinWait)
	assert.Equal(t, time.Second, p.MaxWait)
	assert.Equal(t, 3.0, p.Multiplier)
	assert.Equal(t, map[string]bool{"timeout": true, "tls": true}, p.RetryOn)
	assert.IsType(t, Fixed{}, p.Backoff)
	assert.Equal(t, 10*time.Millisecond, p.Wait(3))

	p, err = NewRetryPolicy(mustResolve(t, retryAPI{}, "Typed"), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, p.MaxAttempts)
	assert.Equal(t, cfg.Retry.Wait, p.BaseWait)

	p, err = NewRetryPolicy(mustResolve(t, retryAPI{}, "When"), &cfg)
	require.NoError(t, err)
	require.IsType(t, &ExprDecider{}, p.Decider)
	assert.Equal(t, "${status == 429}", p.Decider.(*ExprDecider).When)
	assert.Equal(t, []string{"${status != 429}"}, p.Accept)

	p, err = NewRetryPolicy(mustResolve(t, retryAPI{}, "Named"), &cfg)
	require.NoError(t, err)
	assert.Equal(t, AlwaysDecider{}, p.Decider)

	p, err = NewRetryPolicy(mustResolve(t, retryAPI{}, "Off"), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MaxAttempts)

	for _, field := range []string{"Missing", "Zero", "BadWait"} {
		_, err = NewRetryPolicy(mustResolve(t, retryAPI{}, field), &cfg)
		assert.Error(t, err, field)
		assert.Equal(t, types.KindResolution, types.KindOf(err), field)
	}
}

func TestRetryStateString(t *testing.T) {
	assert.Equal(t, "ATTEMPTING", StateAttempting.String())
	assert.Equal(t, "AWAITING_RETRY", StateAwaitingRetry.String())
	assert.Equal(t, "EXHAUSTED", StateExhausted.String())
}
