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
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/converter"
	"github.com/lucklike/luckliy-sub000/utils/cast"
)

// Retry decider names usable in retry(decider=...).
const (
	DeciderAlways = "always"
	DeciderExpr   = "expr"
)

// Failure kinds usable in retry(on=...).
const (
	RetryOnTimeout      = "timeout"
	RetryOnConnection   = "connection"
	RetryOnTLS          = "tls"
	RetryOnUnacceptable = "unacceptable"
	RetryOnTransport    = "transport"
	RetryOnAny          = "any"
)

// RetryState is the state of one logical call across its attempts.
type RetryState int

const (
	StateAttempting RetryState = iota
	StateSucceeded
	StateAwaitingRetry
	StateExhausted
	StateAborted
)

func (s RetryState) String() string {
	switch s {
	case StateSucceeded:
		return "SUCCEEDED"
	case StateAwaitingRetry:
		return "AWAITING_RETRY"
	case StateExhausted:
		return "EXHAUSTED"
	case StateAborted:
		return "ABORTED"
	default:
		return "ATTEMPTING"
	}
}

// RetryAttemptState lives for one logical call across all its attempts.
type RetryAttemptState struct {
	// Attempt starts at 1 and never exceeds the policy's MaxAttempts.
	Attempt        int
	State          RetryState
	LastResponse   *types.Response
	LastErr        error
	CumulativeWait time.Duration
	// Waits records every backoff wait in order.
	Waits []time.Duration
}

// RetryPolicy is the immutable retry configuration of one bound method.
// RetryPolicy 重试策略
type RetryPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	RetryOn     map[string]bool
	// Accept are predicates every received response must satisfy.
	Accept  []string
	Decider types.RetryDecider
	Backoff types.BackoffStrategy
}

// NewRetryPolicy builds the policy of a method from Config.Retry and its effective retry marker:
//
//	retry(max=3, wait=100ms, min=50ms, maxwait=1s, multiplier=2, on='timeout|connection',
//	      accept='${status < 500}', when='${status == 503}', decider=name, backoff=fixed)
//
// Bare integer durations are milliseconds.
func NewRetryPolicy(info types.MethodInfo, cfg *types.Config) (*RetryPolicy, error) {
	settings := types.DefaultRetrySettings()
	if cfg != nil {
		settings = cfg.Retry
	}
	p := &RetryPolicy{
		MaxAttempts: settings.MaxAttempts,
		BaseWait:    settings.Wait,
		MinWait:     settings.MinWait,
		MaxWait:     settings.MaxWait,
		Multiplier:  settings.Multiplier,
		RetryOn:     kindSet(settings.RetryOn),
		Decider:     AlwaysDecider{},
		Backoff:     Exponential{},
	}
	m, ok := info.Effective(types.ConcernRetry)
	if !ok {
		return p, p.validate(info.Name())
	}
	fail := func(reason string) error {
		return &types.MarkerPlacementError{Method: info.Name(), Marker: m.String(), Level: m.Level, Reason: reason}
	}
	var err error
	if v, ok := m.Attr(types.AttrMax); ok {
		if p.MaxAttempts, err = strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return nil, fail("max must be an integer")
		}
	}
	for attr, dst := range map[string]*time.Duration{
		types.AttrWait: &p.BaseWait, types.AttrMinWait: &p.MinWait, types.AttrMaxWait: &p.MaxWait,
	} {
		if v, ok := m.Attr(attr); ok {
			if *dst, err = cast.ToDurationE(v); err != nil {
				return nil, fail(attr + " must be a duration")
			}
		}
	}
	if v, ok := m.Attr(types.AttrMultiplier); ok {
		if p.Multiplier, err = cast.ToFloat64E(v); err != nil {
			return nil, fail("multiplier must be a number")
		}
	}
	if v, ok := m.Attr(types.AttrOn); ok {
		p.RetryOn = kindSet(strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '|' || r == ' ' }))
	}
	if v, ok := m.Attr(types.AttrAccept); ok && strings.TrimSpace(v) != "" {
		p.Accept = []string{v}
	}
	if name, ok := m.Attr(types.AttrBackoff); ok {
		if p.Backoff, ok = backoffOf(name, cfg); !ok {
			return nil, &types.UnknownMarkerError{Method: info.Name(), Marker: name, Detail: "backoff"}
		}
	}
	when, hasWhen := m.Attr(types.AttrWhen)
	switch name := m.Get(types.AttrDecider, ""); {
	case name == "" && hasWhen, name == DeciderExpr:
		p.Decider = &ExprDecider{When: when}
	case name == "" || name == DeciderAlways:
	default:
		var d types.RetryDecider
		if cfg != nil {
			d = cfg.Deciders[name]
		}
		if d == nil {
			return nil, &types.UnknownMarkerError{Method: info.Name(), Marker: name, Detail: "retry decider"}
		}
		p.Decider = d
	}
	return p, p.validate(info.Name())
}

func (p *RetryPolicy) validate(method string) error {
	if p.MaxAttempts < 1 {
		return &types.MarkerPlacementError{Method: method, Marker: "retry", Level: types.LevelMethod, Reason: "max must be at least 1"}
	}
	if p.MaxWait > 0 && p.MinWait > p.MaxWait {
		return &types.MarkerPlacementError{Method: method, Marker: "retry", Level: types.LevelMethod, Reason: "min wait exceeds max wait"}
	}
	return nil
}

func kindSet(kinds []string) map[string]bool {
	set := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			set[k] = true
		}
	}
	return set
}

// Wait returns the backoff before the attempt following attempt.
func (p *RetryPolicy) Wait(attempt int) time.Duration {
	return p.Backoff.Backoff(attempt, p.BaseWait, p.MinWait, p.MaxWait, p.Multiplier)
}

// Retryable reports whether err belongs to the retryable failure kinds.
// Unacceptable results are always retryable, cancellation never is.
func (p *RetryPolicy) Retryable(err error) bool {
	var ue *types.UnacceptableResultError
	if errors.As(err, &ue) {
		return true
	}
	var te *types.TransportError
	if errors.As(err, &te) {
		if te.Reason == types.ReasonCanceled {
			return false
		}
		return p.RetryOn[RetryOnAny] || p.RetryOn[RetryOnTransport] || p.RetryOn[string(te.Reason)]
	}
	return false
}

// accepts checks the acceptability predicates. It returns the first failing predicate.
func (p *RetryPolicy) accepts(inv *types.Invocation, resp *types.Response) (string, bool, error) {
	if len(p.Accept) == 0 || resp == nil {
		return "", true, nil
	}
	if resp.Stream == nil {
		if _, err := resp.ReadBody(); err != nil {
			return "", false, err
		}
	}
	ctx := converter.ResponseContext(inv, resp)
	ev := evaluatorOf(inv.Config)
	for _, pred := range p.Accept {
		ok, err := ev.Bool(pred, ctx)
		if err != nil {
			return pred, false, err
		}
		if !ok {
			return pred, false, nil
		}
	}
	return "", true, nil
}

// Observe records the outcome of the current attempt and moves st to its next state.
// When the next state is AwaitingRetry it returns the wait before the next attempt.
//
//	ATTEMPTING -> SUCCEEDED       response accepted, or short-circuited
//	           -> ABORTED         interceptor abort, non-retryable failure, stop verdict
//	           -> EXHAUSTED       retryable failure on the last attempt
//	           -> AWAITING_RETRY  retryable failure, attempts left, retry verdict
func (p *RetryPolicy) Observe(inv *types.Invocation, st *RetryAttemptState, res AttemptResult) time.Duration {
	st.LastResponse, st.LastErr = res.Response, res.Err
	if res.Kind == types.OutcomeAbort {
		st.State = StateAborted
		return 0
	}
	if res.Err == nil {
		if res.Kind == types.OutcomeShortCircuit {
			st.State = StateSucceeded
			return 0
		}
		pred, ok, err := p.accepts(inv, res.Response)
		switch {
		case err != nil:
			st.LastErr = err
			st.State = StateAborted
			return 0
		case ok:
			st.State = StateSucceeded
			return 0
		}
		status := 0
		if res.Response != nil {
			status = res.Response.StatusCode
		}
		st.LastErr = &types.UnacceptableResultError{StatusCode: status, Predicate: pred}
	}
	if !p.Retryable(st.LastErr) {
		st.State = StateAborted
		return 0
	}
	if st.Attempt >= p.MaxAttempts {
		st.State = StateExhausted
		return 0
	}
	retry, err := p.Decider.ShouldRetry(inv, st.LastResponse, st.LastErr)
	if err != nil {
		st.LastErr = err
		st.State = StateAborted
		return 0
	}
	if !retry {
		st.State = StateAborted
		return 0
	}
	// the response of a failed attempt is dropped
	_ = st.LastResponse.Close()
	wait := p.Wait(st.Attempt)
	st.CumulativeWait += wait
	st.Waits = append(st.Waits, wait)
	st.State = StateAwaitingRetry
	return wait
}

// Err returns the error the call fails with, nil on success. When a multi-attempt policy
// ran out of attempts the last failure is wrapped in RetryExhaustedError; everything else
// propagates as is.
func (p *RetryPolicy) Err(method string, st *RetryAttemptState) error {
	if st.State == StateSucceeded {
		return nil
	}
	if st.State == StateExhausted && p.MaxAttempts > 1 {
		return &types.RetryExhaustedError{Method: method, Attempts: st.Attempt, Last: st.LastErr}
	}
	return st.LastErr
}

// Run drives the attempts of a synchronous call. Backoff waits block the caller on a
// timer and end early when the call context is done.
func (p *RetryPolicy) Run(inv *types.Invocation, attempt func(*types.Invocation) AttemptResult) *RetryAttemptState {
	st := &RetryAttemptState{}
	for {
		st.Attempt++
		st.State = StateAttempting
		inv.Attempt = st.Attempt
		wait := p.Observe(inv, st, attempt(inv))
		if st.State != StateAwaitingRetry {
			return st
		}
		timer := time.NewTimer(wait)
		select {
		case <-inv.Context().Done():
			timer.Stop()
			p.cancel(inv, st)
			return st
		case <-timer.C:
		}
	}
}

// RunAsync drives the attempts of an asynchronous call. The first attempt runs on the
// calling goroutine, which is expected to be a pool worker. Backoff waits hold no worker:
// the next attempt is resubmitted with submit once the wait elapses, unless the call
// context ends first. done is called once.
func (p *RetryPolicy) RunAsync(inv *types.Invocation, attempt func(*types.Invocation) AttemptResult,
	submit func(func()) error, done func(*RetryAttemptState)) {
	st := &RetryAttemptState{}
	var step func()
	step = func() {
		if st.Attempt > 0 && inv.Context().Err() != nil {
			p.cancel(inv, st)
			done(st)
			return
		}
		st.Attempt++
		st.State = StateAttempting
		inv.Attempt = st.Attempt
		wait := p.Observe(inv, st, attempt(inv))
		if st.State != StateAwaitingRetry {
			done(st)
			return
		}
		timer := time.NewTimer(wait)
		go func() {
			select {
			case <-inv.Context().Done():
				timer.Stop()
				p.cancel(inv, st)
				done(st)
			case <-timer.C:
				if err := submit(step); err != nil {
					st.LastErr = err
					st.State = StateAborted
					done(st)
				}
			}
		}()
	}
	step()
}

func (p *RetryPolicy) cancel(inv *types.Invocation, st *RetryAttemptState) {
	st.LastErr = &types.CanceledError{Method: inv.MethodName(), Attempt: st.Attempt, Cause: inv.Context().Err()}
	st.State = StateAborted
}

// AlwaysDecider retries every retryable failure.
type AlwaysDecider struct{}

func (AlwaysDecider) ShouldRetry(*types.Invocation, *types.Response, error) (bool, error) {
	return true, nil
}

// ExprDecider retries when its predicate holds. The predicate sees the response
// variables plus error and errorKind.
type ExprDecider struct {
	When string
}

func (d *ExprDecider) ShouldRetry(inv *types.Invocation, resp *types.Response, err error) (bool, error) {
	if d.When == "" {
		return true, nil
	}
	vars := map[string]any{types.VarError: "", types.VarErrorKind: types.KindUnknown.String()}
	if err != nil {
		vars[types.VarError] = err.Error()
		vars[types.VarErrorKind] = types.KindOf(err).String()
	}
	return evaluatorOf(inv.Config).Bool(d.When, converter.ResponseContext(inv, resp).WithAll(vars))
}
