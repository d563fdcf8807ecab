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

package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lruntime "github.com/lucklike/luckliy-sub000/utils/runtime"
)

func TestWorkerPool(t *testing.T) {
	wp := NewWorkerPool(200000)
	defer wp.Stop()

	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 10000; i++ {
		wg.Add(1)
		require.NoError(t, wp.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&n, 1)
		}), "cannot submit function #%d", i)
	}
	wg.Wait()
	assert.Equal(t, int32(10000), atomic.LoadInt32(&n))

	wp.Release()
	assert.ErrorIs(t, wp.Submit(func() {}), ErrPoolStopped)
}

func TestWorkerPoolFull(t *testing.T) {
	wp := NewWorkerPool(1)
	defer wp.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, wp.Submit(func() {
		close(started)
		<-block
	}))
	<-started
	assert.ErrorIs(t, wp.Submit(func() {}), ErrPoolFull)
	close(block)

	assert.Eventually(t, func() bool {
		return wp.Submit(func() {}) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerPoolIdleCleanup(t *testing.T) {
	wp := &WorkerPool{MaxWorkersCount: 10, MaxIdleWorkerDuration: 20 * time.Millisecond}
	wp.Start()
	defer wp.Stop()

	done := make(chan struct{})
	require.NoError(t, wp.Submit(func() { close(done) }))
	<-done
	assert.Eventually(t, func() bool {
		return wp.running() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	var got atomic.Value
	wp := &WorkerPool{MaxWorkersCount: 1, OnPanic: func(err *lruntime.PanicError) {
		got.Store(err)
	}}
	wp.Start()
	defer wp.Stop()

	require.NoError(t, wp.Submit(func() { panic("boom") }))
	assert.Eventually(t, func() bool { return got.Load() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "boom", got.Load().(*lruntime.PanicError).Value)

	done := make(chan struct{})
	assert.Eventually(t, func() bool {
		return wp.Submit(func() { close(done) }) == nil
	}, time.Second, 5*time.Millisecond)
	<-done
}
