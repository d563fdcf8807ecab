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

// Package pool provides the goroutine pool used by asynchronous proxy methods.
//
// Package pool 提供异步方法使用的协程池。
//
// Note: This file is inspired by:
// Valyala, A. (2023) workerpool.go (Version 1.48.0)
// [Source code]. https://github.com/valyala/fasthttp/blob/master/workerpool.go
// 1.Change the Serve(c net.Conn) method to Submit(fn func()) error method
package pool

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/lucklike/luckliy-sub000/api/types"
	lruntime "github.com/lucklike/luckliy-sub000/utils/runtime"
)

var (
	// ErrPoolFull is returned by Submit when every worker is busy and MaxWorkersCount is reached.
	ErrPoolFull = errors.New("pool: no idle workers")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("pool: stopped")
)

var _ types.Pool = (*WorkerPool)(nil)

// WorkerPool runs submitted functions on a bounded set of goroutines in FILO order:
// the most recently idle worker serves the next function.
// WorkerPool 以 FILO 顺序复用协程执行任务
//
//	wp := pool.NewWorkerPool(64)
//	defer wp.Release()
//	_ = wp.Submit(func() { ... })
type WorkerPool struct {
	// MaxWorkersCount 最大协程数
	MaxWorkersCount int

	// MaxIdleWorkerDuration 空闲协程回收时间，默认10秒
	MaxIdleWorkerDuration time.Duration

	// OnPanic receives values recovered from panicking tasks. The worker survives.
	OnPanic func(err *lruntime.PanicError)

	lock         sync.Mutex
	workersCount int
	mustStop     bool
	ready        []*workerChan
	stopCh       chan struct{}
	chanPool     sync.Pool
	startOnce    sync.Once
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan func()
}

// NewWorkerPool creates and starts a pool with at most maxWorkers goroutines.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	wp := &WorkerPool{MaxWorkersCount: maxWorkers}
	wp.Start()
	return wp
}

// Start launches the idle worker cleaner. Calling it again is a no-op.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		wp.lock.Lock()
		wp.stopCh = make(chan struct{})
		stopCh := wp.stopCh
		wp.lock.Unlock()

		wp.chanPool.New = func() interface{} {
			return &workerChan{ch: make(chan func(), workerChanCap)}
		}
		go func() {
			var scratch []*workerChan
			ticker := time.NewTicker(wp.maxIdle())
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					wp.clean(&scratch)
				}
			}
		}()
	})
}

// Stop rejects further submissions and terminates idle workers.
// Busy workers exit once their current function returns.
func (wp *WorkerPool) Stop() {
	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return
	}
	wp.mustStop = true
	if wp.stopCh != nil {
		close(wp.stopCh)
	}
	ready := wp.ready
	for i := range ready {
		ready[i].ch <- nil
		ready[i] = nil
	}
	wp.ready = ready[:0]
	wp.lock.Unlock()
}

// Release is Stop.
func (wp *WorkerPool) Release() {
	wp.Stop()
}

// running returns the number of live workers, idle or busy.
func (wp *WorkerPool) running() int {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	return wp.workersCount
}

// Submit hands fn to an idle worker, starting a new one while under MaxWorkersCount.
// It never blocks waiting for capacity.
func (wp *WorkerPool) Submit(fn func()) error {
	ch, err := wp.getCh()
	if err != nil {
		return err
	}
	ch.ch <- fn
	return nil
}

func (wp *WorkerPool) maxIdle() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

// clean stops workers idle for longer than maxIdle. ready is ordered by lastUseTime,
// so the cut point is found with a binary search.
func (wp *WorkerPool) clean(scratch *[]*workerChan) {
	criticalTime := time.Now().Add(-wp.maxIdle())

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready)
	l, r := 0, n-1
	for l <= r {
		mid := (l + r) / 2
		if criticalTime.After(ready[mid].lastUseTime) {
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	if r == -1 {
		wp.lock.Unlock()
		return
	}
	*scratch = append((*scratch)[:0], ready[:r+1]...)
	m := copy(ready, ready[r+1:])
	for i := m; i < n; i++ {
		ready[i] = nil
	}
	wp.ready = ready[:m]
	wp.lock.Unlock()

	// 在锁外通知，避免阻塞
	tmp := *scratch
	for i := range tmp {
		tmp[i].ch <- nil
		tmp[i] = nil
	}
}

// blocking channels on a single CPU, buffered otherwise
var workerChanCap = func() int {
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	return 1
}()

func (wp *WorkerPool) getCh() (*workerChan, error) {
	var ch *workerChan
	createWorker := false

	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return nil, ErrPoolStopped
	}
	ready := wp.ready
	n := len(ready) - 1
	if n < 0 {
		if wp.workersCount < wp.MaxWorkersCount {
			createWorker = true
			wp.workersCount++
		}
	} else {
		ch = ready[n]
		ready[n] = nil
		wp.ready = ready[:n]
	}
	wp.lock.Unlock()

	if ch == nil {
		if !createWorker {
			return nil, ErrPoolFull
		}
		vch := wp.chanPool.Get()
		if vch == nil {
			// Start was never called
			vch = &workerChan{ch: make(chan func(), workerChanCap)}
		}
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.chanPool.Put(vch)
		}()
	}
	return ch, nil
}

func (wp *WorkerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()
	wp.lock.Lock()
	defer wp.lock.Unlock()
	if wp.mustStop {
		return false
	}
	wp.ready = append(wp.ready, ch)
	return true
}

func (wp *WorkerPool) workerFunc(ch *workerChan) {
	for fn := range ch.ch {
		if fn == nil {
			break
		}
		wp.run(fn)
		if !wp.release(ch) {
			break
		}
	}
	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}

func (wp *WorkerPool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if wp.OnPanic != nil {
				wp.OnPanic(lruntime.NewPanicError(r))
			}
		}
	}()
	fn()
}
