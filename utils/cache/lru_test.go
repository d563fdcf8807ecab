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

package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUBound(t *testing.T) {
	c := NewLRU[string, int](3)
	for i := 0; i < 10; i++ {
		c.Add(fmt.Sprintf("k%d", i), i)
		assert.LessOrEqual(t, c.Len(), 3)
	}
	assert.Equal(t, []string{"k7", "k8", "k9"}, c.Keys())
	assert.Equal(t, int64(7), c.Stats().Evictions)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Add("c", 3)

	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
}

func TestLRUDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewLRU[int, int](0).Capacity())
}

func TestGetOrLoad(t *testing.T) {
	c := NewLRU[string, string](4)
	var loads atomic.Int32
	load := func(k string) (string, error) {
		loads.Add(1)
		return "v:" + k, nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad("x", load)
			assert.NoError(t, err)
			assert.Equal(t, "v:x", v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())

	_, err := c.GetOrLoad("bad", func(string) (string, error) { return "", errors.New("fail") })
	assert.EqualError(t, err, "fail")
	assert.False(t, c.Contains("bad"))

	st := c.Stats()
	assert.Positive(t, st.Hits+st.Misses)
	assert.Equal(t, 1, c.Len())
}
