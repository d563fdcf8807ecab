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

package lucky

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/builtin/interceptor"
	"github.com/lucklike/luckliy-sub000/components/transport"
	"github.com/lucklike/luckliy-sub000/utils/fs"
	"github.com/lucklike/luckliy-sub000/utils/maps"
	"github.com/lucklike/luckliy-sub000/utils/pool"
)

// FileConfig is the file form of a proxy configuration.
//
//	baseUrl: https://api.example.com
//	timeout: 5s
//	properties:
//	  region: eu
//	retry:
//	  maxAttempts: 3
//	  wait: 200ms
//	  retryOn: [timeout, connection]
//	poolSize: 64
//	pools:
//	  reports: 4
//	interceptors:
//	  - name: requestId
//	  - name: rateLimit
//	    attrs: {rate: 10, burst: 20}
//	transport:
//	  insecureSkipVerify: false
//	  maxConnsPerHost: 100
//	  timeout: 30s
type FileConfig struct {
	BaseURL    string         `json:"baseUrl"`
	Timeout    time.Duration  `json:"timeout"`
	Properties map[string]any `json:"properties"`
	// Retry is merged over the default retry settings.
	Retry                  types.RetrySettings `json:"retry"`
	DownloadDir            string              `json:"downloadDir"`
	ScriptMaxExecutionTime time.Duration       `json:"scriptMaxExecutionTime"`
	// PoolSize creates the shared pool of asynchronous methods with that many workers.
	PoolSize int `json:"poolSize"`
	// Pools are named pools by worker count.
	Pools        map[string]int           `json:"pools"`
	Interceptors []InterceptorFileConfig `json:"interceptors"`
	Transport    *transport.Options       `json:"transport"`

	hasRetry bool
}

// InterceptorFileConfig is a global interceptor built by a built-in factory.
type InterceptorFileConfig struct {
	Name  string            `json:"name"`
	Attrs map[string]string `json:"attrs"`
	// Order overrides the interceptor's own order when set.
	Order *int   `json:"order"`
	When  string `json:"when"`
}

// LoadConfig reads a YAML configuration file and returns it as options.
func LoadConfig(path string) ([]types.Option, error) {
	data, err := fs.LoadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fc.Options()
}

// ParseConfig decodes a YAML configuration.
func ParseConfig(data []byte) (*FileConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	fc := &FileConfig{Retry: types.DefaultRetrySettings()}
	if err := maps.WeakMap2Struct(raw, fc); err != nil {
		return nil, err
	}
	_, fc.hasRetry = raw["retry"]
	return fc, nil
}

// Options converts the configuration to options. Pools are created here and
// belong to the caller.
func (fc *FileConfig) Options() ([]types.Option, error) {
	var opts []types.Option
	if fc.BaseURL != "" {
		opts = append(opts, types.WithBaseURL(fc.BaseURL))
	}
	if fc.Timeout > 0 {
		opts = append(opts, types.WithTimeout(fc.Timeout))
	}
	if len(fc.Properties) > 0 {
		opts = append(opts, types.WithProperties(fc.Properties))
	}
	if fc.hasRetry {
		opts = append(opts, types.WithRetry(fc.Retry))
	}
	if fc.DownloadDir != "" {
		opts = append(opts, types.WithDownloadDir(fc.DownloadDir))
	}
	if fc.ScriptMaxExecutionTime > 0 {
		opts = append(opts, types.WithScriptMaxExecutionTime(fc.ScriptMaxExecutionTime))
	}
	if fc.PoolSize > 0 {
		opts = append(opts, types.WithPool(pool.NewWorkerPool(fc.PoolSize)))
	}
	for name, n := range fc.Pools {
		if n < 1 {
			return nil, fmt.Errorf("pool %s: workers must be at least 1", name)
		}
		opts = append(opts, types.WithNamedPool(name, pool.NewWorkerPool(n)))
	}
	factories := interceptor.Factories()
	for _, ic := range fc.Interceptors {
		factory, ok := factories[ic.Name]
		if !ok {
			return nil, fmt.Errorf("unknown interceptor: %s", ic.Name)
		}
		i, err := factory(ic.Attrs)
		if err != nil {
			return nil, fmt.Errorf("interceptor %s: %w", ic.Name, err)
		}
		reg := types.InterceptorRegistration{Name: ic.Name, Interceptor: i, Order: i.Order(), Scope: types.ScopeGlobal, When: ic.When}
		if ic.Order != nil {
			reg.Order = *ic.Order
		}
		opts = append(opts, types.WithInterceptorRegistration(reg))
	}
	if fc.Transport != nil {
		opts = append(opts, types.WithTransport(transport.New(*fc.Transport)))
	}
	return opts, nil
}
