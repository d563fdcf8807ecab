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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/transport"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type settings struct {
	Name     string `json:"name"`
	Replicas int    `json:"replicas"`
}

type BaseAPI struct {
	_ Meta `lucky:"base('${global.host}'); header('Accept: application/json'); interceptor(requestId)"`

	Ping func() (string, error) `lucky:"get(/ping)"`
}

type UserAPI struct {
	BaseAPI
	_ Meta `lucky:"retry(max=3, wait=1ms)"`

	GetUser  func(ctx context.Context, id int) (*user, error) `lucky:"get(/users/{id})" params:"path(id)"`
	Search   func(q string, tags []string) ([]user, error)   `lucky:"get(/users)" params:"query(q) | queries(name='tag[${index}]')"`
	Create   func(u *user) (*user, error)                    `lucky:"post(/users); result('${body.data}')" params:"json"`
	GetAsync func(id int) *Future[user]                      `lucky:"get(/users/{id})" params:"path(id)"`
	Flaky    func() (string, error)                          `lucky:"get(/flaky); retry(max=3, wait=1ms, accept='${status == 200}')"`
	Settings func() (*settings, error)                       `lucky:"get(/settings)"`
	Limited  func() (string, error)                          `lucky:"get(/ping); interceptor(concurrencyLimit, max=2); interceptor(debug)"`
	Plain    func() string
}

type server struct {
	*httptest.Server
	flaky      int32
	mu         sync.Mutex
	requestIds []string
	accept     string
	query      string
}

func newServer() *server {
	s := &server{}
	router := httprouter.New()
	router.GET("/ping", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		_, _ = io.WriteString(w, "pong")
	})
	router.GET("/users/:id", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.mu.Lock()
		s.accept = r.Header.Get("Accept")
		s.requestIds = append(s.requestIds, r.Header.Get(types.RequestIdKey))
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":`+ps.ByName("id")+`,"name":"user-`+ps.ByName("id")+`"}`)
	})
	router.GET("/users", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.mu.Lock()
		s.query = r.URL.RawQuery
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":1,"name":"a"},{"id":2,"name":"b"}]`)
	})
	router.POST("/users", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var u user
		_ = json.NewDecoder(r.Body).Decode(&u)
		u.ID = 42
		b, _ := json.Marshal(map[string]any{"data": u})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(b)
	})
	router.GET("/flaky", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.mu.Lock()
		s.requestIds = append(s.requestIds, r.Header.Get(types.RequestIdKey))
		s.mu.Unlock()
		if atomic.AddInt32(&s.flaky, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	})
	router.GET("/settings", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = io.WriteString(w, "name: lucky\nreplicas: 3\n")
	})
	router.GET("/echo/:name", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		_, _ = io.WriteString(w, r.Header.Get(ps.ByName("name")))
	})
	s.Server = httptest.NewServer(router)
	return s
}

func (s *server) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIds...)
}

func bindUserAPI(t *testing.T, srv *server, opts ...types.Option) (*UserAPI, *Proxy) {
	t.Helper()
	api := &UserAPI{}
	opts = append([]types.Option{types.WithProperties(map[string]any{"host": srv.URL})}, opts...)
	p, err := Bind(api, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return api, p
}

func TestBind(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	api, p := bindUserAPI(t, srv)

	assert.Equal(t, []string{"Create", "Flaky", "GetAsync", "GetUser", "Limited", "Ping", "Search", "Settings"}, p.Methods())
	assert.Nil(t, api.Plain)

	s, err := api.Ping()
	require.NoError(t, err)
	assert.Equal(t, "pong", s)

	u, err := api.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, &user{ID: 7, Name: "user-7"}, u)
	assert.Equal(t, "application/json", srv.accept)
	require.Len(t, srv.ids(), 1)
	assert.Len(t, srv.ids()[0], 36)

	users, err := api.Search("ann", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []user{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, users)
	assert.Equal(t, "q=ann&tag%5B0%5D=a&tag%5B1%5D=b", srv.query)

	created, err := api.Create(&user{Name: "bob"})
	require.NoError(t, err)
	assert.Equal(t, &user{ID: 42, Name: "bob"}, created)

	f := api.GetAsync(9)
	got, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, user{ID: 9, Name: "user-9"}, got)

	cfg, err := api.Settings()
	require.NoError(t, err)
	assert.Equal(t, &settings{Name: "lucky", Replicas: 3}, cfg)
}

func TestBindRetriesKeepRequestId(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	api, _ := bindUserAPI(t, srv)

	s, err := api.Flaky()
	require.NoError(t, err)
	assert.Equal(t, "ok", s)
	ids := srv.ids()
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])
}

func TestBindInterceptors(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	var logged int32
	logger := types.LoggerFunc(func(format string, v ...interface{}) {
		atomic.AddInt32(&logged, 1)
	})
	api, p := bindUserAPI(t, srv, types.WithLogger(logger))

	m, ok := p.Method("Limited")
	require.True(t, ok)
	var names []string
	for _, r := range m.Chain().Registrations() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"requestId", "concurrencyLimit", "debug"}, names)

	s, err := api.Limited()
	require.NoError(t, err)
	assert.Equal(t, "pong", s)
	// debug logs the request and the response
	assert.Equal(t, int32(2), atomic.LoadInt32(&logged))
}

func TestProxyInvoke(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	_, p := bindUserAPI(t, srv)

	v, err := p.Invoke(context.Background(), "GetUser", 5)
	require.NoError(t, err)
	assert.Equal(t, &user{ID: 5, Name: "user-5"}, v)

	v, err = p.Invoke(context.Background(), "GetAsync", 6)
	require.NoError(t, err)
	f, ok := v.(*Future[user])
	require.True(t, ok)
	got, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, got.ID)

	_, err = p.Invoke(context.Background(), "Nope")
	assert.ErrorIs(t, err, types.ErrMethodNotFound)
}

type brokenAPI struct {
	Get func() (string, error) `lucky:"get(/x); nosuchmarker"`
}

type unknownInterceptorAPI struct {
	Get func() (string, error) `lucky:"get(/x); interceptor(nope)"`
}

func TestBindErrors(t *testing.T) {
	_, err := Bind(nil)
	assert.ErrorIs(t, err, types.ErrNotPointerToStruct)
	_, err = Bind(UserAPI{})
	assert.ErrorIs(t, err, types.ErrNotPointerToStruct)
	var np *UserAPI
	_, err = Bind(np)
	assert.ErrorIs(t, err, types.ErrNotPointerToStruct)

	_, err = Bind(&brokenAPI{})
	assert.Equal(t, types.KindResolution, types.KindOf(err))

	_, err = Bind(&unknownInterceptorAPI{})
	var ue *types.UnknownMarkerError
	assert.True(t, errors.As(err, &ue))

	assert.Panics(t, func() { MustBind(&brokenAPI{}) })

	_, err = Bind(&UserAPI{}, types.WithRetry(types.RetrySettings{}))
	assert.Error(t, err)
}

type tracedAPI struct {
	Echo func(name string) (string, error) `lucky:"get(/echo/{name}); traced" params:"path(name)"`
}

func TestRegisterMarker(t *testing.T) {
	_ = RegisterMarker("traced", "header('X-Traced: yes')")
	// names are unique
	assert.Error(t, RegisterMarker("traced", "header('X-Traced: no')"))

	srv := newServer()
	defer srv.Close()
	api := &tracedAPI{}
	p := MustBind(api, types.WithBaseURL(srv.URL))
	defer p.Close()

	s, err := api.Echo("X-Traced")
	require.NoError(t, err)
	assert.Equal(t, "yes", s)
}

const configYAML = `
baseUrl: http://127.0.0.1:8080
timeout: 5s
properties:
  region: eu
retry:
  maxAttempts: 3
  wait: 200ms
  retryOn: [timeout, connection]
poolSize: 8
pools:
  reports: 2
interceptors:
  - name: requestId
  - name: rateLimit
    order: 3
    attrs: {rate: 10, burst: 20}
transport:
  maxConnsPerHost: 16
  timeout: 30s
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lucky.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	opts, err := LoadConfig(path)
	require.NoError(t, err)
	cfg, err := types.NewConfigE(opts...)
	require.NoError(t, err)
	defer cfg.Pool.Release()
	defer cfg.Pools["reports"].Release()

	assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "eu", cfg.Properties["region"])
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.Wait)
	// unset fields keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxWait)
	assert.Equal(t, float64(2), cfg.Retry.Multiplier)
	assert.Equal(t, []string{"timeout", "connection"}, cfg.Retry.RetryOn)
	assert.NotNil(t, cfg.Pool)
	assert.Contains(t, cfg.Pools, "reports")

	require.Len(t, cfg.Interceptors, 2)
	assert.Equal(t, "requestId", cfg.Interceptors[0].Name)
	assert.Equal(t, 5, cfg.Interceptors[0].Order)
	assert.Equal(t, "rateLimit", cfg.Interceptors[1].Name)
	assert.Equal(t, 3, cfg.Interceptors[1].Order)

	tr, ok := cfg.Transport.(*transport.HTTPTransport)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, tr.Client.Timeout)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("baseUrl: [1"))
	assert.Error(t, err)

	fc, err := ParseConfig([]byte("interceptors:\n  - name: nope\n"))
	require.NoError(t, err)
	_, err = fc.Options()
	assert.EqualError(t, err, "unknown interceptor: nope")

	fc, err = ParseConfig([]byte("interceptors:\n  - name: rateLimit\n    attrs: {rate: x}\n"))
	require.NoError(t, err)
	_, err = fc.Options()
	assert.Error(t, err)

	// without a retry section the defaults stay untouched
	fc, err = ParseConfig([]byte("baseUrl: http://x"))
	require.NoError(t, err)
	opts, err := fc.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}
