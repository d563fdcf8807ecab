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

// Package transport provides the default net/http transport of proxy methods.
//
// Package transport 默认的 HTTP 传输层
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"time"

	"golang.org/x/net/proxy"

	"github.com/lucklike/luckliy-sub000/api/types"
)

// ProxySchemeSOCKS5 selects the SOCKS5 dialer instead of an HTTP proxy.
const ProxySchemeSOCKS5 = "socks5"

var _ types.Transport = (*HTTPTransport)(nil)

// Options configures the http client of an HTTPTransport.
type Options struct {
	// InsecureSkipVerify 是否跳过证书验证
	InsecureSkipVerify bool `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
	// MaxConnsPerHost 每个主机的最大连接数，0 不限制
	MaxConnsPerHost int `json:"maxConnsPerHost" yaml:"maxConnsPerHost"`
	// Timeout is the client timeout. Requests carrying their own timeout use the smaller one.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// EnableProxy 是否开启代理
	EnableProxy bool `json:"enableProxy" yaml:"enableProxy"`
	// UseSystemProxyProperties 使用系统配置代理
	UseSystemProxyProperties bool `json:"useSystemProxyProperties" yaml:"useSystemProxyProperties"`
	// ProxyScheme 代理协议: http, https, socks5
	ProxyScheme string `json:"proxyScheme" yaml:"proxyScheme"`
	// ProxyHost 代理主机
	ProxyHost string `json:"proxyHost" yaml:"proxyHost"`
	// ProxyPort 代理端口
	ProxyPort int `json:"proxyPort" yaml:"proxyPort"`
	// ProxyUser 代理用户名
	ProxyUser string `json:"proxyUser" yaml:"proxyUser"`
	// ProxyPassword 代理密码
	ProxyPassword string `json:"proxyPassword" yaml:"proxyPassword"`
}

// HTTPTransport executes requests with a net/http client.
type HTTPTransport struct {
	Client *http.Client
}

// New creates a transport with a client built from opts.
func New(opts Options) *HTTPTransport {
	return &HTTPTransport{Client: NewHttpClient(opts)}
}

// Default creates a transport with default options.
func Default() *HTTPTransport {
	return New(Options{})
}

// NewHttpClient builds the http client: TLS verification, connection bound and proxy.
func NewHttpClient(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}
	transport.MaxConnsPerHost = opts.MaxConnsPerHost

	// 配置代理
	if opts.EnableProxy {
		if opts.UseSystemProxyProperties {
			if proxyURL := SystemProxy(); proxyURL != nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		} else if proxyURL := BuildProxyURL(opts.ProxyScheme, opts.ProxyHost, opts.ProxyPort, opts.ProxyUser, opts.ProxyPassword); proxyURL != nil {
			if opts.ProxyScheme == ProxySchemeSOCKS5 {
				// SOCKS5代理需要特殊处理
				transport.Proxy = nil
				transport.DialContext = SOCKS5Dialer(proxyURL)
			} else {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}
	return &http.Client{Transport: transport, Timeout: opts.Timeout}
}

// SystemProxy reads the proxy from the HTTP_PROXY / HTTPS_PROXY environment variables.
func SystemProxy() *url.URL {
	for _, env := range []string{"HTTP_PROXY", "http_proxy", "HTTPS_PROXY", "https_proxy"} {
		if proxyStr := os.Getenv(env); proxyStr != "" {
			if proxyURL, err := url.Parse(proxyStr); err == nil {
				return proxyURL
			}
		}
	}
	return nil
}

// BuildProxyURL 构建代理URL
func BuildProxyURL(scheme, host string, port int, user, password string) *url.URL {
	if scheme == "" || host == "" || port == 0 {
		return nil
	}
	u := &url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, port)}
	if user != "" && password != "" {
		u.User = url.UserPassword(user, password)
	}
	return u
}

// SOCKS5Dialer 创建SOCKS5拨号器
func SOCKS5Dialer(proxyURL *url.URL) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var auth *proxy.Auth
		if proxyURL.User != nil {
			if password, ok := proxyURL.User.Password(); ok {
				auth = &proxy.Auth{
					User:     proxyURL.User.Username(),
					Password: password,
				}
			}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}
}

// Execute sends req. Non-2xx statuses are not errors here. When req.Stream is set the
// response carries the open body, which also holds the request timeout until closed.
func (t *HTTPTransport) Execute(ctx context.Context, req *types.Request) (*types.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		cancel()
		return nil, &types.TransportError{Reason: types.ReasonOther, Method: req.Method, URL: req.URL, Cause: err}
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &types.TransportError{Reason: Classify(ctx, err), Method: req.Method, URL: httpReq.URL.String(), Cause: err}
	}
	out := &types.Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
		Request:    req,
	}
	if req.Stream {
		out.Stream = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return out, nil
	}
	defer cancel()
	defer resp.Body.Close()
	if out.Body, err = io.ReadAll(resp.Body); err != nil {
		return nil, &types.TransportError{Reason: Classify(ctx, err), Method: req.Method, URL: httpReq.URL.String(), Cause: err}
	}
	return out, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, req *types.Request) (*http.Request, error) {
	fullURL, err := req.FullURL()
	if err != nil {
		return nil, err
	}
	body, contentType := req.Payload()
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" && httpReq.Header.Get(types.ContentTypeKey) == "" {
		httpReq.Header.Set(types.ContentTypeKey, contentType)
	}
	for _, c := range req.Cookies {
		httpReq.AddCookie(c)
	}
	return httpReq, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// Classify narrows a client error to a transport failure reason.
func Classify(ctx context.Context, err error) types.TransportReason {
	var (
		netErr      net.Error
		dnsErr      *net.DNSError
		opErr       *net.OpError
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return types.ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return types.ReasonTimeout
	case errors.As(err, &verifyErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr),
		errors.As(err, &invalidErr), errors.As(err, &recordErr):
		return types.ReasonTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		return types.ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.As(err, &dnsErr), errors.As(err, &opErr):
		return types.ReasonConnection
	}
	if ctx != nil && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.ReasonTimeout
		}
		return types.ReasonCanceled
	}
	return types.ReasonOther
}
