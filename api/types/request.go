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

package types

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is the assembled request of one call. It is mutable while assembling and in
// before-hooks, and frozen once handed to the transport.
// Request 请求描述，交给传输层后不可修改
type Request struct {
	Method string
	// URL is the absolute or relative url with path placeholders substituted.
	URL        string
	PathParams map[string]string
	Header     http.Header
	Query      url.Values
	Cookies    []*http.Cookie
	Form       url.Values
	// Body is the encoded request body.
	Body        []byte
	HasBody     bool
	ContentType string
	Timeout     time.Duration
	// Stream asks the transport to return the response body unread.
	Stream bool

	frozen bool
}

// NewRequest creates an empty request.
func NewRequest(method, rawURL string) *Request {
	return &Request{
		Method:     method,
		URL:        rawURL,
		PathParams: make(map[string]string),
		Header:     make(http.Header),
		Query:      make(url.Values),
		Form:       make(url.Values),
	}
}

// Frozen reports whether the request was handed to the transport.
func (r *Request) Frozen() bool {
	return r.frozen
}

// Freeze makes the request read-only for the mutating helpers.
func (r *Request) Freeze() {
	r.frozen = true
}

// Clone returns a deep, unfrozen copy.
func (r *Request) Clone() *Request {
	c := *r
	c.frozen = false
	c.PathParams = make(map[string]string, len(r.PathParams))
	for k, v := range r.PathParams {
		c.PathParams[k] = v
	}
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	c.Query = cloneValues(r.Query)
	c.Form = cloneValues(r.Form)
	if r.Cookies != nil {
		c.Cookies = make([]*http.Cookie, len(r.Cookies))
		for i, ck := range r.Cookies {
			cp := *ck
			c.Cookies[i] = &cp
		}
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// SetHeader sets a header, replacing previous values.
func (r *Request) SetHeader(key, value string) error {
	if r.frozen {
		return ErrRequestFrozen
	}
	r.Header.Set(key, value)
	return nil
}

// AddHeader appends a header value.
func (r *Request) AddHeader(key, value string) error {
	if r.frozen {
		return ErrRequestFrozen
	}
	r.Header.Add(key, value)
	return nil
}

// SetQuery sets a query parameter, replacing previous values.
func (r *Request) SetQuery(key, value string) error {
	if r.frozen {
		return ErrRequestFrozen
	}
	r.Query.Set(key, value)
	return nil
}

// AddQuery appends a query parameter value.
func (r *Request) AddQuery(key, value string) error {
	if r.frozen {
		return ErrRequestFrozen
	}
	r.Query.Add(key, value)
	return nil
}

// SetBody sets the encoded body and its content type.
func (r *Request) SetBody(body []byte, contentType string) error {
	if r.frozen {
		return ErrRequestFrozen
	}
	r.Body = body
	r.HasBody = true
	if contentType != "" {
		r.ContentType = contentType
	}
	return nil
}

// FullURL returns URL with the accumulated query merged into it.
func (r *Request) FullURL() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", err
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Payload returns the body reader and content type, encoding form fields when no body was set.
func (r *Request) Payload() (io.Reader, string) {
	if r.HasBody {
		return bytes.NewReader(r.Body), r.ContentType
	}
	if len(r.Form) > 0 {
		return strings.NewReader(r.Form.Encode()), "application/x-www-form-urlencoded"
	}
	return nil, ""
}

func cloneValues(v url.Values) url.Values {
	c := make(url.Values, len(v))
	for k, vs := range v {
		c[k] = append([]string(nil), vs...)
	}
	return c
}

// Response is the raw response of one attempt, or a synthesized one from a short-circuit.
// Response 原始响应
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Cookies    []*http.Cookie
	Body       []byte
	// Stream is the unread body when the request asked for streaming.
	Stream io.ReadCloser
	// Request is the frozen request that produced this response.
	Request *Request
	// Value is the final return value supplied by a short-circuiting interceptor.
	Value    any
	HasValue bool
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// MediaType returns the Content-Type without parameters.
func (r *Response) MediaType() string {
	if r.Header == nil {
		return ""
	}
	ct := r.Header.Get(ContentTypeKey)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

// ReadBody drains Stream into Body.
func (r *Response) ReadBody() ([]byte, error) {
	if r.Stream == nil {
		return r.Body, nil
	}
	defer r.Close()
	b, err := io.ReadAll(r.Stream)
	if err != nil {
		return nil, err
	}
	r.Body = b
	return b, nil
}

// Close closes the stream, if any.
func (r *Response) Close() error {
	if r == nil || r.Stream == nil {
		return nil
	}
	s := r.Stream
	r.Stream = nil
	return s.Close()
}

// CookieMap returns cookie values by name.
func (r *Response) CookieMap() map[string]string {
	m := make(map[string]string, len(r.Cookies))
	for _, c := range r.Cookies {
		m[c.Name] = c.Value
	}
	return m
}
