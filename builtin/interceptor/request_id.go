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
	"github.com/gofrs/uuid/v5"

	"github.com/lucklike/luckliy-sub000/api/types"
)

var _ types.BeforeInterceptor = (*RequestId)(nil)

const requestIdKey = "requestId"

// RequestId sets a request id header. The id is generated once per call, so
// every retry of a call carries the same id. A header already set by a marker is kept.
//
// RequestId 设置请求ID头，同一次调用的所有重试使用同一个ID。
type RequestId struct {
	// Header defaults to X-Request-Id.
	Header string
}

// NewRequestId builds a RequestId interceptor. Attributes: header.
func NewRequestId(attrs map[string]string) (types.Interceptor, error) {
	return &RequestId{Header: attrs["header"]}, nil
}

func (r *RequestId) Order() int {
	return 5
}

func (r *RequestId) Name() string {
	return NameRequestId
}

func (r *RequestId) Before(inv *types.Invocation) types.Outcome {
	header := r.Header
	if header == "" {
		header = types.RequestIdKey
	}
	if inv.Request.Header.Get(header) != "" {
		return types.Continue()
	}
	id, ok := inv.Attr(requestIdKey)
	if !ok {
		u, err := uuid.NewV4()
		if err != nil {
			return types.Abort(err)
		}
		id = u.String()
		inv.SetAttr(requestIdKey, id)
	}
	if err := inv.Request.SetHeader(header, id.(string)); err != nil {
		return types.Abort(err)
	}
	return types.Continue()
}
