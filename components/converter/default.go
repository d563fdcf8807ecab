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

package converter

import (
	"bytes"
	"io"
	"reflect"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/components/codec"
	"github.com/lucklike/luckliy-sub000/utils/json"
)

var (
	responseType   = reflect.TypeOf((*types.Response)(nil))
	readCloserType = reflect.TypeOf((*io.ReadCloser)(nil)).Elem()
	readerType     = reflect.TypeOf((*io.Reader)(nil)).Elem()
	bytesType      = reflect.TypeOf([]byte(nil))
	stringType     = reflect.TypeOf("")
)

// Default converts without expressions:
//   - *types.Response returns the raw response
//   - io.ReadCloser and io.Reader return the open body stream
//   - non-2xx statuses fail with *types.StatusError
//   - []byte and string return the body
//   - anything else is decoded by Content-Type; an empty body gives the zero value
//
// Error-only methods (nil target) only check the status.
type Default struct{}

func (d *Default) Convert(inv *types.Invocation, resp *types.Response, target reflect.Type) (any, error) {
	if resp.HasValue {
		return coerce("", resp.Value, target)
	}
	switch target {
	case responseType:
		return resp, nil
	case readCloserType, readerType:
		if !resp.IsSuccess() {
			if err := readBody(resp); err != nil {
				return nil, err
			}
			return nil, statusError(inv, resp)
		}
		if resp.Stream != nil {
			s := resp.Stream
			resp.Stream = nil
			return s, nil
		}
		return io.NopCloser(bytes.NewReader(resp.Body)), nil
	}
	if err := readBody(resp); err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(inv, resp)
	}
	switch target {
	case nil:
		return nil, nil
	case bytesType:
		return resp.Body, nil
	case stringType:
		return string(resp.Body), nil
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return reflect.Zero(target).Interface(), nil
	}
	name := codec.NameForContentType(resp.MediaType())
	if (name == codec.Raw || name == codec.Text) && json.Valid(resp.Body) {
		name = codec.JSON
	}
	c, err := codec.Lookup(name, codecs(inv))
	if err != nil {
		return nil, conversionError("", string(resp.Body), target, err)
	}
	p := reflect.New(target)
	if err = c.Decode(resp.Body, p.Interface()); err != nil {
		return nil, conversionError("", string(resp.Body), target, err)
	}
	return p.Elem().Interface(), nil
}
