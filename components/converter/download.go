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
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"reflect"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/utils/fs"
)

var fileDescriptorType = reflect.TypeOf(types.FileDescriptor{})

// DownloadConverter streams the body to Dir/Name without buffering it and returns a
// *types.FileDescriptor, a types.FileDescriptor or the file path, depending on the target.
// Dir defaults to Config.DownloadDir. Name defaults to the Content-Disposition file name,
// then the last URL path segment. Both may be templates.
type DownloadConverter struct {
	Dir  string
	Name string
}

func (d *DownloadConverter) Convert(inv *types.Invocation, resp *types.Response, target reflect.Type) (any, error) {
	if !resp.IsSuccess() {
		if err := readBody(resp); err != nil {
			return nil, err
		}
		return nil, statusError(inv, resp)
	}
	defer resp.Close()

	ev := evaluator(inv)
	ctx := ResponseContext(inv, resp)
	dir := d.Dir
	if dir == "" && inv.Config != nil {
		dir = inv.Config.DownloadDir
	}
	dir, err := ev.String(dir, ctx)
	if err != nil {
		return nil, err
	}
	name := d.Name
	if name != "" {
		if name, err = ev.String(name, ctx); err != nil {
			return nil, err
		}
	}
	if name == "" {
		name = suggestedName(resp)
	}

	var body io.Reader = resp.Stream
	if body == nil {
		body = bytes.NewReader(resp.Body)
	}
	filePath, n, err := fs.SaveStream(dir, name, body)
	if err != nil {
		return nil, err
	}
	fd := &types.FileDescriptor{
		Name:        filepath.Base(filePath),
		Path:        filePath,
		Size:        n,
		ContentType: resp.MediaType(),
		StatusCode:  resp.StatusCode,
	}
	switch target {
	case nil:
		return nil, nil
	case fileDescriptorType:
		return *fd, nil
	case stringType:
		return fd.Path, nil
	}
	return coerce("", fd, target)
}

func suggestedName(resp *types.Response) string {
	if resp.Header != nil {
		if cd := resp.Header.Get("Content-Disposition"); cd != "" {
			if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
				return params["filename"]
			}
		}
	}
	if resp.Request != nil {
		if u, err := url.Parse(resp.Request.URL); err == nil {
			if base := path.Base(u.Path); base != "/" && base != "." && base != "" {
				return base
			}
		}
	}
	return "download"
}
