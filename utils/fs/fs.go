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

package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned when a file name resolves to nothing usable.
var ErrInvalidName = errors.New("invalid file name")

// LoadFile 加载文件，相对路径按当前工作目录解析
func LoadFile(filePath string) ([]byte, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, ErrInvalidName
	}
	return os.ReadFile(filepath.Clean(filePath))
}

// IsExist 路径是否存在
func IsExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil || os.IsExist(err)
}

// CreateDirs creates path and its parents when missing.
func CreateDirs(path string) error {
	if path == "" || IsExist(path) {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

// SafeName reduces name to its last path element so a remote-supplied name
// cannot escape the target directory.
func SafeName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", ErrInvalidName
	}
	return base, nil
}

// SaveStream copies r into dir/name without buffering the whole content.
// Data goes to a temporary file in dir first and is renamed on success, so a
// failed copy never leaves a partial file under the final name.
// It returns the final path and the number of bytes written.
func SaveStream(dir, name string, r io.Reader) (string, int64, error) {
	base, err := SafeName(name)
	if err != nil {
		return "", 0, err
	}
	if err = CreateDirs(dir); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.part")
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", n, err
	}
	target := filepath.Join(dir, base)
	if err = os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return "", n, err
	}
	return target, n, nil
}
