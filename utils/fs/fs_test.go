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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	tempDir := t.TempDir()
	testData := []byte("baseUrl: http://localhost")

	testFilePath := filepath.Join(tempDir, "lucky.yaml")
	require.NoError(t, os.WriteFile(testFilePath, testData, 0644))
	data, err := LoadFile(testFilePath)
	require.NoError(t, err)
	assert.Equal(t, testData, data)

	data, err = LoadFile(filepath.Join(tempDir, "conf", "..", "lucky.yaml"))
	require.NoError(t, err)
	assert.Equal(t, testData, data)

	_, err = LoadFile(filepath.Join(tempDir, "nonexistent.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = LoadFile(" ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestIsExist(t *testing.T) {
	tempDir := t.TempDir()
	testFilePath := filepath.Join(tempDir, "exists.txt")
	assert.False(t, IsExist(testFilePath))

	file, err := os.Create(testFilePath)
	require.NoError(t, err)
	file.Close()

	assert.True(t, IsExist(testFilePath))
	assert.True(t, IsExist(tempDir))
	assert.False(t, IsExist(filepath.Join(tempDir, "nonexistentdir")))
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in, out string
		wantErr bool
	}{
		{in: "report.csv", out: "report.csv"},
		{in: "../../etc/passwd", out: "passwd"},
		{in: `..\..\boot.ini`, out: "boot.ini"},
		{in: "a/b/c.txt", out: "c.txt"},
		{in: "..", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SafeName(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidName, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.out, got)
	}
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, errors.New("connection reset")
	}
	r.n--
	p[0] = 'x'
	return 1, nil
}

func TestSaveStream(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	path, n, err := SaveStream(dir, "../data.bin", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data.bin"), path)
	assert.Equal(t, int64(7), n)
	data, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, n, err = SaveStream(dir, "broken.bin", &failingReader{n: 3})
	assert.Error(t, err)
	assert.Equal(t, int64(3), n)
	assert.False(t, IsExist(filepath.Join(dir, "broken.bin")))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
