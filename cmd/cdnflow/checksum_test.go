package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSha256Hex(t *testing.T) {
	input := "hello world\n"
	got, err := sha256Hex(strings.NewReader(input))
	require.NoError(t, err)

	h := sha256.Sum256([]byte(input))
	assert.Equal(t, hex.EncodeToString(h[:]), got)
}

func TestSha256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	data := []byte("cdnflow test data")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := sha256File(path)
	require.NoError(t, err)
	h := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(h[:]), got)

	_, err = sha256File("/nonexistent/file")
	assert.Error(t, err)
}

func TestVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	sum, err := sha256File(path)
	require.NoError(t, err)

	assert.NoError(t, verifyChecksum(path, sum))
	assert.NoError(t, verifyChecksum(path, ""), "unknown digest skips verification")

	err = verifyChecksum(path, strings.Repeat("0", 64))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestParseChecksumFile(t *testing.T) {
	hashA := strings.Repeat("a", 64)
	hashB := strings.Repeat("b", 64)

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "two-space and one-space formats",
			input: hashA + "  cdnflow_Darwin_arm64.tar.gz\n" + hashB + " cdnflow_Linux_x86_64.tar.gz\n",
			want: map[string]string{
				"cdnflow_Darwin_arm64.tar.gz": hashA,
				"cdnflow_Linux_x86_64.tar.gz": hashB,
			},
		},
		{name: "empty input", input: "", want: map[string]string{}},
		{name: "blank lines", input: "\n  \n\n", want: map[string]string{}},
		{name: "missing filename", input: hashA + "\n", want: map[string]string{}},
		{name: "short hash", input: "abc123  file.tar.gz\n", want: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChecksumFile(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDownloadToTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("binary content"))
	}))
	t.Cleanup(srv.Close)
	dir := t.TempDir()

	path, err := downloadToTempFile(srv.URL+"/asset", dir, srv.Client())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "binary content", string(data))
	assert.Equal(t, dir, filepath.Dir(path))

	_, err = downloadToTempFile(srv.URL+"/missing", dir, srv.Client())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// tarGz builds an in-memory tar.gz holding files.
func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractTarGz(t *testing.T) {
	archive := tarGz(t, map[string]string{
		"README.md":                         "docs",
		"mermaid-ascii_1.1.0/mermaid-ascii": "#!/bin/sh\n",
	})

	dir := t.TempDir()
	require.NoError(t, extractTarGz(bytes.NewReader(archive), dir, "mermaid-ascii"))
	data, err := os.ReadFile(filepath.Join(dir, "mermaid-ascii"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(data))

	err = extractTarGz(bytes.NewReader(archive), dir, "cdnflow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")

	assert.Error(t, extractTarGz(strings.NewReader("not gzip"), dir, "cdnflow"))
}
