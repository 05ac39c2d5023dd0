package extractor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestChainReadsPlainText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Invoice.TXT", "  Invoice for Acme Corp dated 2024-06-19\n")

	c := NewChain(PlainText{}, nil, nil, 0)
	got, err := c.Extract(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Invoice for Acme Corp dated 2024-06-19", got.Content)
	assert.Equal(t, "Invoice.TXT", got.Metadata.FileName)
	assert.Equal(t, ".txt", got.Metadata.Extension)
	assert.Equal(t, int64(41), got.Metadata.SizeBytes)
	assert.False(t, got.Metadata.ModifiedTime.IsZero())
}

func TestChainUnsupportedAndEmpty(t *testing.T) {
	dir := t.TempDir()
	c := NewChain(PlainText{}, nil, []string{".pdf"}, 0)

	got, err := c.Extract(context.Background(), writeFile(t, dir, "a.pdf", "%PDF"))
	require.NoError(t, err)
	assert.Nil(t, got, "no binary source configured")
	assert.False(t, c.Supports("a.pdf"))

	got, err = c.Extract(context.Background(), writeFile(t, dir, "blank.md", " \n\t "))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChainMissingFile(t *testing.T) {
	c := NewChain(PlainText{}, nil, nil, 0)
	_, err := c.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	assert.Error(t, err)
}

func TestChainTruncates(t *testing.T) {
	dir := t.TempDir()
	c := NewChain(PlainText{MaxBytes: 10}, nil, nil, 5)
	got, err := c.Extract(context.Background(), writeFile(t, dir, "long.txt", strings.Repeat("abc", 100)))
	require.NoError(t, err)
	assert.Equal(t, "abcab", got.Content)
}

func TestPlainTextDropsInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("ok\xff\xfeyes"), 0o644))

	text, err := PlainText{}.Text(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "okyes", text)
}

func TestTikaExtractsBinaryDocuments(t *testing.T) {
	var gotMethod, gotAccept, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAccept = r.Header.Get("Accept")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		assert.Equal(t, "/tika", r.URL.Path)
		_, _ = w.Write([]byte("Quarterly report for Globex\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeFile(t, dir, "report.pdf", "%PDF-1.4 fake")

	c := NewChain(PlainText{}, NewTika(srv.URL+"/", 0, 0), []string{"pdf", ".DOCX"}, 0)
	assert.True(t, c.Supports("x.docx"))

	got, err := c.Extract(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Quarterly report for Globex", got.Content)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "text/plain", gotAccept)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, "%PDF-1.4 fake", gotBody)
}

func TestTikaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	path := writeFile(t, t.TempDir(), "scan.png", "\x89PNG")
	_, err := NewTika(srv.URL, 0, 0).Text(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestTikaTruncationKeepsValidUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Café invoice")
	}))
	defer srv.Close()

	path := writeFile(t, t.TempDir(), "scan.pdf", "%PDF-1.4")
	// "Caf" plus the first byte of the two-byte "é".
	text, err := NewTika(srv.URL, 0, 4).Text(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Caf", text)
	assert.True(t, utf8.ValidString(text))
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/octet-stream", detectMimeType("noext"))
	assert.Equal(t, "application/pdf", detectMimeType("a.PDF"))
}
