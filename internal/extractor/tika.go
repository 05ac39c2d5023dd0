package extractor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTikaTimeout applies when no timeout is configured.
const DefaultTikaTimeout = 60 * time.Second

// Tika extracts text through an Apache Tika server's PUT /tika endpoint.
type Tika struct {
	serverURL  string
	httpClient *http.Client
	maxBytes   int64
}

// NewTika returns a Tika client for serverURL.
func NewTika(serverURL string, timeout time.Duration, maxBytes int64) *Tika {
	if timeout <= 0 {
		timeout = DefaultTikaTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTextBytes
	}
	return &Tika{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

// Text implements TextSource.
func (t *Tika) Text(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.serverURL+"/tika", f)
	if err != nil {
		return "", fmt.Errorf("failed to create tika request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", detectMimeType(path))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tika request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("tika returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read tika response: %w", err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func detectMimeType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}
	if mt := mime.TypeByExtension(strings.ToLower(ext)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
