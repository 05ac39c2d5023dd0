// Package extractor turns files on disk into text plus file metadata.
//
// Plain-text formats are read directly; binary documents and images are sent
// to an Apache Tika server. A Chain picks the right reader by extension.
package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// DefaultMaxTextBytes bounds how much text is kept per file.
const DefaultMaxTextBytes = 1 << 20

// TextExtensions are read from disk without a Tika round trip.
var TextExtensions = []string{".txt", ".md", ".csv", ".json", ".xml", ".html", ".eml", ".log"}

// Extractor returns the content of path. A nil result with a nil error means
// the file is unsupported or yielded no text.
type Extractor interface {
	Extract(ctx context.Context, path string) (*types.ExtractedContent, error)
}

// TextSource reads text for one path. Implementations do not need to stat
// the file or build metadata; Chain does that.
type TextSource interface {
	Text(ctx context.Context, path string) (string, error)
}

// Metadata stats path. Portable creation times are unavailable, so the
// modification time stands in for both.
func Metadata(path string) (types.FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.FileMetadata{}, err
	}
	if info.IsDir() {
		return types.FileMetadata{}, fmt.Errorf("%s is a directory", path)
	}
	return types.FileMetadata{
		FileName:     info.Name(),
		Extension:    strings.ToLower(filepath.Ext(path)),
		SizeBytes:    info.Size(),
		CreatedTime:  info.ModTime().UTC(),
		ModifiedTime: info.ModTime().UTC(),
	}, nil
}

// PlainText reads UTF-8 text files, dropping invalid byte sequences.
type PlainText struct {
	MaxBytes int64
}

// Text implements TextSource.
func (p PlainText) Text(_ context.Context, path string) (string, error) {
	limit := p.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxTextBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// Chain routes each extension to a TextSource.
type Chain struct {
	sources  map[string]TextSource
	maxRunes int
}

// NewChain returns a Chain that serves text extensions with text, and every
// extension in binary with binary. A nil binary source leaves those
// extensions unsupported.
func NewChain(text TextSource, binary TextSource, binaryExts []string, maxRunes int) *Chain {
	c := &Chain{sources: make(map[string]TextSource), maxRunes: maxRunes}
	if binary != nil {
		for _, ext := range binaryExts {
			c.sources[normalizeExt(ext)] = binary
		}
	}
	if text != nil {
		for _, ext := range TextExtensions {
			c.sources[ext] = text
		}
	}
	return c
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Supports reports whether path's extension has a source.
func (c *Chain) Supports(path string) bool {
	_, ok := c.sources[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract implements Extractor.
func (c *Chain) Extract(ctx context.Context, path string) (*types.ExtractedContent, error) {
	src, ok := c.sources[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, nil
	}
	meta, err := Metadata(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	text, err := src.Text(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", path, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Debugw("extractor: no text", "path", path)
		return nil, nil
	}
	if c.maxRunes > 0 && utf8.RuneCountInString(text) > c.maxRunes {
		text = string([]rune(text)[:c.maxRunes])
	}
	return &types.ExtractedContent{Content: text, Metadata: meta}, nil
}
