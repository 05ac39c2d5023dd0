package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Relevance and summary bounds shared by the record store and context memory.
const (
	// RelatedKeywordProbe is how many leading keywords SearchRelatedDocuments matches.
	RelatedKeywordProbe = 3

	// MaxSummaryChars bounds DocumentContext.ContentSummary.
	MaxSummaryChars = 500

	// MaxContextKeywords bounds DocumentContext.Keywords.
	MaxContextKeywords = 10
)

// TimeLayout is the fixed-width UTC layout used for every timestamp column so
// that lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout (or RFC3339) timestamp. Malformed input
// yields the zero time.
func ParseTime(s string) time.Time {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// ContentHash returns the sha256 hex digest stored with analyses.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
