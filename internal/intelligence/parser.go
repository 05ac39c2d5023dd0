package intelligence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/scrypster/fileflow/pkg/types"
)

// defaultConfidence is used when the model omits a confidence.
const defaultConfidence = 0.5

type analysisResponse struct {
	SuggestedName string   `json:"suggested_name"`
	Entities      []string `json:"entities"`
	Confidence    *float64 `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Date          string   `json:"date"`
	Keywords      []string `json:"keywords"`
}

// extractJSON returns the first balanced JSON object in text, tolerating
// markdown fences and chatter around it.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}
	depth := 0
	inString, escape := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '{':
			depth++
		case !inString && ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// ParseAnalysis decodes a model reply. The confidence is clamped, a missing
// date becomes today and the suggested name is sanitised; a reply without a
// usable name is an error.
func ParseAnalysis(raw string, now time.Time) (types.Analysis, error) {
	var resp analysisResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return types.Analysis{}, fmt.Errorf("failed to parse analysis: %w", err)
	}

	name := SanitizeName(resp.SuggestedName)
	if name == "" {
		return types.Analysis{}, errors.New("analysis has no suggested name")
	}

	confidence := defaultConfidence
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}
	date := strings.TrimSpace(resp.Date)
	if date == "" {
		date = now.Format(DateLayout)
	}

	entities := make([]string, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}
	keywords := resp.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	return types.Analysis{
		SuggestedName: name,
		Entities:      entities,
		Confidence:    types.ClampConfidence(confidence),
		Reasoning:     resp.Reasoning,
		Date:          date,
		Keywords:      keywords,
	}, nil
}

// SanitizeName makes name filesystem-safe: whitespace becomes underscores,
// only letters, digits, '_', '-' and '.' survive, and runs of underscores
// collapse.
func SanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r) || r == '_':
			if !lastUnderscore {
				b.WriteRune('_')
			}
			lastUnderscore = true
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.':
			b.WriteRune(r)
		}
		lastUnderscore = false
	}
	return strings.Trim(b.String(), "_.-")
}

// FallbackAnalysis is the result used whenever analysis fails.
func FallbackAnalysis(now time.Time, cause error) types.Analysis {
	reason := "analysis unavailable"
	if cause != nil {
		reason = "AI analysis failed: " + cause.Error()
	}
	return types.Analysis{
		SuggestedName: now.Format(DateLayout) + "_Unknown_Document",
		Entities:      []string{},
		Confidence:    0.1,
		Reasoning:     reason,
		Date:          now.Format(DateLayout),
		Keywords:      []string{},
	}
}
