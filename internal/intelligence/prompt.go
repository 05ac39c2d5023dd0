package intelligence

import (
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/types"
)

// Input bounds sent to the model.
const (
	MaxPromptContentChars    = 3000
	MaxEmbeddingContentChars = 8000
)

// DateLayout is the date prefix of every suggested name.
const DateLayout = "2006-01-02"

// SystemPrompt frames the naming task.
const SystemPrompt = "You are an expert document analyzer specializing in intelligent file naming and entity extraction. " +
	"Your task is to analyze document content and suggest descriptive, consistent file names following the format: " +
	"YYYY-MM-DD_EntityName_DescriptiveWords. Always maintain consistency with previously identified entities."

// BuildAnalysisPrompt renders the user prompt for content. Hints are earlier
// documents whose entity spellings the model should reuse.
func BuildAnalysisPrompt(content string, meta types.FileMetadata, hints []types.RelatedDocument, now time.Time) string {
	truncated := content
	if cut := storage.Truncate(content, MaxPromptContentChars); cut != content {
		truncated = cut + "..."
	}
	today := now.Format(DateLayout)

	created := "unknown"
	if !meta.CreatedTime.IsZero() {
		created = meta.CreatedTime.Format("2006-01-02 15:04:05")
	}
	fileName := meta.FileName
	if fileName == "" {
		fileName = "unknown"
	}
	ext := meta.Extension
	if ext == "" {
		ext = "unknown"
	}

	var b strings.Builder
	b.WriteString("Analyze the following document content and provide a JSON response with intelligent file naming suggestions.\n\n")
	b.WriteString("Document Content:\n")
	b.WriteString(truncated)
	b.WriteString("\n\nFile Metadata:\n")
	fmt.Fprintf(&b, "- Original filename: %s\n", fileName)
	fmt.Fprintf(&b, "- File type: %s\n", ext)
	fmt.Fprintf(&b, "- File size: %d bytes\n", meta.SizeBytes)
	fmt.Fprintf(&b, "- Created: %s\n", created)

	if len(hints) > 0 {
		b.WriteString("\nRelevant context from previous documents:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- File: %s, Entities: [%s]\n", h.FilePath, strings.Join(h.Entities, ", "))
		}
	}

	fmt.Fprintf(&b, `
Instructions:
1. Extract the document date (if mentioned) or use today's date: %s
2. Identify key entities (people, companies, organizations, clients)
3. Generate 2-4 descriptive keywords that capture the document's essence
4. Create a filename following this format: YYYY-MM-DD_EntityName_DescriptiveWords
5. Maintain consistency with entities from context (use same names for same entities)
6. Ensure the filename is filesystem-safe (no special characters except underscore and hyphen)

Respond with JSON in this exact format:
{
    "suggested_name": "2024-06-19_ClientName_ContractReview",
    "entities": ["ClientName", "CompanyName"],
    "confidence": 0.85,
    "reasoning": "Document appears to be a contract review for ClientName, dated June 19, 2024",
    "date": "2024-06-19",
    "keywords": ["contract", "review", "legal", "agreement"]
}
`, today)
	return b.String()
}
