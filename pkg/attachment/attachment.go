// Package attachment turns an uploaded document into text that is appended
// to the user's query before the pipeline runs.
package attachment

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"servicelines-be/pkg/apperr"
)

const (
	attachedHeader = "Attached file content:"

	// MaxTextBytes bounds the text a single attachment may contribute.
	MaxTextBytes = 64 * 1024
)

// Extractor reads the text of an uploaded file. Implementations fail with an
// UnreadableError for encrypted or corrupted documents.
type Extractor interface {
	Extract(ctx context.Context, filename string, r io.Reader) (string, error)
}

type UnreadableError struct {
	Filename string
	Reason   string
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("cannot read %s: %s", e.Filename, e.Reason)
}

func (e *UnreadableError) StatusCode() int { return 422 }

func (e *UnreadableError) Is(target error) bool { return target == apperr.ErrValidation }

// PlainTextExtractor accepts UTF-8 text files only.
type PlainTextExtractor struct{}

var _ Extractor = PlainTextExtractor{}

func (PlainTextExtractor) Extract(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxTextBytes+1))
	if err != nil {
		return "", &UnreadableError{Filename: filename, Reason: err.Error()}
	}
	if len(data) > MaxTextBytes {
		return "", &UnreadableError{Filename: filename, Reason: "file is too large"}
	}
	if !utf8.Valid(data) {
		return "", &UnreadableError{Filename: filename, Reason: "file is not valid UTF-8 text"}
	}
	return string(data), nil
}

// ComposeQuery appends attachment text to the query. Blank attachments leave
// the query untouched.
func ComposeQuery(query, attachmentText string) string {
	query = strings.TrimSpace(query)
	text := strings.TrimSpace(attachmentText)
	if text == "" {
		return query
	}
	if query == "" {
		return attachedHeader + "\n" + text
	}
	return query + "\n\n" + attachedHeader + "\n" + text
}
