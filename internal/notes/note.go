// Package notes holds the dictation note collection, the active-note
// selection and its write-through persistence with a debounced auto-save.
package notes

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DateLayout is the display form of CreatedAt/UpdatedAt ("Mar 7, 2026").
const DateLayout = "Jan 2, 2006"

// Note is a single dictated document. WordCount and CharCount are derived
// from Content and are recomputed on every content mutation.
type Note struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	WordCount int    `json:"wordCount"`
	CharCount int    `json:"charCount"`
}

// Count returns the number of whitespace-delimited words and the number of
// characters in content.
func Count(content string) (words, chars int) {
	return len(strings.Fields(content)), utf8.RuneCountInString(content)
}

// withContent returns n with content replaced and counters recomputed.
func (n Note) withContent(content, date string) Note {
	n.Content = content
	n.WordCount, n.CharCount = Count(content)
	n.UpdatedAt = date
	return n
}

func newID() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v7.String()
}

func formatDate(t time.Time) string {
	return t.Format(DateLayout)
}
