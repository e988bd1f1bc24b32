package notes

import (
	"errors"
	"strings"
)

// ErrUnknownFormat is returned by Export for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown export format")

// Export is a downloadable rendition of a note.
type Export struct {
	FileName string
	MIMEType string
	Data     []byte
}

var exportTypes = map[string]string{
	"txt": "text/plain",
	"doc": "application/msword",
}

// Formats lists the accepted Export format names.
func Formats() []string {
	return []string{"txt", "doc"}
}

// Export renders note id as <title>.<format>. The body is the raw content
// for both formats.
func (s *Store) Export(id, format string) (Export, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	mime, ok := exportTypes[format]
	if !ok {
		return Export{}, ErrUnknownFormat
	}
	note, ok := s.Get(id)
	if !ok {
		return Export{}, ErrNoteNotFound
	}
	return Export{
		FileName: exportName(note.Title) + "." + format,
		MIMEType: mime,
		Data:     []byte(note.Content),
	}, nil
}

func exportName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		return "note"
	}
	return name
}
