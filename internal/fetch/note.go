package fetch

import (
	"strings"

	"contentflow/internal/models"
	"contentflow/internal/util"
)

const noteTitleRunes = 30

// fetchNote does no I/O. The title is the start of the first line.
func fetchNote(content string) (Bundle, error) {
	text := strings.TrimSpace(content)
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	return Bundle{
		Type:               models.TypeNote,
		ContentToVectorize: text,
		ContentToSave:      text,
		Title:              strings.TrimSpace(util.FirstRunes(strings.TrimSpace(firstLine), noteTitleRunes)),
		Note:               &NoteDetails{Lines: strings.Count(text, "\n") + 1},
	}, nil
}
