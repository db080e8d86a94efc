package fetch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"contentflow/internal/models"
)

// Bundle is the normalized result of fetching one item. The shared fields are
// always set; exactly one of the variant pointers is set, matching Type.
type Bundle struct {
	Type               models.ContentType `json:"type"`
	ContentToVectorize string             `json:"content_to_vectorize"`
	ContentToSave      string             `json:"content_to_save"`
	Title              string             `json:"title,omitempty"`
	Description        string             `json:"description,omitempty"`
	PreviewImage       string             `json:"preview_image,omitempty"`
	URL                string             `json:"url,omitempty"`

	Page      *PageDetails      `json:"page,omitempty"`
	Tweet     *TweetDetails     `json:"tweet,omitempty"`
	Note      *NoteDetails      `json:"note,omitempty"`
	Document  *DocumentDetails  `json:"document,omitempty"`
	Workspace *WorkspaceDetails `json:"workspace,omitempty"`
}

type PageDetails struct {
	Publisher string `json:"publisher,omitempty"`
	Author    string `json:"author,omitempty"`
	Lang      string `json:"lang,omitempty"`
}

type TweetDetails struct {
	ID       string   `json:"id"`
	Author   string   `json:"author,omitempty"`
	Unrolled bool     `json:"unrolled"`
	Posts    int      `json:"posts"`
	Media    []string `json:"media,omitempty"`
	Links    []string `json:"links,omitempty"`
}

type NoteDetails struct {
	Lines int `json:"lines"`
}

type DocumentDetails struct {
	Extension string `json:"extension"`
	Source    string `json:"source"`
	Bytes     int    `json:"bytes"`
	Pages     int    `json:"pages,omitempty"`
}

type WorkspaceDetails struct {
	PageID     string    `json:"page_id"`
	LastEdited time.Time `json:"last_edited,omitempty"`
}

var ErrInvalidBundle = errors.New("invalid content bundle")

// Validate checks the shared fields and that exactly the variant for Type is set.
func (b Bundle) Validate() error {
	if !b.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidBundle, b.Type)
	}
	if strings.TrimSpace(b.ContentToVectorize) == "" {
		return fmt.Errorf("%w: content_to_vectorize is empty", ErrInvalidBundle)
	}
	variants := map[models.ContentType]bool{
		models.TypePage:     b.Page != nil,
		models.TypeTweet:    b.Tweet != nil,
		models.TypeNote:     b.Note != nil,
		models.TypeDocument: b.Document != nil,
		models.TypeNotion:   b.Workspace != nil,
	}
	set := 0
	for _, ok := range variants {
		if ok {
			set++
		}
	}
	if set != 1 || !variants[b.Type] {
		return fmt.Errorf("%w: %s bundle must carry exactly its own details", ErrInvalidBundle, b.Type)
	}
	return nil
}

// Prefetched is the caller-supplied shape that bypasses fetching entirely.
type Prefetched struct {
	Type               models.ContentType `json:"type"`
	ContentToVectorize string             `json:"content_to_vectorize"`
	ContentToSave      string             `json:"content_to_save"`
	Title              string             `json:"title"`
	Description        string             `json:"description,omitempty"`
	PreviewImage       string             `json:"preview_image,omitempty"`
	URL                string             `json:"url,omitempty"`
	PageID             string             `json:"page_id,omitempty"`
}

// Bundle turns the caller's shape into a validated tagged bundle.
func (p Prefetched) Bundle() (Bundle, error) {
	b := Bundle{
		Type:               p.Type,
		ContentToVectorize: p.ContentToVectorize,
		ContentToSave:      p.ContentToSave,
		Title:              p.Title,
		Description:        p.Description,
		PreviewImage:       p.PreviewImage,
		URL:                p.URL,
	}
	if b.ContentToSave == "" {
		b.ContentToSave = b.ContentToVectorize
	}
	switch p.Type {
	case models.TypePage:
		b.Page = &PageDetails{}
	case models.TypeTweet:
		b.Tweet = &TweetDetails{}
	case models.TypeNote:
		b.Note = &NoteDetails{Lines: strings.Count(p.ContentToSave, "\n") + 1}
	case models.TypeDocument:
		b.Document = &DocumentDetails{Source: p.URL}
	case models.TypeNotion:
		b.Workspace = &WorkspaceDetails{PageID: p.PageID}
	}
	return b, b.Validate()
}
