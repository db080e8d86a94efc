package models

import "time"

type ContentType string

const (
	TypePage     ContentType = "page"
	TypeTweet    ContentType = "tweet"
	TypeNote     ContentType = "note"
	TypeDocument ContentType = "document"
	TypeNotion   ContentType = "notion"
)

func (t ContentType) Valid() bool {
	switch t {
	case TypePage, TypeTweet, TypeNote, TypeDocument, TypeNotion:
		return true
	}
	return false
}

type Document struct {
	ID           int64       `json:"id"`
	UUID         string      `json:"uuid"`
	UserID       string      `json:"user_id"`
	URL          string      `json:"url,omitempty"`
	Type         ContentType `json:"type"`
	Title        string      `json:"title,omitempty"`
	Description  string      `json:"description,omitempty"`
	PreviewImage string      `json:"preview_image,omitempty"`
	Raw          string      `json:"raw"`
	Content      string      `json:"content,omitempty"`
	ContentHash  string      `json:"content_hash,omitempty"`
	Processed    bool        `json:"processed"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type Chunk struct {
	ChunkID     string            `json:"chunk_id"`
	DocumentID  int64             `json:"document_id"`
	Ordinal     int               `json:"ordinal"`
	Text        string            `json:"text"`
	ContentHash string            `json:"content_hash"`
	Embedding   []float32         `json:"-"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Collection struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// ChunkMatch is one similarity hit joined to its parent document.
type ChunkMatch struct {
	DocumentID   int64       `json:"document_id"`
	DocumentUUID string      `json:"document_uuid"`
	Type         ContentType `json:"type"`
	URL          string      `json:"url,omitempty"`
	Title        string      `json:"title,omitempty"`
	Description  string      `json:"description,omitempty"`
	PreviewImage string      `json:"preview_image,omitempty"`
	ChunkID      string      `json:"chunk_id"`
	Ordinal      int         `json:"ordinal"`
	Content      string      `json:"content"`
	Similarity   float64     `json:"similarity"`
}
