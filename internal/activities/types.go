package activities

import (
	"contentflow/internal/chunking"
	"contentflow/internal/models"
	"contentflow/internal/workspace"
)

type CheckQuotaInput struct {
	UserID       string `json:"user_id"`
	MaxDocuments int    `json:"max_documents"`
}

type CheckQuotaOutput struct {
	Count int `json:"count"`
}

type CheckDuplicateInput struct {
	UserID      string             `json:"user_id"`
	Type        models.ContentType `json:"type"`
	URL         string             `json:"url,omitempty"`
	Raw         string             `json:"raw,omitempty"`
	ContentHash string             `json:"content_hash,omitempty"`
	ExcludeID   int64              `json:"exclude_id,omitempty"`
}

type AdmitDocumentInput struct {
	UserID       string             `json:"user_id"`
	DocumentUUID string             `json:"document_uuid"`
	Type         models.ContentType `json:"type"`
	URL          string             `json:"url,omitempty"`
	Raw          string             `json:"raw"`
	Reingest     bool               `json:"reingest"`
}

type AdmitDocumentOutput struct {
	DocumentID   int64  `json:"document_id"`
	DocumentUUID string `json:"document_uuid"`
	// Created is true when this run owns the row and must delete it on failure.
	Created bool `json:"created"`
}

type FetchContentInput struct {
	Type    models.ContentType `json:"type"`
	Content string             `json:"content"`
}

type UpsertDocumentInput struct {
	DocumentID   int64  `json:"document_id"`
	URL          string `json:"url,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	PreviewImage string `json:"preview_image,omitempty"`
	Content      string `json:"content"`
	ContentHash  string `json:"content_hash"`
}

type ChunkTextInput struct {
	Text         string  `json:"text"`
	ChunkSize    int     `json:"chunk_size"`
	ChunkOverlap float64 `json:"chunk_overlap"`
}

type ChunkTextOutput struct {
	Chunks []string `json:"chunks"`
}

type DiffChunksInput struct {
	DocumentID   int64    `json:"document_id"`
	Chunks       []string `json:"chunks"`
	ChunkSize    int      `json:"chunk_size"`
	ChunkOverlap float64  `json:"chunk_overlap"`
}

type DiffChunksOutput struct {
	Decisions []chunking.Decision     `json:"decisions"`
	Summary   map[chunking.Action]int `json:"summary"`
}

type EmbedItem struct {
	Text        string `json:"text"`
	ContentHash string `json:"content_hash"`
}

type EmbedChunksInput struct {
	RunID      string      `json:"run_id"`
	DocumentID int64       `json:"document_id"`
	Items      []EmbedItem `json:"items"`
}

type EmbedChunksOutput struct {
	Staged       int    `json:"staged"`
	ProviderName string `json:"provider_name,omitempty"`
	Model        string `json:"model,omitempty"`
	Attempts     int    `json:"attempts"`
}

type CommitChunk struct {
	Ordinal     int    `json:"ordinal"`
	Text        string `json:"text"`
	ContentHash string `json:"content_hash"`
}

type CommitChunksInput struct {
	RunID      string             `json:"run_id"`
	DocumentID int64              `json:"document_id"`
	Type       models.ContentType `json:"type"`
	Chunks     []CommitChunk      `json:"chunks"`
}

type DocumentRef struct {
	DocumentID int64 `json:"document_id"`
}

type MarkDocumentFailedInput struct {
	DocumentID int64  `json:"document_id"`
	Message    string `json:"message"`
}

type DiscardStagedInput struct {
	RunID string `json:"run_id"`
}

type LinkCollectionsInput struct {
	UserID     string   `json:"user_id"`
	DocumentID int64    `json:"document_id"`
	Spaces     []string `json:"spaces"`
}

type LinkCollectionsOutput struct {
	Linked  []string `json:"linked"`
	Missing []string `json:"missing,omitempty"`
}

type ListWorkspacePagesInput struct {
	Token  string `json:"token,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type ExtractWorkspacePagesInput struct {
	Token string              `json:"token,omitempty"`
	Pages []workspace.PageRef `json:"pages"`
}
