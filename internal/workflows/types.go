package workflows

import (
	"time"

	"contentflow/internal/chunking"
	"contentflow/internal/config"
	"contentflow/internal/fetch"
	"contentflow/internal/models"
	"contentflow/internal/workspace"
)

// IngestSettings carries the tunables a run needs so the workflow never
// reads configuration itself.
type IngestSettings struct {
	MaxDocuments    int     `json:"max_documents"`
	MaxContentChars int     `json:"max_content_chars"`
	ChunkSize       int     `json:"chunk_size"`
	ChunkOverlap    float64 `json:"chunk_overlap"`
}

func SettingsFromConfig(cfg config.Config) IngestSettings {
	return IngestSettings{
		MaxDocuments:    cfg.Ingest.MaxDocumentsPerUser,
		MaxContentChars: cfg.Ingest.MaxContentChars,
		ChunkSize:       cfg.Ingest.ChunkSize,
		ChunkOverlap:    cfg.Ingest.ChunkOverlap,
	}
}

func (s IngestSettings) withDefaults() IngestSettings {
	if s.MaxDocuments <= 0 {
		s.MaxDocuments = 2000
	}
	if s.MaxContentChars <= 0 {
		s.MaxContentChars = 100000
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = chunking.DefaultMaxSize
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= 1 {
		s.ChunkOverlap = chunking.DefaultOverlap
	}
	return s
}

type IngestInput struct {
	UserID       string             `json:"user_id"`
	DocumentUUID string             `json:"document_uuid,omitempty"`
	Content      string             `json:"content"`
	Type         models.ContentType `json:"type,omitempty"`
	Spaces       []string           `json:"spaces,omitempty"`
	Prefetched   *fetch.Prefetched  `json:"prefetched,omitempty"`
	Reingest     bool               `json:"reingest,omitempty"`
	Settings     IngestSettings     `json:"settings"`
}

const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

type IngestResult struct {
	Status       string                  `json:"status"`
	State        RunState                `json:"state"`
	DocumentID   int64                   `json:"document_id,omitempty"`
	DocumentUUID string                  `json:"document_uuid,omitempty"`
	Type         models.ContentType      `json:"type,omitempty"`
	Title        string                  `json:"title,omitempty"`
	Chunks       map[chunking.Action]int `json:"chunks,omitempty"`
	Embedded     int                     `json:"embedded"`
	Linked       []string                `json:"linked,omitempty"`
	ErrorKind    string                  `json:"error_kind,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

type Transition struct {
	From RunState  `json:"from"`
	To   RunState  `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// RunStatus is what GetRunStatus returns: the current state, the last state
// reached successfully and the full audit trail.
type RunStatus struct {
	State         RunState     `json:"state"`
	LastSucceeded RunState     `json:"last_succeeded"`
	DocumentID    int64        `json:"document_id,omitempty"`
	DocumentUUID  string       `json:"document_uuid,omitempty"`
	ErrorKind     string       `json:"error_kind,omitempty"`
	Error         string       `json:"error,omitempty"`
	Transitions   []Transition `json:"transitions"`
}

type BatchItem struct {
	Content    string             `json:"content"`
	Type       models.ContentType `json:"type,omitempty"`
	Spaces     []string           `json:"spaces,omitempty"`
	Prefetched *fetch.Prefetched  `json:"prefetched,omitempty"`
	Reingest   bool               `json:"reingest,omitempty"`
}

type BatchInput struct {
	UserID    string         `json:"user_id"`
	Items     []BatchItem    `json:"items"`
	ItemDelay time.Duration  `json:"item_delay"`
	Settings  IngestSettings `json:"settings"`
}

type ItemOutcome struct {
	Index        int    `json:"index"`
	Status       string `json:"status"`
	DocumentUUID string `json:"document_uuid,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `json:"error,omitempty"`
}

type BatchResult struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Items     []ItemOutcome `json:"items"`
}

type WorkspaceImportInput struct {
	UserID     string         `json:"user_id"`
	Token      string         `json:"token,omitempty"`
	Spaces     []string       `json:"spaces,omitempty"`
	BatchSize  int            `json:"batch_size"`
	BatchDelay time.Duration  `json:"batch_delay"`
	Settings   IngestSettings `json:"settings"`
	// BatchesPerRun bounds how many extraction batches one run handles
	// before continuing as new.
	BatchesPerRun int `json:"batches_per_run,omitempty"`
	// Resume is set when the import continues from an earlier run.
	Resume *ImportCheckpoint `json:"resume,omitempty"`
}

// ImportCheckpoint is what an import run hands to its continuation.
type ImportCheckpoint struct {
	Pending      []workspace.PageRef `json:"pending"`
	Done         int                 `json:"done"`
	Result       ImportResult        `json:"result"`
	LastSeq      int                 `json:"last_seq"`
	LastProgress int                 `json:"last_progress"`
}

// ImportResult counts every listed page. Items only records pages that were
// not ingested, so the result stays small for large workspaces.
type ImportResult struct {
	Listed    int           `json:"listed"`
	Extracted int           `json:"extracted"`
	Dropped   int           `json:"dropped"`
	Oversized int           `json:"oversized"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Items     []ItemOutcome `json:"items,omitempty"`
}
