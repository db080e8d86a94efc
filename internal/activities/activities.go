package activities

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"contentflow/internal/chunking"
	"contentflow/internal/config"
	"contentflow/internal/embedding"
	"contentflow/internal/fetch"
	"contentflow/internal/models"
	"contentflow/internal/providers"
	"contentflow/internal/retry"
	"contentflow/internal/storage"
	"contentflow/internal/util"
	"contentflow/internal/workspace"

	"go.temporal.io/sdk/activity"
)

type DocumentStore interface {
	CountByUser(ctx context.Context, userID string) (int, error)
	FindDuplicate(ctx context.Context, q storage.DuplicateQuery) (int64, bool, error)
	FindByURL(ctx context.Context, userID string, t models.ContentType, url string) (models.Document, bool, error)
	InsertPlaceholder(ctx context.Context, d models.Document) (models.Document, error)
	Update(ctx context.Context, u storage.DocumentUpdate) error
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, msg string) error
	Delete(ctx context.Context, id int64) error
}

type ChunkStore interface {
	ListHashes(ctx context.Context, documentID int64) ([]chunking.PreviousChunk, error)
	StageEmbeddings(ctx context.Context, runID string, documentID int64, staged []storage.StagedEmbedding) error
	ReplaceChunks(ctx context.Context, runID string, documentID int64, chunks []storage.NewChunk) error
	DiscardStaged(ctx context.Context, runID string) error
}

type CollectionStore interface {
	Resolve(ctx context.Context, userID string, refs []string) ([]models.Collection, error)
	Link(ctx context.Context, documentID int64, collectionIDs []string) error
}

type ContentFetcher interface {
	Fetch(ctx context.Context, t models.ContentType, content string) (fetch.Bundle, error)
}

type Embedder interface {
	Generate(ctx context.Context, operation string, texts []string) (embedding.Result, error)
}

type WorkspaceCollector interface {
	ListPage(ctx context.Context, cursor string) (workspace.PageListing, error)
	ExtractBatch(ctx context.Context, refs []workspace.PageRef) (workspace.BatchResult, error)
}

// Deps are the collaborators behind the activities. Collectors builds a
// workspace collector for an access token.
type Deps struct {
	Documents   DocumentStore
	Chunks      ChunkStore
	Collections CollectionStore
	Fetcher     ContentFetcher
	Embedder    Embedder
	Collectors  func(token string) WorkspaceCollector
}

type Activities struct {
	cfg  config.Config
	deps Deps

	closers []func() error
}

func NewWithDeps(cfg config.Config, deps Deps) *Activities {
	return &Activities{cfg: cfg, deps: deps}
}

// New wires the production collaborators. objects may be nil when uploads
// are not configured.
func New(ctx context.Context, cfg config.Config, db *storage.DB, objects fetch.ObjectReader, logger *slog.Logger) (*Activities, error) {
	pm, err := providers.NewManager(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	gen := embedding.NewGenerator(pm, retry.FromConfig(cfg.Retry.Embedding), logger)
	fetcher := fetch.New(fetch.OptionsFromConfig(cfg), &http.Client{}, objects)
	a := NewWithDeps(cfg, Deps{
		Documents:   storage.NewDocumentRepo(db),
		Chunks:      storage.NewChunkRepo(db),
		Collections: storage.NewCollectionRepo(db),
		Fetcher:     fetcher,
		Embedder:    gen,
		Collectors: func(token string) WorkspaceCollector {
			return workspace.NewCollector(workspace.NewNotionAPI(token, nil), cfg.Workspace, retry.FromConfig(cfg.Retry.Workspace), logger)
		},
	})
	a.closers = append(a.closers, pm.Close)
	return a, nil
}

func (a *Activities) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Activities) CheckQuotaActivity(ctx context.Context, in CheckQuotaInput) (CheckQuotaOutput, error) {
	limit := in.MaxDocuments
	if limit <= 0 {
		limit = a.cfg.Ingest.MaxDocumentsPerUser
	}
	n, err := a.deps.Documents.CountByUser(ctx, in.UserID)
	if err != nil {
		return CheckQuotaOutput{}, toApplicationError("check quota", err)
	}
	if limit > 0 && n >= limit {
		return CheckQuotaOutput{Count: n}, toApplicationError("check quota",
			fmt.Errorf("user has %d of %d documents: %w", n, limit, util.ErrQuotaExceeded))
	}
	return CheckQuotaOutput{Count: n}, nil
}

func (a *Activities) CheckDuplicateActivity(ctx context.Context, in CheckDuplicateInput) error {
	id, found, err := a.deps.Documents.FindDuplicate(ctx, storage.DuplicateQuery{
		UserID:      in.UserID,
		Type:        in.Type,
		URL:         in.URL,
		Raw:         in.Raw,
		ContentHash: in.ContentHash,
		ExcludeID:   in.ExcludeID,
	})
	if err != nil {
		return toApplicationError("check duplicate", err)
	}
	if found {
		activity.GetLogger(ctx).Info("duplicate content", "user_id", in.UserID, "existing_document_id", id)
		return toApplicationError("check duplicate", fmt.Errorf("matches document %d: %w", id, util.ErrDuplicateContent))
	}
	return nil
}

// AdmitDocumentActivity finds the document a re-ingestion updates, or creates
// the unprocessed placeholder for a first-time ingestion.
func (a *Activities) AdmitDocumentActivity(ctx context.Context, in AdmitDocumentInput) (AdmitDocumentOutput, error) {
	if in.Reingest && in.URL != "" {
		existing, found, err := a.deps.Documents.FindByURL(ctx, in.UserID, in.Type, in.URL)
		if err != nil {
			return AdmitDocumentOutput{}, toApplicationError("admit document", err)
		}
		if found {
			return AdmitDocumentOutput{
				DocumentID:   existing.ID,
				DocumentUUID: existing.UUID,
				Created:      existing.UUID == in.DocumentUUID,
			}, nil
		}
	}
	doc, err := a.deps.Documents.InsertPlaceholder(ctx, models.Document{
		UUID:   in.DocumentUUID,
		UserID: in.UserID,
		URL:    in.URL,
		Type:   in.Type,
		Raw:    in.Raw,
	})
	if err != nil {
		return AdmitDocumentOutput{}, toApplicationError("admit document", err)
	}
	return AdmitDocumentOutput{DocumentID: doc.ID, DocumentUUID: doc.UUID, Created: true}, nil
}

func (a *Activities) FetchContentActivity(ctx context.Context, in FetchContentInput) (fetch.Bundle, error) {
	b, err := a.deps.Fetcher.Fetch(ctx, in.Type, in.Content)
	if err != nil {
		return fetch.Bundle{}, toApplicationError("fetch content", err)
	}
	if err := b.Validate(); err != nil {
		return fetch.Bundle{}, toApplicationError("fetch content", retry.Permanent(err))
	}
	activity.GetLogger(ctx).Info("content fetched", "type", string(b.Type), "chars", util.RuneLen(b.ContentToVectorize))
	return b, nil
}

func (a *Activities) UpsertDocumentActivity(ctx context.Context, in UpsertDocumentInput) error {
	err := a.deps.Documents.Update(ctx, storage.DocumentUpdate{
		ID:           in.DocumentID,
		URL:          in.URL,
		Title:        in.Title,
		Description:  in.Description,
		PreviewImage: in.PreviewImage,
		Content:      in.Content,
		ContentHash:  in.ContentHash,
	})
	return toApplicationError("upsert document", err)
}

func (a *Activities) ChunkTextActivity(_ context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	size, overlap := a.chunkParams(in.ChunkSize, in.ChunkOverlap)
	return ChunkTextOutput{Chunks: chunking.Chunk(in.Text, size, overlap)}, nil
}

func (a *Activities) DiffChunksActivity(ctx context.Context, in DiffChunksInput) (DiffChunksOutput, error) {
	prev, err := a.deps.Chunks.ListHashes(ctx, in.DocumentID)
	if err != nil {
		return DiffChunksOutput{}, toApplicationError("diff chunks", err)
	}
	size, overlap := a.chunkParams(in.ChunkSize, in.ChunkOverlap)
	decisions := chunking.Diff(prev, in.Chunks, size, overlap)
	summary := chunking.Summary(decisions)
	activity.GetLogger(ctx).Info("chunks diffed",
		"document_id", in.DocumentID,
		"keep", summary[chunking.ActionKeep],
		"replace", summary[chunking.ActionReplace],
		"insert", summary[chunking.ActionInsert],
		"delete", summary[chunking.ActionDelete])
	return DiffChunksOutput{Decisions: decisions, Summary: summary}, nil
}

// EmbedChunksActivity embeds the given chunks in one batch and stages the
// vectors for the run. Texts repeated within the batch are embedded once.
func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	seen := make(map[string]bool, len(in.Items))
	texts := make([]string, 0, len(in.Items))
	hashes := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		if seen[it.ContentHash] {
			continue
		}
		seen[it.ContentHash] = true
		texts = append(texts, it.Text)
		hashes = append(hashes, it.ContentHash)
	}
	if len(texts) == 0 {
		return EmbedChunksOutput{}, nil
	}

	res, err := a.deps.Embedder.Generate(ctx, "embed_chunks", texts)
	if err != nil {
		return EmbedChunksOutput{}, toApplicationError("embed chunks", err)
	}
	staged := make([]storage.StagedEmbedding, 0, len(res.Vectors))
	for i, v := range res.Vectors {
		staged = append(staged, storage.StagedEmbedding{ContentHash: hashes[i], Vector: v})
	}
	if err := a.deps.Chunks.StageEmbeddings(ctx, in.RunID, in.DocumentID, staged); err != nil {
		return EmbedChunksOutput{}, toApplicationError("stage embeddings", err)
	}
	activity.GetLogger(ctx).Info("chunks embedded",
		"document_id", in.DocumentID, "count", len(staged), "provider", res.Provider.Name, "attempts", res.Attempts)
	return EmbedChunksOutput{
		Staged:       len(staged),
		ProviderName: res.Provider.Name,
		Model:        res.Provider.Model,
		Attempts:     res.Attempts,
	}, nil
}

func (a *Activities) CommitChunksActivity(ctx context.Context, in CommitChunksInput) error {
	chunks := make([]storage.NewChunk, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		chunks = append(chunks, storage.NewChunk{
			Ordinal:     c.Ordinal,
			Text:        c.Text,
			ContentHash: c.ContentHash,
			Metadata:    map[string]string{"type": string(in.Type)},
		})
	}
	return toApplicationError("commit chunks", a.deps.Chunks.ReplaceChunks(ctx, in.RunID, in.DocumentID, chunks))
}

func (a *Activities) MarkProcessedActivity(ctx context.Context, in DocumentRef) error {
	return toApplicationError("mark processed", a.deps.Documents.MarkProcessed(ctx, in.DocumentID))
}

// LinkCollectionsActivity links the document to the spaces that resolve.
// Spaces that match nothing are reported, not failed.
func (a *Activities) LinkCollectionsActivity(ctx context.Context, in LinkCollectionsInput) (LinkCollectionsOutput, error) {
	if len(in.Spaces) == 0 {
		return LinkCollectionsOutput{Linked: []string{}}, nil
	}
	found, err := a.deps.Collections.Resolve(ctx, in.UserID, in.Spaces)
	if err != nil {
		return LinkCollectionsOutput{}, toApplicationError("link collections", err)
	}
	ids := make([]string, 0, len(found))
	matched := map[string]bool{}
	for _, c := range found {
		ids = append(ids, c.ID)
		matched[c.ID] = true
		matched[c.Name] = true
	}
	var missing []string
	for _, s := range in.Spaces {
		if !matched[strings.TrimSpace(s)] {
			missing = append(missing, s)
		}
	}
	if err := a.deps.Collections.Link(ctx, in.DocumentID, ids); err != nil {
		return LinkCollectionsOutput{}, toApplicationError("link collections", err)
	}
	if len(missing) > 0 {
		activity.GetLogger(ctx).Warn("unknown collections", "document_id", in.DocumentID, "spaces", missing)
	}
	return LinkCollectionsOutput{Linked: ids, Missing: missing}, nil
}

func (a *Activities) DeleteDocumentActivity(ctx context.Context, in DocumentRef) error {
	return toApplicationError("delete document", a.deps.Documents.Delete(ctx, in.DocumentID))
}

func (a *Activities) MarkDocumentFailedActivity(ctx context.Context, in MarkDocumentFailedInput) error {
	return toApplicationError("mark document failed", a.deps.Documents.MarkFailed(ctx, in.DocumentID, in.Message))
}

func (a *Activities) DiscardStagedEmbeddingsActivity(ctx context.Context, in DiscardStagedInput) error {
	return toApplicationError("discard staged embeddings", a.deps.Chunks.DiscardStaged(ctx, in.RunID))
}

func (a *Activities) ListWorkspacePagesActivity(ctx context.Context, in ListWorkspacePagesInput) (workspace.PageListing, error) {
	c, err := a.collector(in.Token)
	if err != nil {
		return workspace.PageListing{}, toApplicationError("list workspace pages", err)
	}
	listing, err := c.ListPage(ctx, in.Cursor)
	if err != nil {
		return workspace.PageListing{}, toApplicationError("list workspace pages", err)
	}
	return listing, nil
}

func (a *Activities) ExtractWorkspacePagesActivity(ctx context.Context, in ExtractWorkspacePagesInput) (workspace.BatchResult, error) {
	c, err := a.collector(in.Token)
	if err != nil {
		return workspace.BatchResult{}, toApplicationError("extract workspace pages", err)
	}
	res, err := c.ExtractBatch(ctx, in.Pages)
	if err != nil {
		return workspace.BatchResult{}, toApplicationError("extract workspace pages", err)
	}
	activity.GetLogger(ctx).Info("workspace batch extracted", "pages", len(res.Pages), "dropped", len(res.Dropped), "oversized", len(res.Oversized))
	return res, nil
}

func (a *Activities) collector(token string) (WorkspaceCollector, error) {
	if strings.TrimSpace(token) == "" {
		token = a.cfg.NotionToken
	}
	if strings.TrimSpace(token) == "" {
		return nil, retry.Permanent(fmt.Errorf("workspace access token not configured"))
	}
	if a.deps.Collectors == nil {
		return nil, retry.Permanent(fmt.Errorf("workspace import not configured"))
	}
	return a.deps.Collectors(token), nil
}

func (a *Activities) chunkParams(size int, overlap float64) (int, float64) {
	if size <= 0 {
		size = a.cfg.Ingest.ChunkSize
	}
	if overlap < 0 || overlap >= 1 {
		overlap = a.cfg.Ingest.ChunkOverlap
	}
	return size, overlap
}
