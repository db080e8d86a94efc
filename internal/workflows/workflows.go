package workflows

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"contentflow/internal/activities"
	"contentflow/internal/chunking"
	"contentflow/internal/classify"
	"contentflow/internal/fetch"
	"contentflow/internal/retry"
	"contentflow/internal/util"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetRunStatus = "GetRunStatus"
	QueryGetProgress  = "GetProgress"
)

// Infrastructure failures inside a step (database, worker loss) are retried
// by Temporal. Adapters retry their own calls in-process and surface
// exhaustion as non-retryable.
var stepPolicy = retry.Policy{
	MaxAttempts:        3,
	InitialInterval:    2 * time.Second,
	BackoffCoefficient: 2,
	MaxInterval:        20 * time.Second,
}

func stepOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         stepPolicy.ActivityRetryPolicy(activities.NonRetryableKinds()...),
	}
}

// IngestDocumentWorkflow runs one item through the ingestion state machine.
// Expected rejections (duplicate, quota, oversized, unsupported) complete the
// workflow with Status failed; anything else fails it. Either way the
// document is left absent, or marked unprocessed with its previous chunks.
func IngestDocumentWorkflow(ctx workflow.Context, input IngestInput) (IngestResult, error) {
	logger := workflow.GetLogger(ctx)
	tracker := newRunTracker(ctx)
	if err := workflow.SetQueryHandler(ctx, QueryGetRunStatus, func() (RunStatus, error) {
		return tracker.status, nil
	}); err != nil {
		return IngestResult{}, err
	}

	settings := input.Settings.withDefaults()
	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	stepCtx := workflow.WithActivityOptions(ctx, stepOptions(2*time.Minute))
	slowCtx := workflow.WithActivityOptions(ctx, stepOptions(5*time.Minute))
	cleanupCtx := workflow.WithActivityOptions(ctx, stepOptions(time.Minute))

	docUUID := input.DocumentUUID
	if docUUID == "" {
		if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
			return uuid.NewString()
		}).Get(&docUUID); err != nil {
			return IngestResult{}, err
		}
	}

	var (
		res          = IngestResult{DocumentUUID: docUUID}
		admitted     activities.AdmitDocumentOutput
		embedStarted bool
	)
	failRun := func(step string, err error) (IngestResult, error) {
		kind := activities.ErrorKind(err)
		msg := err.Error()
		reached := tracker.status.State
		logger.Warn("ingest run failed", "step", step, "state", string(reached), "kind", kind, "error", msg)
		tracker.fail(ctx, kind, msg)
		compensate(cleanupCtx, runID, admitted, embedStarted, reached, msg)

		if util.SentinelForKind(kind) != nil {
			res.Status = StatusFailed
			res.State = StateFailed
			res.ErrorKind = kind
			res.Error = msg
			return res, nil
		}
		if kind == "" {
			kind = "IngestFailedError"
		}
		return IngestResult{}, temporal.NewNonRetryableApplicationError(step+": "+msg, kind, err)
	}

	var (
		bundle     fetch.Bundle
		prefetched = input.Prefetched != nil
		raw        = strings.TrimSpace(input.Content)
		canonical  string
	)
	if prefetched {
		b, err := input.Prefetched.Bundle()
		if err != nil {
			return failRun("admit", fmt.Errorf("prefetched bundle: %v: %w", err, util.ErrClassification))
		}
		bundle = b
		canonical = b.URL
		if raw == "" {
			raw = firstNonEmpty(b.URL, b.Title, b.ContentToSave)
		}
	} else {
		t, err := classify.Resolve(input.Type, raw)
		if err != nil {
			return failRun("classify", err)
		}
		bundle.Type = t
		canonical = classify.CanonicalURL(t, raw)
	}
	res.Type = bundle.Type
	tracker.status.DocumentUUID = docUUID

	var quota activities.CheckQuotaOutput
	if err := workflow.ExecuteActivity(stepCtx, "CheckQuotaActivity", activities.CheckQuotaInput{
		UserID:       input.UserID,
		MaxDocuments: settings.MaxDocuments,
	}).Get(ctx, &quota); err != nil {
		return failRun("check quota", err)
	}
	if err := tracker.advance(ctx, StateQuotaChecked, fmt.Sprintf("%d documents", quota.Count)); err != nil {
		return IngestResult{}, err
	}

	if !input.Reingest {
		if err := workflow.ExecuteActivity(stepCtx, "CheckDuplicateActivity", activities.CheckDuplicateInput{
			UserID: input.UserID,
			Type:   bundle.Type,
			URL:    canonical,
			Raw:    raw,
		}).Get(ctx, nil); err != nil {
			return failRun("check duplicate", err)
		}
	}

	if err := workflow.ExecuteActivity(stepCtx, "AdmitDocumentActivity", activities.AdmitDocumentInput{
		UserID:       input.UserID,
		DocumentUUID: docUUID,
		Type:         bundle.Type,
		URL:          canonical,
		Raw:          raw,
		Reingest:     input.Reingest,
	}).Get(ctx, &admitted); err != nil {
		return failRun("admit document", err)
	}
	res.DocumentID = admitted.DocumentID
	res.DocumentUUID = admitted.DocumentUUID
	tracker.status.DocumentID = admitted.DocumentID
	tracker.status.DocumentUUID = admitted.DocumentUUID

	fetchNote := "prefetched"
	if !prefetched {
		if err := workflow.ExecuteActivity(slowCtx, "FetchContentActivity", activities.FetchContentInput{
			Type:    bundle.Type,
			Content: raw,
		}).Get(ctx, &bundle); err != nil {
			return failRun("fetch content", err)
		}
		fetchNote = string(bundle.Type)
	}
	if err := tracker.advance(ctx, StateFetched, fetchNote); err != nil {
		return IngestResult{}, err
	}
	res.Title = bundle.Title

	if n := utf8.RuneCountInString(bundle.ContentToVectorize); n > settings.MaxContentChars {
		return failRun("size guard", fmt.Errorf("%d characters exceeds %d: %w", n, settings.MaxContentChars, util.ErrContentTooLarge))
	}

	hash := util.ContentHash(bundle.ContentToVectorize)
	if err := workflow.ExecuteActivity(stepCtx, "CheckDuplicateActivity", activities.CheckDuplicateInput{
		UserID:      input.UserID,
		ContentHash: hash,
		ExcludeID:   admitted.DocumentID,
	}).Get(ctx, nil); err != nil {
		return failRun("check duplicate", err)
	}
	if err := workflow.ExecuteActivity(stepCtx, "UpsertDocumentActivity", activities.UpsertDocumentInput{
		DocumentID:   admitted.DocumentID,
		URL:          firstNonEmpty(canonical, bundle.URL),
		Title:        bundle.Title,
		Description:  bundle.Description,
		PreviewImage: bundle.PreviewImage,
		Content:      bundle.ContentToSave,
		ContentHash:  hash,
	}).Get(ctx, nil); err != nil {
		return failRun("upsert document", err)
	}
	if err := tracker.advance(ctx, StateHashed, hash); err != nil {
		return IngestResult{}, err
	}

	var chunked activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(stepCtx, "ChunkTextActivity", activities.ChunkTextInput{
		Text:         bundle.ContentToVectorize,
		ChunkSize:    settings.ChunkSize,
		ChunkOverlap: settings.ChunkOverlap,
	}).Get(ctx, &chunked); err != nil {
		return failRun("chunk text", err)
	}
	var diff activities.DiffChunksOutput
	if err := workflow.ExecuteActivity(stepCtx, "DiffChunksActivity", activities.DiffChunksInput{
		DocumentID:   admitted.DocumentID,
		Chunks:       chunked.Chunks,
		ChunkSize:    settings.ChunkSize,
		ChunkOverlap: settings.ChunkOverlap,
	}).Get(ctx, &diff); err != nil {
		return failRun("diff chunks", err)
	}
	res.Chunks = diff.Summary
	if err := tracker.advance(ctx, StateDiffed, summaryNote(diff.Summary)); err != nil {
		return IngestResult{}, err
	}

	items := make([]activities.EmbedItem, 0, len(diff.Decisions))
	commit := make([]activities.CommitChunk, 0, len(diff.Decisions))
	for _, d := range diff.Decisions {
		if d.Action == chunking.ActionDelete {
			continue
		}
		commit = append(commit, activities.CommitChunk{Ordinal: d.Ordinal, Text: d.Text, ContentHash: d.ContentHash})
		if d.NeedsEmbedding() {
			items = append(items, activities.EmbedItem{Text: d.Text, ContentHash: d.ContentHash})
		}
	}
	if len(items) > 0 {
		embedStarted = true
		var embedded activities.EmbedChunksOutput
		if err := workflow.ExecuteActivity(slowCtx, "EmbedChunksActivity", activities.EmbedChunksInput{
			RunID:      runID,
			DocumentID: admitted.DocumentID,
			Items:      items,
		}).Get(ctx, &embedded); err != nil {
			return failRun("embed chunks", err)
		}
		res.Embedded = embedded.Staged
	}
	if err := tracker.advance(ctx, StateEmbedded, fmt.Sprintf("%d embedded", res.Embedded)); err != nil {
		return IngestResult{}, err
	}

	if err := workflow.ExecuteActivity(stepCtx, "CommitChunksActivity", activities.CommitChunksInput{
		RunID:      runID,
		DocumentID: admitted.DocumentID,
		Type:       bundle.Type,
		Chunks:     commit,
	}).Get(ctx, nil); err != nil {
		return failRun("commit chunks", err)
	}
	if err := workflow.ExecuteActivity(stepCtx, "MarkProcessedActivity", activities.DocumentRef{
		DocumentID: admitted.DocumentID,
	}).Get(ctx, nil); err != nil {
		return failRun("mark processed", err)
	}
	if err := tracker.advance(ctx, StatePersisted, fmt.Sprintf("%d chunks", len(commit))); err != nil {
		return IngestResult{}, err
	}

	linkNote := "no collections"
	if len(input.Spaces) > 0 {
		var linked activities.LinkCollectionsOutput
		if err := workflow.ExecuteActivity(stepCtx, "LinkCollectionsActivity", activities.LinkCollectionsInput{
			UserID:     input.UserID,
			DocumentID: admitted.DocumentID,
			Spaces:     input.Spaces,
		}).Get(ctx, &linked); err != nil {
			return failRun("link collections", err)
		}
		res.Linked = linked.Linked
		linkNote = fmt.Sprintf("%d linked", len(linked.Linked))
	}
	if err := tracker.advance(ctx, StateLinked, linkNote); err != nil {
		return IngestResult{}, err
	}
	if err := tracker.advance(ctx, StateComplete, ""); err != nil {
		return IngestResult{}, err
	}

	logger.Info("ingest run complete", "document_id", admitted.DocumentID, "embedded", res.Embedded)
	res.Status = StatusComplete
	res.State = StateComplete
	return res, nil
}

// compensate undoes what a failed run left behind. Once chunks are persisted
// the document is consistent and stays as it is.
func compensate(ctx workflow.Context, runID string, admitted activities.AdmitDocumentOutput, embedStarted bool, reached RunState, msg string) {
	logger := workflow.GetLogger(ctx)
	if embedStarted {
		if err := workflow.ExecuteActivity(ctx, "DiscardStagedEmbeddingsActivity", activities.DiscardStagedInput{RunID: runID}).Get(ctx, nil); err != nil {
			logger.Error("discard staged embeddings", "error", err)
		}
	}
	if admitted.DocumentID == 0 || reached == StatePersisted || reached == StateLinked {
		return
	}
	if admitted.Created {
		if err := workflow.ExecuteActivity(ctx, "DeleteDocumentActivity", activities.DocumentRef{DocumentID: admitted.DocumentID}).Get(ctx, nil); err != nil {
			logger.Error("delete placeholder document", "document_id", admitted.DocumentID, "error", err)
		}
		return
	}
	if err := workflow.ExecuteActivity(ctx, "MarkDocumentFailedActivity", activities.MarkDocumentFailedInput{
		DocumentID: admitted.DocumentID,
		Message:    msg,
	}).Get(ctx, nil); err != nil {
		logger.Error("mark document failed", "document_id", admitted.DocumentID, "error", err)
	}
}

func summaryNote(s map[chunking.Action]int) string {
	return fmt.Sprintf("keep=%d replace=%d insert=%d delete=%d",
		s[chunking.ActionKeep], s[chunking.ActionReplace], s[chunking.ActionInsert], s[chunking.ActionDelete])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
