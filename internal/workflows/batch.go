package workflows

import (
	"fmt"
	"time"

	"contentflow/internal/activities"
	"contentflow/internal/progress"
	"contentflow/internal/util"
	"contentflow/internal/workspace"

	"go.temporal.io/sdk/workflow"
)

const (
	defaultWorkspaceBatch = 3
	defaultBatchesPerRun  = 20
	// importTextBudget bounds the page text one import run moves through its
	// history before it continues as new.
	importTextBudget = 8 << 20
)

// progressLog records events for the GetProgress query. Callers pass the last
// sequence number they have seen and get everything after it.
func progressLog(ctx workflow.Context) (*progress.Log, func(progress.Event), error) {
	return resumedProgressLog(ctx, 0, 0)
}

// resumedProgressLog continues the sequence and progress of an earlier run.
func resumedProgressLog(ctx workflow.Context, lastSeq, lastProgress int) (*progress.Log, func(progress.Event), error) {
	log := &progress.Log{Base: lastSeq, Floor: lastProgress}
	err := workflow.SetQueryHandler(ctx, QueryGetProgress, func(after int) ([]progress.Event, error) {
		return log.Since(after), nil
	})
	emit := func(e progress.Event) {
		e.At = workflow.Now(ctx)
		e.WorkflowID = workflow.GetInfo(ctx).WorkflowExecution.ID
		log.Append(e)
	}
	return log, emit, err
}

func runChild(ctx workflow.Context, workflowID string, in IngestInput) (IngestResult, error) {
	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
	var out IngestResult
	err := workflow.ExecuteChildWorkflow(childCtx, IngestDocumentWorkflow, in).Get(ctx, &out)
	return out, err
}

func outcomeOf(index int, out IngestResult, err error) ItemOutcome {
	if err != nil {
		return ItemOutcome{Index: index, Status: StatusFailed, ErrorKind: activities.ErrorKind(err), Error: err.Error()}
	}
	return ItemOutcome{
		Index:        index,
		Status:       out.Status,
		DocumentUUID: out.DocumentUUID,
		ErrorKind:    out.ErrorKind,
		Error:        out.Error,
	}
}

func itemEvent(o ItemOutcome, pct, total int, label string) progress.Event {
	if o.Status == StatusComplete {
		return progress.Event{
			Type:       progress.Progress,
			Progress:   pct,
			Item:       o.Index + 1,
			Total:      total,
			DocumentID: o.DocumentUUID,
			Message:    label + " ingested",
		}
	}
	return progress.Event{
		Type:       progress.Warning,
		Progress:   pct,
		Item:       o.Index + 1,
		Total:      total,
		DocumentID: o.DocumentUUID,
		Message:    label + " failed",
		Error:      &progress.ErrorInfo{Kind: o.ErrorKind, Message: o.Error},
	}
}

// BatchIngestWorkflow ingests items one after another as child runs, pausing
// between items. A failed item is reported and the batch moves on.
func BatchIngestWorkflow(ctx workflow.Context, input BatchInput) (BatchResult, error) {
	_, emit, err := progressLog(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	logger := workflow.GetLogger(ctx)
	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID
	total := len(input.Items)
	result := BatchResult{Total: total, Items: make([]ItemOutcome, 0, total)}

	emit(progress.Event{Type: progress.Connected, Total: total, Message: fmt.Sprintf("batch of %d items", total)})
	for i, item := range input.Items {
		if i > 0 && input.ItemDelay > 0 {
			if err := workflow.Sleep(ctx, input.ItemDelay); err != nil {
				return result, err
			}
		}
		out, err := runChild(ctx, fmt.Sprintf("%s-item-%d", parentID, i), IngestInput{
			UserID:     input.UserID,
			Content:    item.Content,
			Type:       item.Type,
			Spaces:     item.Spaces,
			Prefetched: item.Prefetched,
			Reingest:   item.Reingest,
			Settings:   input.Settings,
		})
		o := outcomeOf(i, out, err)
		if o.Status == StatusComplete {
			result.Succeeded++
		} else {
			result.Failed++
			logger.Warn("batch item failed", "item", i, "kind", o.ErrorKind, "error", o.Error)
		}
		result.Items = append(result.Items, o)
		emit(itemEvent(o, (i+1)*100/total, total, fmt.Sprintf("item %d", i)))
	}

	emit(progress.Event{
		Type:    progress.Complete,
		Total:   total,
		Message: fmt.Sprintf("%d ingested, %d failed", result.Succeeded, result.Failed),
	})
	return result, nil
}

// WorkspaceImportWorkflow lists every workspace page, extracts them in fixed
// size batches and ingests each extracted page as a child run. A collector
// failure aborts the import; pages ingested before it stay.
//
// After BatchesPerRun batches, or once the page text seen by the run passes
// importTextBudget, the run continues as new with the pages still pending,
// so history stays bounded however large the workspace is.
func WorkspaceImportWorkflow(ctx workflow.Context, input WorkspaceImportInput) (ImportResult, error) {
	var lastSeq, lastProgress int
	if input.Resume != nil {
		lastSeq, lastProgress = input.Resume.LastSeq, input.Resume.LastProgress
	}
	log, emit, err := resumedProgressLog(ctx, lastSeq, lastProgress)
	if err != nil {
		return ImportResult{}, err
	}
	logger := workflow.GetLogger(ctx)
	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID
	ctx = workflow.WithActivityOptions(ctx, stepOptions(10*time.Minute))

	var result ImportResult
	abort := func(step string, err error) (ImportResult, error) {
		logger.Error("workspace import aborted", "step", step, "error", err)
		emit(progress.Event{
			Type:    progress.Error,
			Message: step + " failed",
			Error:   &progress.ErrorInfo{Kind: activities.ErrorKind(err), Message: err.Error()},
		})
		return result, err
	}

	var (
		refs []workspace.PageRef
		done int
	)
	if input.Resume != nil {
		refs = input.Resume.Pending
		done = input.Resume.Done
		result = input.Resume.Result
		logger.Info("workspace import resumed", "pending", len(refs), "done", done)
	} else {
		refs, err = listWorkspace(ctx, input.Token, emit)
		if err != nil {
			return abort("list pages", err)
		}
		result.Listed = len(refs)
	}
	total := result.Listed

	size := input.BatchSize
	if size <= 0 {
		size = defaultWorkspaceBatch
	}
	perRun := input.BatchesPerRun
	if perRun <= 0 {
		perRun = defaultBatchesPerRun
	}
	batches, textBytes := 0, 0
	for start := 0; start < len(refs); start += size {
		if batches >= perRun || textBytes >= importTextBudget {
			seq, pct := log.Position()
			next := input
			next.Resume = &ImportCheckpoint{
				Pending:      refs[start:],
				Done:         done,
				Result:       result,
				LastSeq:      seq,
				LastProgress: pct,
			}
			logger.Info("workspace import continuing as new", "pending", len(refs)-start, "done", done)
			return ImportResult{}, workflow.NewContinueAsNewError(ctx, WorkspaceImportWorkflow, next)
		}
		if (start > 0 || input.Resume != nil) && input.BatchDelay > 0 {
			if err := workflow.Sleep(ctx, input.BatchDelay); err != nil {
				return result, err
			}
		}
		end := min(start+size, len(refs))
		var batch workspace.BatchResult
		if err := workflow.ExecuteActivity(ctx, "ExtractWorkspacePagesActivity", activities.ExtractWorkspacePagesInput{
			Token: input.Token,
			Pages: refs[start:end],
		}).Get(ctx, &batch); err != nil {
			return abort("extract pages", err)
		}
		batches++
		result.Extracted += len(batch.Pages)
		result.Dropped += len(batch.Dropped)
		done += len(batch.Dropped)

		for _, page := range batch.Oversized {
			o := ItemOutcome{
				Index:     done,
				Status:    StatusFailed,
				ErrorKind: util.KindTooLarge,
				Error:     fmt.Sprintf("page has %d characters, over the ingest limit", page.Chars),
			}
			result.Oversized++
			result.Failed++
			result.Items = append(result.Items, o)
			done++
			emit(itemEvent(o, workspace.ExtractionProgress(done, total), total, fmt.Sprintf("page %q", page.Title)))
		}

		for _, page := range batch.Pages {
			textBytes += len(page.Text)
			pf := page.Prefetched()
			out, err := runChild(ctx, fmt.Sprintf("%s-page-%s", parentID, page.ID), IngestInput{
				UserID:     input.UserID,
				Content:    page.URL,
				Prefetched: &pf,
				Spaces:     input.Spaces,
				Reingest:   true,
				Settings:   input.Settings,
			})
			o := outcomeOf(done, out, err)
			if o.Status == StatusComplete {
				result.Succeeded++
			} else {
				result.Failed++
				result.Items = append(result.Items, o)
			}
			done++
			emit(itemEvent(o, workspace.ExtractionProgress(done, total), total, fmt.Sprintf("page %q", page.Title)))
		}
		if len(batch.Dropped) > 0 {
			emit(progress.Event{
				Type:     progress.Progress,
				Progress: workspace.ExtractionProgress(done, total),
				Total:    total,
				Message:  fmt.Sprintf("skipped %d short pages", len(batch.Dropped)),
			})
		}
	}

	emit(progress.Event{
		Type:    progress.Complete,
		Total:   total,
		Message: fmt.Sprintf("%d pages imported, %d failed, %d skipped", result.Succeeded, result.Failed, result.Dropped),
	})
	return result, nil
}

// listWorkspace pages through the workspace search until it is exhausted.
func listWorkspace(ctx workflow.Context, token string, emit func(progress.Event)) ([]workspace.PageRef, error) {
	emit(progress.Event{Type: progress.Connected, Message: "listing workspace pages"})
	var (
		refs   []workspace.PageRef
		cursor string
		calls  int
	)
	for {
		var listing workspace.PageListing
		if err := workflow.ExecuteActivity(ctx, "ListWorkspacePagesActivity", activities.ListWorkspacePagesInput{
			Token:  token,
			Cursor: cursor,
		}).Get(ctx, &listing); err != nil {
			return nil, err
		}
		calls++
		refs = append(refs, listing.Pages...)
		emit(progress.Event{
			Type:     progress.Progress,
			Progress: workspace.ListingProgress(calls),
			Message:  fmt.Sprintf("listed %d pages", len(refs)),
		})
		if !listing.HasMore || listing.NextCursor == "" {
			return refs, nil
		}
		cursor = listing.NextCursor
	}
}
