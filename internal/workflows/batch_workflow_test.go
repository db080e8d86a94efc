package workflows

import (
	"errors"
	"testing"
	"time"

	"contentflow/internal/activities"
	"contentflow/internal/config"
	"contentflow/internal/progress"
	"contentflow/internal/util"
	"contentflow/internal/workspace"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

func newBatchEnv(t *testing.T, parent interface{}) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(parent)
	env.RegisterWorkflow(IngestDocumentWorkflow)
	env.RegisterActivity(activities.NewWithDeps(config.Config{}, activities.Deps{}))
	return env
}

func queryEvents(t *testing.T, env *testsuite.TestWorkflowEnvironment, after int) []progress.Event {
	t.Helper()
	val, err := env.QueryWorkflow(QueryGetProgress, after)
	require.NoError(t, err)
	var events []progress.Event
	require.NoError(t, val.Get(&events))
	return events
}

func requireMonotonic(t *testing.T, events []progress.Event) {
	t.Helper()
	last := 0
	for i, e := range events {
		require.Equal(t, i+1, e.Seq)
		require.GreaterOrEqual(t, e.Progress, last, "event %d", i)
		last = e.Progress
	}
}

func TestBatchIngestWorkflowIsolatesItemFailures(t *testing.T) {
	env := newBatchEnv(t, BatchIngestWorkflow)
	env.OnWorkflow(IngestDocumentWorkflow, mock.Anything, mock.Anything).
		Return(IngestResult{Status: StatusComplete, DocumentUUID: "d-1"}, nil).Once()
	env.OnWorkflow(IngestDocumentWorkflow, mock.Anything, mock.Anything).
		Return(IngestResult{Status: StatusFailed, ErrorKind: util.KindDuplicate, Error: "duplicate content"}, nil).Once()
	env.OnWorkflow(IngestDocumentWorkflow, mock.Anything, mock.Anything).
		Return(IngestResult{}, temporal.NewNonRetryableApplicationError("fetch content: gave up", activities.KindExhausted, errors.New("503"))).Once()

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchInput{
		UserID:    "u1",
		Items:     []BatchItem{{Content: "a note"}, {Content: "https://example.com"}, {Content: "https://example.org"}},
		ItemDelay: 2 * time.Second,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out BatchResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, 3, out.Total)
	require.Equal(t, 1, out.Succeeded)
	require.Equal(t, 2, out.Failed)
	require.Equal(t, util.KindDuplicate, out.Items[1].ErrorKind)
	require.Equal(t, activities.KindExhausted, out.Items[2].ErrorKind)

	events := queryEvents(t, env, 0)
	requireMonotonic(t, events)
	types := make([]progress.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	require.Equal(t, []progress.EventType{
		progress.Connected, progress.Progress, progress.Warning, progress.Warning, progress.Complete,
	}, types)
	require.Equal(t, 33, events[1].Progress)
	require.Equal(t, "d-1", events[1].DocumentID)
	require.Equal(t, util.KindDuplicate, events[2].Error.Kind)
	require.Equal(t, 100, events[4].Progress)

	require.Len(t, queryEvents(t, env, 3), 2)
}

func TestBatchIngestWorkflowEmpty(t *testing.T) {
	env := newBatchEnv(t, BatchIngestWorkflow)
	env.ExecuteWorkflow(BatchIngestWorkflow, BatchInput{UserID: "u1"})
	require.NoError(t, env.GetWorkflowError())
	events := queryEvents(t, env, 0)
	require.Len(t, events, 2)
	require.Equal(t, progress.Complete, events[1].Type)
}

func TestWorkspaceImportWorkflow(t *testing.T) {
	env := newBatchEnv(t, WorkspaceImportWorkflow)
	env.OnActivity("ListWorkspacePagesActivity", mock.Anything, activities.ListWorkspacePagesInput{}).Return(workspace.PageListing{
		Pages:      []workspace.PageRef{{ID: "p1", Title: "One"}, {ID: "p2", Title: "Two"}},
		HasMore:    true,
		NextCursor: "c2",
	}, nil).Once()
	env.OnActivity("ListWorkspacePagesActivity", mock.Anything, activities.ListWorkspacePagesInput{Cursor: "c2"}).Return(workspace.PageListing{
		Pages: []workspace.PageRef{{ID: "p3", Title: "Three"}},
	}, nil).Once()
	env.OnActivity("ExtractWorkspacePagesActivity", mock.Anything, mock.MatchedBy(func(in activities.ExtractWorkspacePagesInput) bool {
		return len(in.Pages) == 2
	})).Return(workspace.BatchResult{
		Pages:   []workspace.Page{{PageRef: workspace.PageRef{ID: "p1", Title: "One"}, Text: "first page body"}},
		Dropped: []workspace.PageRef{{ID: "p2", Title: "Two"}},
	}, nil).Once()
	env.OnActivity("ExtractWorkspacePagesActivity", mock.Anything, mock.MatchedBy(func(in activities.ExtractWorkspacePagesInput) bool {
		return len(in.Pages) == 1
	})).Return(workspace.BatchResult{
		Pages: []workspace.Page{{PageRef: workspace.PageRef{ID: "p3", Title: "Three"}, Text: "third page body"}},
	}, nil).Once()
	env.OnWorkflow(IngestDocumentWorkflow, mock.Anything, mock.MatchedBy(func(in IngestInput) bool {
		return in.Prefetched != nil && in.Reingest && in.Prefetched.PageID != ""
	})).Return(IngestResult{Status: StatusComplete}, nil).Twice()

	env.ExecuteWorkflow(WorkspaceImportWorkflow, WorkspaceImportInput{UserID: "u1", BatchSize: 2, BatchDelay: time.Second})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ImportResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, 3, out.Listed)
	require.Equal(t, 2, out.Extracted)
	require.Equal(t, 1, out.Dropped)
	require.Equal(t, 2, out.Succeeded)
	env.AssertExpectations(t)

	events := queryEvents(t, env, 0)
	requireMonotonic(t, events)
	last := events[len(events)-1]
	require.Equal(t, progress.Complete, last.Type)
	require.Equal(t, 100, last.Progress)
	for _, e := range events[1:3] {
		require.LessOrEqual(t, e.Progress, 30)
	}
}

func TestWorkspaceImportWorkflowAbortsOnCollectorFailure(t *testing.T) {
	env := newBatchEnv(t, WorkspaceImportWorkflow)
	env.OnActivity("ListWorkspacePagesActivity", mock.Anything, mock.Anything).Return(workspace.PageListing{
		Pages: []workspace.PageRef{{ID: "p1"}, {ID: "p2"}},
	}, nil)
	env.OnActivity("ExtractWorkspacePagesActivity", mock.Anything, mock.Anything).Return(workspace.BatchResult{},
		temporal.NewNonRetryableApplicationError("extract workspace pages: gave up after 5 attempts", activities.KindExhausted, nil))

	env.ExecuteWorkflow(WorkspaceImportWorkflow, WorkspaceImportInput{UserID: "u1", BatchSize: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	events := queryEvents(t, env, 0)
	last := events[len(events)-1]
	require.Equal(t, progress.Error, last.Type)
	require.Equal(t, activities.KindExhausted, last.Error.Kind)
}

func extractFor(ids ...string) interface{} {
	return mock.MatchedBy(func(in activities.ExtractWorkspacePagesInput) bool {
		if len(in.Pages) != len(ids) {
			return false
		}
		for i, p := range in.Pages {
			if p.ID != ids[i] {
				return false
			}
		}
		return true
	})
}

func pageOf(id string) workspace.Page {
	return workspace.Page{PageRef: workspace.PageRef{ID: id, Title: id}, Text: "body of " + id}
}

func TestWorkspaceImportWorkflowContinuesAsNewWithCheckpoint(t *testing.T) {
	refs := []workspace.PageRef{{ID: "p1"}, {ID: "p2", Title: "Huge"}, {ID: "p3"}, {ID: "p4"}, {ID: "p5"}}

	env := newBatchEnv(t, WorkspaceImportWorkflow)
	env.OnActivity("ListWorkspacePagesActivity", mock.Anything, mock.Anything).
		Return(workspace.PageListing{Pages: refs}, nil).Once()
	env.OnActivity("ExtractWorkspacePagesActivity", mock.Anything, extractFor("p1", "p2")).Return(workspace.BatchResult{
		Pages:     []workspace.Page{pageOf("p1")},
		Oversized: []workspace.OversizedPage{{PageRef: refs[1], Chars: 250000}},
	}, nil).Once()
	env.OnWorkflow(IngestDocumentWorkflow, mock.Anything, mock.Anything).
		Return(IngestResult{Status: StatusComplete, DocumentUUID: "d-p1"}, nil).Once()

	env.ExecuteWorkflow(WorkspaceImportWorkflow, WorkspaceImportInput{UserID: "u1", BatchSize: 2, BatchesPerRun: 1})
	require.True(t, env.IsWorkflowCompleted())
	var canErr *workflow.ContinueAsNewError
	require.ErrorAs(t, env.GetWorkflowError(), &canErr)
	env.AssertExpectations(t)

	first := queryEvents(t, env, 0)
	requireMonotonic(t, first)
	oversized := first[2]
	require.Equal(t, progress.Warning, oversized.Type)
	require.Equal(t, util.KindTooLarge, oversized.Error.Kind)
	require.NotEqual(t, progress.Complete, first[len(first)-1].Type)

	var next WorkspaceImportInput
	require.NoError(t, converter.GetDefaultDataConverter().FromPayloads(canErr.Input, &next))
	require.NotNil(t, next.Resume)
	require.Equal(t, refs[2:], next.Resume.Pending)
	require.Equal(t, 2, next.Resume.Done)
	require.Equal(t, 5, next.Resume.Result.Listed)
	require.Equal(t, 1, next.Resume.Result.Succeeded)
	require.Equal(t, 1, next.Resume.Result.Oversized)
	require.Equal(t, 1, next.Resume.Result.Failed)
	require.Len(t, next.Resume.Result.Items, 1)
	require.Equal(t, util.KindTooLarge, next.Resume.Result.Items[0].ErrorKind)
	require.Equal(t, len(first), next.Resume.LastSeq)
	require.Equal(t, first[len(first)-1].Progress, next.Resume.LastProgress)

	// The continuation skips listing and picks up the pending pages.
	next.BatchesPerRun = 5
	env2 := newBatchEnv(t, WorkspaceImportWorkflow)
	env2.OnActivity("ExtractWorkspacePagesActivity", mock.Anything, extractFor("p3", "p4")).Return(workspace.BatchResult{
		Pages: []workspace.Page{pageOf("p3"), pageOf("p4")},
	}, nil).Once()
	env2.OnActivity("ExtractWorkspacePagesActivity", mock.Anything, extractFor("p5")).Return(workspace.BatchResult{
		Pages: []workspace.Page{pageOf("p5")},
	}, nil).Once()
	env2.OnWorkflow(IngestDocumentWorkflow, mock.Anything, mock.Anything).
		Return(IngestResult{Status: StatusComplete}, nil).Times(3)

	env2.ExecuteWorkflow(WorkspaceImportWorkflow, next)
	require.True(t, env2.IsWorkflowCompleted())
	require.NoError(t, env2.GetWorkflowError())
	env2.AssertExpectations(t)

	var out ImportResult
	require.NoError(t, env2.GetWorkflowResult(&out))
	require.Equal(t, 5, out.Listed)
	require.Equal(t, 4, out.Extracted)
	require.Equal(t, 4, out.Succeeded)
	require.Equal(t, 1, out.Failed)
	require.Equal(t, 1, out.Oversized)
	require.Len(t, out.Items, 1)

	second := queryEvents(t, env2, 0)
	require.Equal(t, next.Resume.LastSeq+1, second[0].Seq)
	last := next.Resume.LastProgress
	for i, e := range second {
		require.Equal(t, next.Resume.LastSeq+1+i, e.Seq)
		require.GreaterOrEqual(t, e.Progress, last)
		last = e.Progress
	}
	require.Equal(t, progress.Complete, second[len(second)-1].Type)
	require.Len(t, queryEvents(t, env2, next.Resume.LastSeq+1), len(second)-1)
}
