package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"contentflow/internal/activities"
	"contentflow/internal/config"
	"contentflow/internal/models"
	"contentflow/internal/progress"
	"contentflow/internal/retry"
	"contentflow/internal/search"
	"contentflow/internal/util"
	"contentflow/internal/workflows"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
)

type startCall struct {
	id  string
	arg any
}

type fakeWorkflows struct {
	mu       sync.Mutex
	started  []startCall
	result   workflows.IngestResult
	awaitErr error
	status   workflows.RunStatus
	events   []progress.Event
	queryErr error
	queried  []string
}

func (f *fakeWorkflows) Start(_ context.Context, id string, _ any, arg any) (RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, startCall{id: id, arg: arg})
	return RunHandle{WorkflowID: id, RunID: "run-1"}, nil
}

func (f *fakeWorkflows) Await(_ context.Context, _ RunHandle, out any) error {
	if f.awaitErr != nil {
		return f.awaitErr
	}
	*out.(*workflows.IngestResult) = f.result
	return nil
}

func (f *fakeWorkflows) Query(_ context.Context, id, queryType string, out any, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, id)
	if f.queryErr != nil {
		return f.queryErr
	}
	switch queryType {
	case workflows.QueryGetRunStatus:
		*out.(*workflows.RunStatus) = f.status
	case workflows.QueryGetProgress:
		after := args[0].(int)
		var events []progress.Event
		for _, e := range f.events {
			if e.Seq > after {
				events = append(events, e)
			}
		}
		*out.(*[]progress.Event) = events
	default:
		return fmt.Errorf("unknown query %s", queryType)
	}
	return nil
}

type fakeDocuments struct {
	docs    map[string]models.Document
	deleted []int64
}

func (f *fakeDocuments) ListByUser(_ context.Context, userID string, limit int) ([]models.Document, error) {
	var out []models.Document
	for _, d := range f.docs {
		if d.UserID == userID && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) GetByUUID(_ context.Context, userID, id string) (models.Document, error) {
	d, ok := f.docs[id]
	if !ok || d.UserID != userID {
		return models.Document{}, fmt.Errorf("get document %s: %w", id, util.ErrNotFound)
	}
	return d, nil
}

func (f *fakeDocuments) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeChunks struct {
	counts map[int64]int
}

func (f *fakeChunks) CountByDocument(_ context.Context, documentID int64) (int, error) {
	return f.counts[documentID], nil
}

type fakeSearch struct {
	lastUser string
	lastReq  search.Request
	results  []search.Result
	err      error
}

func (f *fakeSearch) Search(_ context.Context, userID string, req search.Request) ([]search.Result, error) {
	f.lastUser, f.lastReq = userID, req
	return f.results, f.err
}

func (f *fakeSearch) RelatedContext(_ context.Context, userID, query, collectionID string) ([]search.Result, error) {
	f.lastUser = userID
	f.lastReq = search.Request{Query: query, CollectionID: collectionID}
	return f.results, f.err
}

type fakeObjects struct {
	put     map[string][]byte
	deleted []string
}

func (f *fakeObjects) Put(_ context.Context, userID, filename string, data []byte, _ string) (string, error) {
	ref := "s3://uploads-bucket/uploads/" + userID + "/obj-1/" + filename
	if f.put == nil {
		f.put = map[string][]byte{}
	}
	f.put[ref] = data
	return ref, nil
}

func (f *fakeObjects) Delete(_ context.Context, ref string) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

type harness struct {
	wf      *fakeWorkflows
	docs    *fakeDocuments
	chunks  *fakeChunks
	search  *fakeSearch
	objects *fakeObjects
	handler http.Handler
}

func testConfig() config.Config {
	return config.Config{
		Env:         "development",
		CORSOrigins: []string{"https://app.example.com"},
		Ingest: config.IngestConfig{
			MaxDocumentsPerUser: 10,
			MaxContentChars:     1000,
			ChunkSize:           200,
			ChunkOverlap:        0.2,
			MaxSpaces:           5,
		},
		Workspace: config.WorkspaceConfig{BatchSize: 3, BatchesPerRun: 20},
	}
}

func newHarness(t *testing.T, cfg config.Config, withObjects bool) *harness {
	t.Helper()
	h := &harness{
		wf:     &fakeWorkflows{},
		docs:   &fakeDocuments{docs: map[string]models.Document{}},
		chunks: &fakeChunks{counts: map[int64]int{}},
		search: &fakeSearch{},
	}
	deps := Deps{Workflows: h.wf, Documents: h.docs, Chunks: h.chunks, Search: h.search}
	if withObjects {
		h.objects = &fakeObjects{}
		deps.Objects = h.objects
	}
	s := NewServer(cfg, deps)
	s.pollInterval = time.Millisecond
	s.newID = func() string { return "fixed-id" }
	h.handler = s.Routes()
	return h
}

func (h *harness) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var body struct {
		Error apiError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealthNeedsNoUser(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestsWithoutUserAreRejected(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	rec := h.do(t, http.MethodPost, "/v1/documents", "", ingestRequest{Content: "a note"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "CF-API-4010", decodeError(t, rec).Code)
	require.Empty(t, h.wf.started)
}

func TestIngestStartsScopedWorkflow(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	rec := h.do(t, http.MethodPost, "/v1/documents", "alice", ingestRequest{
		Content: "https://example.com/post",
		Spaces:  []string{"reading"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, h.wf.started, 1)
	call := h.wf.started[0]
	require.Equal(t, "ingest-alice-fixed-id", call.id)
	in := call.arg.(workflows.IngestInput)
	require.Equal(t, "alice", in.UserID)
	require.Equal(t, "fixed-id", in.DocumentUUID)
	require.Equal(t, []string{"reading"}, in.Spaces)
	require.Equal(t, 1000, in.Settings.MaxContentChars)

	var out startedRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "ingest-alice-fixed-id", out.WorkflowID)
	require.Equal(t, "fixed-id", out.DocumentUUID)
}

func TestIngestValidation(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	cases := map[string]ingestRequest{
		"empty content":   {Content: "   "},
		"unknown type":    {Content: "x", Type: "video"},
		"workspace type":  {Content: "x", Type: models.TypeNotion},
		"too many spaces": {Content: "x", Spaces: []string{"1", "2", "3", "4", "5", "6"}},
		"blank space":     {Content: "x", Spaces: []string{" "}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/v1/documents", "alice", req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "CF-API-4001", decodeError(t, rec).Code)
		})
	}
	require.Empty(t, h.wf.started)
}

func TestIngestWaitReturnsResult(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.wf.result = workflows.IngestResult{Status: workflows.StatusComplete, DocumentUUID: "doc-9", Embedded: 3}
	rec := h.do(t, http.MethodPost, "/v1/documents?wait=true", "alice", ingestRequest{Content: "a short note"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var out startedRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "doc-9", out.DocumentUUID)
	require.NotNil(t, out.Result)
	require.Equal(t, 3, out.Result.Embedded)
}

func TestIngestWaitMapsFailureKinds(t *testing.T) {
	cases := []struct {
		kind   string
		status int
		code   string
	}{
		{util.KindDuplicate, http.StatusConflict, "CF-ING-4090"},
		{util.KindQuota, http.StatusForbidden, "CF-ING-4030"},
		{util.KindTooLarge, http.StatusRequestEntityTooLarge, "CF-ING-4130"},
		{util.KindClassification, http.StatusUnprocessableEntity, "CF-ING-4220"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			h := newHarness(t, testConfig(), false)
			h.wf.result = workflows.IngestResult{Status: workflows.StatusFailed, ErrorKind: tc.kind, Error: "stopped"}
			rec := h.do(t, http.MethodPost, "/v1/documents?wait=true", "alice", ingestRequest{Content: "a short note"})
			require.Equal(t, tc.status, rec.Code)
			e := decodeError(t, rec)
			require.Equal(t, tc.code, e.Code)
			require.Equal(t, tc.kind, e.Kind)
			require.Contains(t, e.Detail, "stopped")
		})
	}
}

func TestIngestWaitExhaustedRetriesIsBadGateway(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.wf.awaitErr = temporal.NewNonRetryableApplicationError("embed chunks: gave up", activities.KindExhausted, nil)
	rec := h.do(t, http.MethodPost, "/v1/documents?wait=true", "alice", ingestRequest{Content: "a short note"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "CF-UPS-5020", decodeError(t, rec).Code)
}

func TestErrorDetailHiddenInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	h := newHarness(t, cfg, false)
	h.wf.result = workflows.IngestResult{Status: workflows.StatusFailed, ErrorKind: util.KindDuplicate, Error: "matches document 12"}
	rec := h.do(t, http.MethodPost, "/v1/documents?wait=true", "alice", ingestRequest{Content: "a short note"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Empty(t, decodeError(t, rec).Detail)
}

func sseEvents(t *testing.T, body string) []progress.Event {
	t.Helper()
	var out []progress.Event
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var e progress.Event
		require.NoError(t, json.Unmarshal([]byte(data), &e))
		out = append(out, e)
	}
	return out
}

func TestBatchStreamsProgressUntilComplete(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.wf.events = []progress.Event{
		{Seq: 1, Type: progress.Connected, Total: 2},
		{Seq: 2, Type: progress.Progress, Progress: 50, Item: 1, Total: 2},
		{Seq: 3, Type: progress.Warning, Progress: 100, Item: 2, Total: 2, Error: &progress.ErrorInfo{Kind: util.KindDuplicate, Message: "dup"}},
		{Seq: 4, Type: progress.Complete, Progress: 100},
	}
	rec := h.do(t, http.MethodPost, "/v1/documents/batch", "alice", batchRequest{Items: []ingestRequest{
		{Content: "https://example.com/a"},
		{Content: "a note"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "batch-alice-fixed-id", rec.Header().Get("X-Workflow-ID"))
	require.Contains(t, rec.Body.String(), "event: warning\n")

	events := sseEvents(t, rec.Body.String())
	require.Len(t, events, 4)
	for i, e := range events {
		require.Equal(t, i+1, e.Seq)
	}
	require.Equal(t, progress.Complete, events[3].Type)

	in := h.wf.started[0].arg.(workflows.BatchInput)
	require.Len(t, in.Items, 2)
	require.Equal(t, "alice", in.UserID)
}

func TestBatchRejectsInvalidItem(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	rec := h.do(t, http.MethodPost, "/v1/documents/batch", "alice", batchRequest{Items: []ingestRequest{
		{Content: "fine"},
		{Content: ""},
	}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeError(t, rec).Detail, "item 1")
	require.Empty(t, h.wf.started)
}

func TestStreamEndsWithErrorWhenRunCannotBeQueried(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.wf.queryErr = errors.New("workflow not found")
	rec := h.do(t, http.MethodPost, "/v1/documents/batch", "alice", batchRequest{Items: []ingestRequest{{Content: "a note"}}})
	require.Equal(t, http.StatusOK, rec.Code)

	events := sseEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	require.Equal(t, progress.Error, events[0].Type)
	require.Equal(t, "ProgressUnavailable", events[0].Error.Kind)
}

func TestWorkspaceImportRequiresToken(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	rec := h.do(t, http.MethodPost, "/v1/imports/workspace", "alice", importRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	h.wf.events = []progress.Event{{Seq: 1, Type: progress.Complete, Progress: 100}}
	rec = h.do(t, http.MethodPost, "/v1/imports/workspace", "alice", importRequest{Token: "secret_abc", Spaces: []string{"notion"}})
	require.Equal(t, http.StatusOK, rec.Code)
	in := h.wf.started[0].arg.(workflows.WorkspaceImportInput)
	require.Equal(t, "secret_abc", in.Token)
	require.Equal(t, 3, in.BatchSize)
	require.Equal(t, 20, in.BatchesPerRun)
	require.Nil(t, in.Resume)
	require.Equal(t, "import-alice-fixed-id", h.wf.started[0].id)
}

func TestRunStatusIsScopedToCaller(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.wf.status = workflows.RunStatus{State: workflows.StateComplete, DocumentUUID: "doc-1"}

	rec := h.do(t, http.MethodGet, "/v1/runs/ingest-bob-xyz", "alice", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, h.wf.queried)

	rec = h.do(t, http.MethodGet, "/v1/runs/ingest-alice-xyz", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st workflows.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "doc-1", st.DocumentUUID)

	h.wf.events = []progress.Event{{Seq: 1, Type: progress.Connected}}
	rec = h.do(t, http.MethodGet, "/v1/runs/batch-alice-xyz", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"events"`)
}

func TestWorkflowIDsNeverShareUserPrefixes(t *testing.T) {
	require.Equal(t, "ingest-alice-1", workflowID("ingest", "alice", "1"))
	hashed := sanitizeID("alice-admin")
	require.NotContains(t, hashed, "-")
	require.False(t, ownsWorkflow("alice", workflowID("ingest", "alice-admin", "1")))
	require.True(t, ownsWorkflow("alice-admin", workflowID("batch", "alice-admin", "1")+"-item-0"))
}

func multipartUpload(t *testing.T, filename, content string, spaces ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for _, s := range spaces {
		require.NoError(t, mw.WriteField("spaces", s))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(h *harness, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(userHeader, "alice")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadStoresObjectAndStartsDocumentRun(t *testing.T) {
	h := newHarness(t, testConfig(), true)
	body, ct := multipartUpload(t, "notes.md", "# Notes\n\nSome text.", "research")
	rec := upload(h, body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, h.objects.put, 1)
	in := h.wf.started[0].arg.(workflows.IngestInput)
	require.Equal(t, models.TypeDocument, in.Type)
	require.True(t, strings.HasPrefix(in.Content, "s3://uploads-bucket/"))
	require.Equal(t, []string{"research"}, in.Spaces)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	h := newHarness(t, testConfig(), true)
	body, ct := multipartUpload(t, "song.mp3", "not text")
	rec := upload(h, body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "CF-ING-4221", decodeError(t, rec).Code)
	require.Empty(t, h.objects.put)
}

func TestUploadWithoutObjectStore(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	body, ct := multipartUpload(t, "notes.md", "text")
	rec := upload(h, body, ct)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestDeleteDocumentRemovesUploadedObject(t *testing.T) {
	h := newHarness(t, testConfig(), true)
	h.docs.docs["doc-1"] = models.Document{ID: 7, UUID: "doc-1", UserID: "alice", Type: models.TypeDocument, Raw: "s3://b/uploads/alice/x/a.pdf"}
	h.docs.docs["doc-2"] = models.Document{ID: 8, UUID: "doc-2", UserID: "bob", Type: models.TypeNote, Raw: "hello"}

	rec := h.do(t, http.MethodDelete, "/v1/documents/doc-1", "alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []int64{7}, h.docs.deleted)
	require.Equal(t, []string{"s3://b/uploads/alice/x/a.pdf"}, h.objects.deleted)

	rec = h.do(t, http.MethodDelete, "/v1/documents/doc-2", "alice", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, []int64{7}, h.docs.deleted)
}

func TestListDocuments(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.docs.docs["doc-1"] = models.Document{ID: 1, UUID: "doc-1", UserID: "alice", Type: models.TypeNote}
	h.docs.docs["doc-2"] = models.Document{ID: 2, UUID: "doc-2", UserID: "bob", Type: models.TypeNote}

	rec := h.do(t, http.MethodGet, "/v1/documents?limit=10", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Documents []models.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Documents, 1)
	require.Equal(t, "doc-1", out.Documents[0].UUID)

	rec = h.do(t, http.MethodGet, "/v1/documents?limit=0", "alice", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocumentReportsChunkCount(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.docs.docs["doc-1"] = models.Document{ID: 3, UUID: "doc-1", UserID: "alice", Type: models.TypeNote, Processed: true}
	h.docs.docs["doc-2"] = models.Document{ID: 4, UUID: "doc-2", UserID: "bob", Type: models.TypeNote}
	h.chunks.counts[3] = 12

	rec := h.do(t, http.MethodGet, "/v1/documents/doc-1", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		UUID       string `json:"uuid"`
		Processed  bool   `json:"processed"`
		ChunkCount *int   `json:"chunk_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "doc-1", out.UUID)
	require.True(t, out.Processed)
	require.NotNil(t, out.ChunkCount)
	require.Equal(t, 12, *out.ChunkCount)

	rec = h.do(t, http.MethodGet, "/v1/documents/doc-2", "alice", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSAllowsOnlyConfiguredOrigins(t *testing.T) {
	h := newHarness(t, testConfig(), false)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/v1/search", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("https://app.example.com")
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight("https://evil.example.net")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSearchPassesCallerAndRequest(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.search.results = []search.Result{{ChunkMatch: models.ChunkMatch{DocumentID: 4, Similarity: 0.8}, Snippet: "go channels"}}
	threshold := 0.3
	rec := h.do(t, http.MethodPost, "/v1/search", "alice", search.Request{Query: "channels", Threshold: &threshold, Limit: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", h.search.lastUser)
	require.Equal(t, 5, h.search.lastReq.Limit)
	require.Contains(t, rec.Body.String(), "go channels")

	rec = h.do(t, http.MethodPost, "/v1/search", "alice", search.Request{Query: " "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContextSearchUpstreamFailure(t *testing.T) {
	h := newHarness(t, testConfig(), false)
	h.search.err = fmt.Errorf("embed query: %w", &retry.ExhaustedError{Attempts: 3, Err: errors.New("provider down")})
	rec := h.do(t, http.MethodPost, "/v1/context", "alice", contextRequest{Query: "what did I read", CollectionID: "c1"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "CF-UPS-5020", decodeError(t, rec).Code)
	require.Equal(t, "c1", h.search.lastReq.CollectionID)
}
