package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"contentflow/internal/fetch"
	"contentflow/internal/models"
	"contentflow/internal/progress"
	"contentflow/internal/util"
	"contentflow/internal/workflows"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBatchItems = 100

func newUUID() string { return uuid.NewString() }

type ingestRequest struct {
	Content  string             `json:"content"`
	Type     models.ContentType `json:"type,omitempty"`
	Spaces   []string           `json:"spaces,omitempty"`
	Reingest bool               `json:"reingest,omitempty"`
}

type startedRun struct {
	RunHandle
	DocumentUUID string                  `json:"document_uuid,omitempty"`
	Result       *workflows.IngestResult `json:"result,omitempty"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, errBadRequest)
	}
	return nil
}

func (s *Server) validateItem(content string, t models.ContentType, spaces []string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required: %w", errBadRequest)
	}
	if t != "" && !t.Valid() {
		return fmt.Errorf("unknown content type %q: %w", t, errBadRequest)
	}
	if t == models.TypeNotion {
		return fmt.Errorf("workspace content is imported through /v1/imports/workspace: %w", errBadRequest)
	}
	return s.validateSpaces(spaces)
}

func (s *Server) validateSpaces(spaces []string) error {
	limit := s.cfg.Ingest.MaxSpaces
	if limit <= 0 {
		limit = 5
	}
	if len(spaces) > limit {
		return fmt.Errorf("at most %d spaces per item, got %d: %w", limit, len(spaces), errBadRequest)
	}
	for _, sp := range spaces {
		if strings.TrimSpace(sp) == "" {
			return fmt.Errorf("space reference must not be empty: %w", errBadRequest)
		}
	}
	return nil
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validateItem(req.Content, req.Type, req.Spaces); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	s.startIngest(w, r, workflows.IngestInput{
		Content:  req.Content,
		Type:     req.Type,
		Spaces:   req.Spaces,
		Reingest: req.Reingest,
	}, "")
}

// startIngest starts one document run. With ?wait=true the response carries
// the run's outcome instead of only its handle.
func (s *Server) startIngest(w http.ResponseWriter, r *http.Request, in workflows.IngestInput, uploadedRef string) {
	ctx := r.Context()
	user := userFrom(ctx)
	in.UserID = user
	in.DocumentUUID = s.newID()
	in.Settings = workflows.SettingsFromConfig(s.cfg)

	h, err := s.deps.Workflows.Start(ctx, workflowID("ingest", user, in.DocumentUUID), workflows.IngestDocumentWorkflow, in)
	if err != nil {
		if uploadedRef != "" {
			if derr := s.deps.Objects.Delete(ctx, uploadedRef); derr != nil {
				s.log.Warn("orphaned upload", "ref", uploadedRef, "error", derr)
			}
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("ingestion started", "user_id", user, "workflow_id", h.WorkflowID, "type", string(in.Type))

	out := startedRun{RunHandle: h, DocumentUUID: in.DocumentUUID}
	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, out)
		return
	}

	var res workflows.IngestResult
	if err := s.deps.Workflows.Await(ctx, h, &res); err != nil {
		s.writeErr(w, statusForErr(err), err)
		return
	}
	if res.Status != workflows.StatusComplete {
		err := resultErr(res)
		s.writeErr(w, statusForKind(res.ErrorKind), err)
		return
	}
	out.DocumentUUID = res.DocumentUUID
	out.Result = &res
	writeJSON(w, http.StatusCreated, out)
}

func resultErr(res workflows.IngestResult) error {
	if sentinel := util.SentinelForKind(res.ErrorKind); sentinel != nil {
		return fmt.Errorf("%s: %w", res.Error, sentinel)
	}
	return errors.New(res.Error)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Objects == nil {
		s.writeErr(w, http.StatusNotImplemented, errors.New("object storage is not configured"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeErr(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("parse upload: %v: %w", err, errBadRequest))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("file field: %v: %w", err, errBadRequest))
		return
	}
	defer file.Close()

	ext := strings.ToLower(path.Ext(header.Filename))
	if !fetch.SupportedDocument(ext) {
		err := fmt.Errorf("upload %q: %w", header.Filename, util.ErrUnsupportedDocument)
		s.writeErr(w, statusForErr(err), err)
		return
	}
	spaces := r.MultipartForm.Value["spaces"]
	if err := s.validateSpaces(spaces); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("read upload: %v: %w", err, errBadRequest))
		return
	}
	if len(data) == 0 {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("upload %q is empty: %w", header.Filename, errBadRequest))
		return
	}

	ref, err := s.deps.Objects.Put(r.Context(), userFrom(r.Context()), header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		s.writeErr(w, http.StatusBadGateway, err)
		return
	}
	s.startIngest(w, r, workflows.IngestInput{
		Content: ref,
		Type:    models.TypeDocument,
		Spaces:  spaces,
	}, ref)
}

type batchRequest struct {
	Items []ingestRequest `json:"items"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Items) > maxBatchItems {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("at most %d items per batch: %w", maxBatchItems, errBadRequest))
		return
	}
	items := make([]workflows.BatchItem, 0, len(req.Items))
	for i, it := range req.Items {
		if err := s.validateItem(it.Content, it.Type, it.Spaces); err != nil {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("item %d: %w", i, err))
			return
		}
		items = append(items, workflows.BatchItem{Content: it.Content, Type: it.Type, Spaces: it.Spaces, Reingest: it.Reingest})
	}

	user := userFrom(r.Context())
	h, err := s.deps.Workflows.Start(r.Context(), workflowID("batch", user, s.newID()), workflows.BatchIngestWorkflow, workflows.BatchInput{
		UserID:    user,
		Items:     items,
		ItemDelay: s.cfg.BatchItemDelay(),
		Settings:  workflows.SettingsFromConfig(s.cfg),
	})
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("batch started", "user_id", user, "workflow_id", h.WorkflowID, "items", len(items))
	s.streamProgress(w, r, h)
}

type importRequest struct {
	Token  string   `json:"token,omitempty"`
	Spaces []string `json:"spaces,omitempty"`
}

func (s *Server) handleWorkspaceImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validateSpaces(req.Spaces); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" && s.cfg.NotionToken == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("workspace token is required: %w", errBadRequest))
		return
	}

	user := userFrom(r.Context())
	h, err := s.deps.Workflows.Start(r.Context(), workflowID("import", user, s.newID()), workflows.WorkspaceImportWorkflow, workflows.WorkspaceImportInput{
		UserID:        user,
		Token:         strings.TrimSpace(req.Token),
		Spaces:        req.Spaces,
		BatchSize:     s.cfg.Workspace.BatchSize,
		BatchDelay:    s.cfg.WorkspaceBatchDelay(),
		Settings:      workflows.SettingsFromConfig(s.cfg),
		BatchesPerRun: s.cfg.Workspace.BatchesPerRun,
	})
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("workspace import started", "user_id", user, "workflow_id", h.WorkflowID)
	s.streamProgress(w, r, h)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("limit must be 1..500: %w", errBadRequest))
			return
		}
		limit = n
	}
	docs, err := s.deps.Documents.ListByUser(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

type documentView struct {
	models.Document
	ChunkCount *int `json:"chunk_count,omitempty"`
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := s.deps.Documents.GetByUUID(ctx, userFrom(ctx), chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeErr(w, statusForErr(err), err)
		return
	}
	view := documentView{Document: doc}
	if s.deps.Chunks != nil {
		n, err := s.deps.Chunks.CountByDocument(ctx, doc.ID)
		if err != nil {
			s.writeErr(w, http.StatusInternalServerError, err)
			return
		}
		view.ChunkCount = &n
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := s.deps.Documents.GetByUUID(ctx, userFrom(ctx), chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeErr(w, statusForErr(err), err)
		return
	}
	if err := s.deps.Documents.Delete(ctx, doc.ID); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if doc.Type == models.TypeDocument && strings.HasPrefix(doc.Raw, "s3://") && s.deps.Objects != nil {
		if err := s.deps.Objects.Delete(ctx, doc.Raw); err != nil {
			s.log.Warn("delete uploaded object", "ref", doc.Raw, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunStatus answers for a single document run with its state machine
// history, and for batch or import runs with their progress events.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workflowID")
	if !ownsWorkflow(userFrom(ctx), id) {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("run %s: %w", id, util.ErrNotFound))
		return
	}
	if isDocumentRun(id) {
		var st workflows.RunStatus
		if err := s.deps.Workflows.Query(ctx, id, workflows.QueryGetRunStatus, &st); err != nil {
			s.writeErr(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}
	var events []progress.Event
	if err := s.deps.Workflows.Query(ctx, id, workflows.QueryGetProgress, &events, 0); err != nil {
		s.writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow_id": id, "events": events})
}

func isDocumentRun(id string) bool {
	return strings.HasPrefix(id, "ingest-") || strings.Contains(id, "-item-") || strings.Contains(id, "-page-")
}
