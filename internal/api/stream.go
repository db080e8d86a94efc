package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"contentflow/internal/progress"
	"contentflow/internal/retry"
	"contentflow/internal/workflows"
)

// workflowSource reads a run's progress log through its query handler. The
// handler is registered on the run's first task, so early queries may fail
// and are retried.
type workflowSource struct {
	wf     Workflows
	id     string
	policy retry.Policy
}

func (src workflowSource) Since(ctx context.Context, after int) ([]progress.Event, error) {
	var events []progress.Event
	err := src.policy.Do(ctx, func(ctx context.Context) error {
		events = nil
		return src.wf.Query(ctx, src.id, workflows.QueryGetProgress, &events, after)
	})
	return events, err
}

// streamProgress relays a run's progress to the client as server-sent events
// until a terminal event or until the client goes away.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request, h RunHandle) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusAccepted, h)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Workflow-ID", h.WorkflowID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	stream := progress.NewStream(16)
	src := workflowSource{wf: s.deps.Workflows, id: h.WorkflowID, policy: retry.Constant(10, s.pollInterval, 0)}
	relayErr := make(chan error, 1)
	go func() { relayErr <- progress.Relay(ctx, src, stream, s.pollInterval) }()

	terminal := false
	for e := range stream.Events() {
		if err := writeEvent(w, e); err != nil {
			s.log.Warn("progress stream write failed", "workflow_id", h.WorkflowID, "error", err)
			return
		}
		flusher.Flush()
		terminal = e.Type.Terminal()
	}
	err := <-relayErr
	if terminal || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("progress stream ended without a terminal event")
	}
	s.log.Warn("progress relay stopped", "workflow_id", h.WorkflowID, "error", err)
	_ = writeEvent(w, progress.Event{
		Type:       progress.Error,
		WorkflowID: h.WorkflowID,
		Message:    "lost track of the run; poll /v1/runs/" + h.WorkflowID + " for its outcome",
		Error:      &progress.ErrorInfo{Kind: "ProgressUnavailable", Message: err.Error()},
		At:         time.Now().UTC(),
	})
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, e progress.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, data)
	return err
}
