package api

import (
	"context"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

// RunHandle identifies one started workflow execution.
type RunHandle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Workflows is the slice of the Temporal client the handlers use.
type Workflows interface {
	Start(ctx context.Context, workflowID string, fn any, arg any) (RunHandle, error)
	Await(ctx context.Context, h RunHandle, out any) error
	Query(ctx context.Context, workflowID, queryType string, out any, args ...any) error
}

type temporalWorkflows struct {
	client    tclient.Client
	taskQueue string
}

func NewTemporalWorkflows(c tclient.Client, taskQueue string) Workflows {
	return &temporalWorkflows{client: c, taskQueue: taskQueue}
}

func (t *temporalWorkflows) Start(ctx context.Context, workflowID string, fn any, arg any) (RunHandle, error) {
	run, err := t.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                t.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, fn, arg)
	if err != nil {
		return RunHandle{}, fmt.Errorf("start workflow %s: %w", workflowID, err)
	}
	return RunHandle{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

func (t *temporalWorkflows) Await(ctx context.Context, h RunHandle, out any) error {
	return t.client.GetWorkflow(ctx, h.WorkflowID, h.RunID).Get(ctx, out)
}

func (t *temporalWorkflows) Query(ctx context.Context, workflowID, queryType string, out any, args ...any) error {
	val, err := t.client.QueryWorkflow(ctx, workflowID, "", queryType, args...)
	if err != nil {
		return fmt.Errorf("query %s on %s: %w", queryType, workflowID, err)
	}
	return val.Get(out)
}
