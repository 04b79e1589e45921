package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/converter"

	"github.com/cecilphillip/shadowshop/internal/common"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowInspector is the part of client.Client used to observe and cancel
// fulfillment workflows.
type WorkflowInspector interface {
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
}

// StatusReport combines the workflow's own status with the engine's view of
// the execution, so failures and cancellations are visible too.
type StatusReport struct {
	WorkflowID string     `json:"workflow_id"`
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	Execution  string     `json:"execution"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	// StatusError is set when the status query could not be served, for
	// example while no worker is polling. Execution is still reported.
	StatusError string `json:"status_error,omitempty"`
}

type StatusClient struct {
	client WorkflowInspector
}

func NewStatusClient(c WorkflowInspector) *StatusClient {
	return &StatusClient{client: c}
}

// Status returns the current status string of the workflow.
func (s *StatusClient) Status(ctx context.Context, workflowID string) (string, error) {
	val, err := s.client.QueryWorkflow(ctx, workflowID, "", common.StatusQuery)
	if err != nil {
		return "", notFound(workflowID, err)
	}
	var status string
	if err := val.Get(&status); err != nil {
		return "", fmt.Errorf("decode status of %s: %w", workflowID, err)
	}
	return status, nil
}

// Report describes the execution and queries its status. Only an unknown
// workflow is an error; a failed query leaves Status empty and sets
// StatusError.
func (s *StatusClient) Report(ctx context.Context, workflowID string) (StatusReport, error) {
	desc, err := s.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return StatusReport{}, notFound(workflowID, err)
	}
	info := desc.GetWorkflowExecutionInfo()
	report := StatusReport{
		WorkflowID: workflowID,
		RunID:      info.GetExecution().GetRunId(),
		Execution:  info.GetStatus().String(),
	}
	if ts := info.GetStartTime(); ts != nil {
		t := ts.AsTime()
		report.StartedAt = &t
	}
	if ts := info.GetCloseTime(); ts != nil {
		t := ts.AsTime()
		report.ClosedAt = &t
	}

	status, err := s.Status(ctx, workflowID)
	switch {
	case errors.Is(err, ErrWorkflowNotFound):
		return StatusReport{}, err
	case err != nil:
		report.StatusError = err.Error()
	default:
		report.Status = status
	}
	return report, nil
}

// Cancel requests cancellation of the workflow. The in-flight activity attempt
// is cancelled and the execution closes as canceled.
func (s *StatusClient) Cancel(ctx context.Context, workflowID string) error {
	if err := s.client.CancelWorkflow(ctx, workflowID, ""); err != nil {
		return notFound(workflowID, err)
	}
	return nil
}

func notFound(workflowID string, err error) error {
	var nf *serviceerror.NotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	return fmt.Errorf("workflow %s: %w", workflowID, err)
}
