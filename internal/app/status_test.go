package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/converter"

	"github.com/cecilphillip/shadowshop/internal/common"
)

type stringValue string

func (v stringValue) HasValue() bool { return true }
func (v stringValue) Get(valuePtr interface{}) error {
	s, ok := valuePtr.(*string)
	if !ok {
		return errors.New("expected *string")
	}
	*s = string(v)
	return nil
}

type fakeInspector struct {
	statuses  map[string]string
	execution enumspb.WorkflowExecutionStatus
	queryErr  error
	cancelled []string
	queries   []string
}

func (f *fakeInspector) QueryWorkflow(_ context.Context, workflowID, _ string, queryType string, _ ...interface{}) (converter.EncodedValue, error) {
	f.queries = append(f.queries, queryType)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	status, ok := f.statuses[workflowID]
	if !ok {
		return nil, serviceerror.NewNotFound("workflow not found for ID: " + workflowID)
	}
	return stringValue(status), nil
}

func (f *fakeInspector) DescribeWorkflowExecution(_ context.Context, workflowID, _ string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	if _, ok := f.statuses[workflowID]; !ok {
		return nil, serviceerror.NewNotFound("workflow not found for ID: " + workflowID)
	}
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
			Execution: &commonpb.WorkflowExecution{WorkflowId: workflowID, RunId: "run-1"},
			Status:    f.execution,
		},
	}, nil
}

func (f *fakeInspector) CancelWorkflow(_ context.Context, workflowID, _ string) error {
	if _, ok := f.statuses[workflowID]; !ok {
		return serviceerror.NewNotFound("workflow not found for ID: " + workflowID)
	}
	f.cancelled = append(f.cancelled, workflowID)
	return nil
}

func TestStatusClient_Status(t *testing.T) {
	id := NewWorkflowID()
	inspector := &fakeInspector{statuses: map[string]string{id: common.StatusInventoryUpdated}}
	sc := NewStatusClient(inspector)

	status, err := sc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, common.StatusInventoryUpdated, status)
	assert.Equal(t, []string{common.StatusQuery}, inspector.queries)
}

func TestStatusClient_UnknownWorkflow(t *testing.T) {
	sc := NewStatusClient(&fakeInspector{})

	_, err := sc.Status(context.Background(), "fulfillment-unknown")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = sc.Report(context.Background(), "fulfillment-unknown")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	err = sc.Cancel(context.Background(), "fulfillment-unknown")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestStatusClient_OtherErrorsAreNotNotFound(t *testing.T) {
	id := NewWorkflowID()
	sc := NewStatusClient(&fakeInspector{
		statuses: map[string]string{id: common.StatusStarting},
		queryErr: serviceerror.NewUnavailable("frontend down"),
	})

	_, err := sc.Status(context.Background(), id)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWorkflowNotFound)
}

func TestStatusClient_ReportFailedExecution(t *testing.T) {
	id := NewWorkflowID()
	sc := NewStatusClient(&fakeInspector{
		statuses:  map[string]string{id: common.StatusConfirmationSent},
		execution: enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
	})

	report, err := sc.Report(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, report.WorkflowID)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, common.StatusConfirmationSent, report.Status)
	assert.Equal(t, "Failed", report.Execution)
	assert.Nil(t, report.ClosedAt)
}

func TestStatusClient_Cancel(t *testing.T) {
	id := NewWorkflowID()
	inspector := &fakeInspector{statuses: map[string]string{id: common.StatusStarting}}

	require.NoError(t, NewStatusClient(inspector).Cancel(context.Background(), id))
	assert.Equal(t, []string{id}, inspector.cancelled)
}

func TestStatusClient_ReportKeepsExecutionWhenQueryFails(t *testing.T) {
	id := NewWorkflowID()
	sc := NewStatusClient(&fakeInspector{
		statuses:  map[string]string{id: common.StatusConfirmationSent},
		execution: enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		queryErr:  serviceerror.NewDeadlineExceeded("no poller for query"),
	})

	report, err := sc.Report(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, report.WorkflowID)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "Failed", report.Execution)
	assert.Empty(t, report.Status)
	assert.Contains(t, report.StatusError, "no poller for query")
}
