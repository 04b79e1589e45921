package app

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cecilphillip/shadowshop/internal/common"
	"github.com/cecilphillip/shadowshop/internal/config"
)

// Fulfillment runs the three fulfillment steps of one order in sequence.
type Fulfillment struct {
	Policy config.ActivityConfig
}

func NewFulfillment(policy config.ActivityConfig) *Fulfillment {
	return &Fulfillment{Policy: policy}
}

type step struct {
	activity string
	reached  string
}

var steps = []step{
	{common.ActivitySendOrderConfirmation, common.StatusConfirmationSent},
	{common.ActivityUpdateInventory, common.StatusInventoryUpdated},
	{common.ActivityScheduleDelivery, common.StatusDeliveryScheduled},
}

// Run is the fulfillment workflow. A step declining stops the workflow at the
// last reached status without error; a step exhausting its retries fails it.
func (f *Fulfillment) Run(ctx workflow.Context, order common.FulfillOrder) (*common.FulfillmentResult, error) {
	status := common.StatusStarting
	err := workflow.SetQueryHandler(ctx, common.StatusQuery, func() (string, error) {
		return status, nil
	})
	if err != nil {
		return nil, err
	}

	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, f.activityOptions())

	for _, s := range steps {
		var res common.ActivityResult
		if err := workflow.ExecuteActivity(ctx, s.activity, order).Get(ctx, &res); err != nil {
			return nil, err
		}
		if !res.Success {
			logger.Warn("Fulfillment stopped", "SessionId", order.SessionID, "Activity", s.activity, "Status", status, "Reason", res.Reason)
			return &common.FulfillmentResult{
				SessionID: order.SessionID,
				Status:    status,
				StoppedAt: s.activity,
				Reason:    res.Reason,
			}, nil
		}
		status = s.reached
		logger.Info("Fulfillment advanced", "SessionId", order.SessionID, "Status", status)
	}

	return &common.FulfillmentResult{
		SessionID: order.SessionID,
		Status:    status,
		Completed: true,
	}, nil
}

func (f *Fulfillment) activityOptions() workflow.ActivityOptions {
	p := f.Policy
	return workflow.ActivityOptions{
		StartToCloseTimeout: p.StartToCloseTimeout,
		HeartbeatTimeout:    p.HeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    p.InitialInterval,
			BackoffCoefficient: p.BackoffCoefficient,
			MaximumInterval:    p.MaximumInterval,
			MaximumAttempts:    p.MaximumAttempts,
		},
	}
}

// Registry is where workflows and activities are registered by name.
// worker.Worker and the Temporal test environments satisfy it.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register binds the fulfillment workflow and its activities to their names.
func Register(r Registry, wf *Fulfillment, acts *FulfillmentActivities) {
	r.RegisterWorkflowWithOptions(wf.Run, workflow.RegisterOptions{Name: common.WorkflowFulfillment})
	r.RegisterActivityWithOptions(acts.SendOrderConfirmation, activity.RegisterOptions{Name: common.ActivitySendOrderConfirmation})
	r.RegisterActivityWithOptions(acts.UpdateInventory, activity.RegisterOptions{Name: common.ActivityUpdateInventory})
	r.RegisterActivityWithOptions(acts.ScheduleDelivery, activity.RegisterOptions{Name: common.ActivityScheduleDelivery})
}
