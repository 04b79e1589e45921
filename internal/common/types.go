package common

// TaskQueue is the Temporal task queue fulfillment work is routed on.
const TaskQueue = "checkout"

// CheckoutCompletedQueue is the queue checkout-completed events arrive on.
const CheckoutCompletedQueue = "checkout.session.completed"

// WorkflowIDPrefix prefixes every fulfillment workflow ID.
const WorkflowIDPrefix = "fulfillment-"

// Registered names. Workflows and activities are started by these names,
// never by reflecting over function values.
const (
	WorkflowFulfillment = "FulfillmentWorkflow"

	ActivitySendOrderConfirmation = "SendOrderConfirmation"
	ActivityUpdateInventory       = "UpdateInventory"
	ActivityScheduleDelivery      = "ScheduleDelivery"
)

// StatusQuery is the query type serving the workflow's current status.
const StatusQuery = "status"

// Workflow statuses, in the only order they can be reached.
const (
	StatusStarting          = "Starting workflow"
	StatusConfirmationSent  = "Order confirmation sent"
	StatusInventoryUpdated  = "Inventory updated"
	StatusDeliveryScheduled = "Delivery scheduled"
)

// FulfillOrder identifies one completed checkout to fulfill.
type FulfillOrder struct {
	SessionID string `json:"SessionId"`
}

// ActivityResult is the business outcome of one fulfillment step.
// Success=false is not an error: the workflow stops advancing.
type ActivityResult struct {
	Success bool
	Reason  string
}

// Succeeded is the result of a step that completed.
func Succeeded() ActivityResult {
	return ActivityResult{Success: true}
}

// Declined is the result of a step that deliberately did not proceed.
func Declined(reason string) ActivityResult {
	return ActivityResult{Reason: reason}
}

// FulfillmentResult is returned by the workflow when it stops.
type FulfillmentResult struct {
	SessionID string
	Status    string
	Completed bool
	// StoppedAt names the activity that declined, empty when Completed.
	StoppedAt string
	Reason    string
}
