package temporal

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"offer-workflow-orchestrator/internal/domain"
)

const (
	DeliveryTrackingWorkflowName = "DeliveryTrackingWorkflow"

	defaultPollInterval = 5 * time.Minute
	defaultMaxPolls     = 288
)

type TrackingInput struct {
	WorkflowID   string
	PollInterval time.Duration
	MaxPolls     int
}

type TrackingOutcome string

const (
	TrackingDelivered TrackingOutcome = "delivery_final"
	TrackingResponded TrackingOutcome = "candidate_responded"
	TrackingExhausted TrackingOutcome = "poll_budget_exhausted"
)

type TrackingResult struct {
	WorkflowID string
	Outcome    TrackingOutcome
	Polls      int
	LastStatus domain.DeliveryStatus
	Response   domain.CandidateResponse
}

// DeliveryTrackingWorkflow polls the delivery status of one sent offer on a
// durable timer. It ends when the snapshot is final, when a candidate response
// is signalled, or after MaxPolls polls. It never changes the offer workflow.
func DeliveryTrackingWorkflow(ctx workflow.Context, input TrackingInput) (TrackingResult, error) {
	interval := input.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxPolls := input.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}

	ctxPoll := mustActivityContext(ctx, ActivityPolicyPollDelivery)
	signalChan := workflow.GetSignalChannel(ctx, CandidateResponseSignalName)
	logger := workflow.GetLogger(ctx)

	result := TrackingResult{WorkflowID: input.WorkflowID}
	for {
		var signal CandidateResponseSignal
		if signalChan.ReceiveAsync(&signal) {
			return responded(result, signal), nil
		}

		var polled PollDeliveryOutput
		if err := workflow.ExecuteActivity(ctxPoll, (*Activities).PollDeliveryActivity, PollDeliveryInput{
			WorkflowID: input.WorkflowID,
		}).Get(ctx, &polled); err != nil {
			return result, err
		}
		result.Polls++
		result.LastStatus = polled.Status

		if polled.Status.Status.IsFinal() {
			result.Outcome = TrackingDelivered
			logger.Info("delivery reached a final state", "workflow_id", input.WorkflowID, "status", polled.Status.Status, "polls", result.Polls)
			return result, nil
		}
		if result.Polls >= maxPolls {
			result.Outcome = TrackingExhausted
			logger.Warn("delivery poll budget exhausted", "workflow_id", input.WorkflowID, "polls", result.Polls)
			return result, nil
		}

		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		received := false
		selector := workflow.NewSelector(ctx)
		selector.AddFuture(workflow.NewTimer(timerCtx, interval), func(workflow.Future) {})
		selector.AddReceive(signalChan, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &signal)
			received = true
		})
		selector.Select(ctx)
		cancelTimer()

		if received {
			return responded(result, signal), nil
		}
	}
}

func responded(result TrackingResult, signal CandidateResponseSignal) TrackingResult {
	result.Outcome = TrackingResponded
	result.Response = signal.Response
	return result
}
