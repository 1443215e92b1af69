package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/logging"
)

type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
}

// Tracker starts and stops delivery tracking workflows. One tracking workflow
// runs per offer workflow; its ID is derived from the offer workflow ID.
type Tracker struct {
	Client       workflowStarter
	TaskQueue    string
	Prefix       string
	PollInterval time.Duration
	MaxPolls     int
	Logger       *zap.Logger
}

func (t *Tracker) TrackingID(workflowID string) string {
	return fmt.Sprintf("%s-%s", t.Prefix, workflowID)
}

// StartTracking is idempotent: an already running tracker keeps going and
// reads the latest email request ID on its next poll.
func (t *Tracker) StartTracking(ctx context.Context, workflowID string) error {
	trackingID := t.TrackingID(workflowID)
	_, err := t.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        trackingID,
		TaskQueue: t.TaskQueue,
	}, DeliveryTrackingWorkflowName, TrackingInput{
		WorkflowID:   workflowID,
		PollInterval: t.PollInterval,
		MaxPolls:     t.MaxPolls,
	})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			t.log().Info("delivery tracking already running", zap.String("workflow_id", workflowID), zap.String("tracking_id", trackingID))
			return nil
		}
		return fmt.Errorf("start delivery tracking for %s: %w", workflowID, err)
	}
	t.log().Info("delivery tracking started", zap.String("workflow_id", workflowID), zap.String("tracking_id", trackingID))
	return nil
}

// StopTracking signals the tracker that the candidate responded. A tracker that
// already finished is not an error.
func (t *Tracker) StopTracking(ctx context.Context, workflowID string, response domain.CandidateResponse, recordedBy string) error {
	trackingID := t.TrackingID(workflowID)
	err := t.Client.SignalWorkflow(ctx, trackingID, "", CandidateResponseSignalName, CandidateResponseSignal{
		Response:   response,
		RecordedBy: recordedBy,
	})
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("signal delivery tracking for %s: %w", workflowID, err)
	}
	t.log().Info("delivery tracking signalled", zap.String("workflow_id", workflowID), zap.String("response", string(response)))
	return nil
}

func (t *Tracker) log() *zap.Logger {
	return logging.OrNop(t.Logger)
}
