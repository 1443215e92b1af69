package delivery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/logging"
)

const defaultPollTimeout = 30 * time.Second

type Store interface {
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	SaveDeliverySnapshot(ctx context.Context, status domain.DeliveryStatus) error
}

type StatusSource interface {
	PollStatus(ctx context.Context, requestID string) (domain.DeliveryStatus, error)
}

// Poller reads the delivery status of a workflow's outstanding email request.
// It never changes the workflow itself; callers decide how often to poll.
type Poller struct {
	Store   Store
	Email   StatusSource
	Logger  *zap.Logger
	Timeout time.Duration
}

func (p *Poller) Poll(ctx context.Context, workflowID string) (domain.DeliveryStatus, error) {
	wf, err := p.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.DeliveryStatus{}, err
	}
	if wf.EmailRequestID == nil || *wf.EmailRequestID == "" {
		return domain.DeliveryStatus{}, fmt.Errorf("poll delivery: %w: workflow %s has no email request", domain.ErrPrecondition, workflowID)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := p.Email.PollStatus(callCtx, *wf.EmailRequestID)
	if err != nil {
		p.log().Warn("delivery status poll failed",
			zap.String("workflow_id", workflowID),
			zap.String("email_request_id", *wf.EmailRequestID),
			zap.Bool("retryable", adapters.IsRetryable(err)),
			zap.Error(err),
		)
		return domain.DeliveryStatus{}, fmt.Errorf("poll delivery: %w", err)
	}
	status.WorkflowID = workflowID
	status.RequestID = *wf.EmailRequestID
	if status.Errors == nil {
		status.Errors = []string{}
	}

	if err := p.Store.SaveDeliverySnapshot(ctx, status); err != nil {
		p.log().Warn("delivery snapshot not saved", zap.String("workflow_id", workflowID), zap.Error(err))
	}
	p.log().Debug("delivery status polled",
		zap.String("workflow_id", workflowID),
		zap.String("status", string(status.Status)),
		zap.Int("progress_percent", status.ProgressPercent),
		zap.Int("failed_count", status.FailedCount),
	)
	return status, nil
}

func (p *Poller) log() *zap.Logger {
	return logging.OrNop(p.Logger)
}
