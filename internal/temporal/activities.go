package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/domain"
)

type DeliveryPoller interface {
	Poll(ctx context.Context, workflowID string) (domain.DeliveryStatus, error)
}

type Activities struct {
	Poller DeliveryPoller
}

type PollDeliveryInput struct {
	WorkflowID string
}

type PollDeliveryOutput struct {
	Status domain.DeliveryStatus
}

func (a *Activities) PollDeliveryActivity(ctx context.Context, input PollDeliveryInput) (PollDeliveryOutput, error) {
	status, err := a.Poller.Poll(ctx, input.WorkflowID)
	if err != nil {
		return PollDeliveryOutput{}, activityError(err)
	}
	return PollDeliveryOutput{Status: status}, nil
}

// activityError stops Temporal from retrying errors another attempt cannot fix.
// Retryable adapter failures and unclassified errors fall through to the
// activity retry policy.
func activityError(err error) error {
	switch {
	case errors.Is(err, domain.ErrPrecondition), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
		return temporal.NewNonRetryableApplicationError(err.Error(), domain.ErrorKind(err), err)
	case errors.Is(err, domain.ErrAdapter) && !adapters.IsRetryable(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), domain.ErrorKind(err), err)
	default:
		return err
	}
}
