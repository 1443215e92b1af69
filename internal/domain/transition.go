package domain

import (
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionRunBackgroundCheck Action = "run_background_check"
	ActionGenerateOffer      Action = "generate_offer"
	ActionApprove            Action = "approve"
	ActionSendOffer          Action = "send_offer"
	ActionRecordResponse     Action = "record_response"
)

// actionSteps lists the steps at which each action may run. GenerateOffer and
// SendOffer are also accepted at the step right after their own, where they
// supersede the previous payload instead of advancing.
var actionSteps = map[Action][]Step{
	ActionRunBackgroundCheck: {StepBackgroundCheck},
	ActionGenerateOffer:      {StepGenerateOffer, StepHRApproval},
	ActionApprove:            {StepHRApproval},
	ActionSendOffer:          {StepSendOffer, StepTrackResponse},
	ActionRecordResponse:     {StepTrackResponse},
}

// CheckAction rejects an action that does not match the workflow's state.
func CheckAction(wf Workflow, action Action) error {
	if wf.Status.IsTerminal() {
		return fmt.Errorf("%w: %s on %s workflow", ErrTerminal, action, wf.Status)
	}
	allowed, ok := actionSteps[action]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", ErrPrecondition, action)
	}
	for _, step := range allowed {
		if wf.CurrentStep == step {
			return nil
		}
	}
	return wrongStep(string(action), allowed, wf.CurrentStep)
}

// PlanAdvance computes the patch that merges data into the payload owned by the
// current step and moves the workflow forward by one step when one exists.
func PlanAdvance(wf Workflow, data StepData, now time.Time) (Patch, error) {
	if wf.Status.IsTerminal() {
		return Patch{}, fmt.Errorf("%w: advance on %s workflow", ErrTerminal, wf.Status)
	}
	if err := checkStepData(wf.CurrentStep, data); err != nil {
		return Patch{}, err
	}

	patch := Patch{UpdatedAt: now, Event: AuditAdvanced}
	switch {
	case data.BackgroundCheck != nil:
		patch.BackgroundCheck = data.BackgroundCheck
	case data.Offer != nil:
		patch.Offer = data.Offer
	case data.Approval != nil:
		patch.HRApprovalComments = &data.Approval.Comments
		patch.ApprovedAt = &data.Approval.ApprovedAt
	case data.Delivery != nil:
		patch.EmailRequestID = &data.Delivery.RequestID
		patch.SentAt = &data.Delivery.SentAt
	}

	if wf.Status == StatusPending {
		status := StatusInProgress
		patch.Status = &status
	}
	next, ok := wf.CurrentStep.Next()
	if ok {
		patch.CurrentStep = &next
	}
	patch.Detail = map[string]any{"from": wf.CurrentStep.String(), "to": next.String()}
	return patch, nil
}

func checkStepData(step Step, data StepData) error {
	set := make([]string, 0, 1)
	if data.BackgroundCheck != nil {
		set = append(set, "background_check")
	}
	if data.Offer != nil {
		set = append(set, "offer")
	}
	if data.Approval != nil {
		set = append(set, "approval")
	}
	if data.Delivery != nil {
		set = append(set, "delivery")
	}
	if len(set) > 1 {
		return validationf("step data sets %s, expected one payload", strings.Join(set, ", "))
	}

	var want string
	switch step {
	case StepBackgroundCheck:
		want = "background_check"
	case StepGenerateOffer:
		want = "offer"
	case StepHRApproval:
		want = "approval"
	case StepSendOffer:
		want = "delivery"
	case StepTrackResponse:
		// Final step: nothing left to advance to, a delivery record may still be merged.
		if len(set) == 0 || set[0] == "delivery" {
			return nil
		}
		return validationf("step data %s does not belong to step %s", set[0], step)
	default:
		return validationf("workflow has invalid step %d", int(step))
	}
	if len(set) == 0 {
		return validationf("step %s requires %s data", step, want)
	}
	if set[0] != want {
		return validationf("step data %s does not belong to step %s", set[0], step)
	}
	if data.BackgroundCheck != nil && data.BackgroundCheck.RequestID == "" {
		return validationf("background check request id is required")
	}
	if data.Offer != nil && data.Offer.Documents.PDF == "" {
		return validationf("offer pdf reference is required")
	}
	if data.Delivery != nil && data.Delivery.RequestID == "" {
		return validationf("delivery request id is required")
	}
	return nil
}

// PlanOfferSupersede replaces a generated offer that has not been approved yet.
func PlanOfferSupersede(wf Workflow, offer OfferDetails, now time.Time) (Patch, error) {
	if err := CheckAction(wf, ActionGenerateOffer); err != nil {
		return Patch{}, err
	}
	if wf.CurrentStep != StepHRApproval {
		return Patch{}, wrongStep("offer regeneration", []Step{StepHRApproval}, wf.CurrentStep)
	}
	if offer.Documents.PDF == "" {
		return Patch{}, validationf("offer pdf reference is required")
	}
	detail := map[string]any{"generation_request_id": offer.GenerationRequestID}
	if wf.Offer != nil {
		detail["superseded_request_id"] = wf.Offer.GenerationRequestID
	}
	return Patch{Offer: &offer, UpdatedAt: now, Event: AuditOfferSuperseded, Detail: detail}, nil
}

// PlanDeliverySupersede records a re-sent offer while the response is outstanding.
func PlanDeliverySupersede(wf Workflow, delivery Delivery, now time.Time) (Patch, error) {
	if err := CheckAction(wf, ActionSendOffer); err != nil {
		return Patch{}, err
	}
	if wf.CurrentStep != StepTrackResponse {
		return Patch{}, wrongStep("offer re-send", []Step{StepTrackResponse}, wf.CurrentStep)
	}
	if delivery.RequestID == "" {
		return Patch{}, validationf("delivery request id is required")
	}
	detail := map[string]any{"email_request_id": delivery.RequestID}
	if wf.EmailRequestID != nil {
		detail["superseded_request_id"] = *wf.EmailRequestID
	}
	return Patch{
		EmailRequestID: &delivery.RequestID,
		SentAt:         &delivery.SentAt,
		UpdatedAt:      now,
		Event:          AuditDeliverySuperseded,
		Detail:         detail,
	}, nil
}

// PlanResponse records the candidate's answer and the status it implies.
func PlanResponse(wf Workflow, response CandidateResponse, now time.Time) (Patch, error) {
	if !response.IsValid() {
		return Patch{}, validationf("unknown candidate response %q", response)
	}
	if err := CheckAction(wf, ActionRecordResponse); err != nil {
		return Patch{}, err
	}
	status := response.ResultingStatus()
	return Patch{
		CandidateResponse: &response,
		Status:            &status,
		UpdatedAt:         now,
		Event:             AuditResponseRecorded,
		Detail:            map[string]any{"response": response, "status": status},
	}, nil
}

// PlanCancel moves any non-terminal workflow to Cancelled.
func PlanCancel(wf Workflow, reason string, now time.Time) (Patch, error) {
	if wf.Status.IsTerminal() {
		return Patch{}, fmt.Errorf("%w: cancel on %s workflow", ErrTerminal, wf.Status)
	}
	status := StatusCancelled
	reason = strings.TrimSpace(reason)
	return Patch{
		Status:       &status,
		CancelReason: &reason,
		UpdatedAt:    now,
		Event:        AuditCancelled,
		Detail:       map[string]any{"reason": reason, "step": wf.CurrentStep.String()},
	}, nil
}

// NewWorkflow returns the initial state of a freshly created workflow.
func NewWorkflow(id, applicationRef, actorID string, now time.Time) Workflow {
	return Workflow{
		ID:             id,
		ApplicationRef: applicationRef,
		CurrentStep:    StepBackgroundCheck,
		Status:         StatusPending,
		CreatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
}
