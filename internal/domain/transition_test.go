package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func dataFor(step Step) StepData {
	switch step {
	case StepBackgroundCheck:
		return StepData{BackgroundCheck: &BackgroundCheckResult{RequestID: "bg-1", Result: json.RawMessage(`{"clear":true}`), CompletedAt: testNow}}
	case StepGenerateOffer:
		return StepData{Offer: &OfferDetails{Position: "Engineer", Salary: "90000", Documents: OfferDocuments{PDF: "f-pdf", DOCX: "f-docx"}, GenerationRequestID: "gen-1"}}
	case StepHRApproval:
		return StepData{Approval: &Approval{Comments: "ok", ApprovedAt: testNow}}
	default:
		return StepData{Delivery: &Delivery{RequestID: "mail-1", SentAt: testNow}}
	}
}

func TestPlanAdvanceMovesOneStepAtATime(t *testing.T) {
	wf := NewWorkflow("wf-1", "app-1", "user-1", testNow)
	prev := wf.CurrentStep
	for i := 0; i < 6; i++ {
		patch, err := PlanAdvance(wf, dataFor(wf.CurrentStep), testNow.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("advance %d: unexpected error: %v", i, err)
		}
		wf = patch.Apply(wf)
		if wf.CurrentStep < prev || wf.CurrentStep > prev+1 {
			t.Fatalf("step jumped from %s to %s", prev, wf.CurrentStep)
		}
		if wf.Status != StatusInProgress {
			t.Fatalf("expected in_progress after advance, got %s", wf.Status)
		}
		prev = wf.CurrentStep
	}
	if wf.CurrentStep != StepTrackResponse {
		t.Fatalf("expected final step track_response, got %s", wf.CurrentStep)
	}
	if wf.Version != 7 {
		t.Fatalf("expected version 7 after six advances, got %d", wf.Version)
	}
}

func TestPlanAdvanceRejectsMismatchedData(t *testing.T) {
	wf := NewWorkflow("wf-1", "app-1", "user-1", testNow)

	_, err := PlanAdvance(wf, dataFor(StepHRApproval), testNow)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = PlanAdvance(wf, StepData{}, testNow)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty data, got %v", err)
	}

	both := dataFor(StepBackgroundCheck)
	both.Offer = dataFor(StepGenerateOffer).Offer
	_, err = PlanAdvance(wf, both, testNow)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for two payloads, got %v", err)
	}
}

func TestPlanAdvanceRejectsTerminalWorkflow(t *testing.T) {
	for _, status := range []WorkflowStatus{StatusCompleted, StatusRejected, StatusCancelled} {
		wf := NewWorkflow("wf-1", "app-1", "user-1", testNow)
		wf.Status = status
		_, err := PlanAdvance(wf, dataFor(wf.CurrentStep), testNow)
		if !errors.Is(err, ErrPrecondition) {
			t.Fatalf("%s: expected precondition error, got %v", status, err)
		}
	}
}

func TestCheckAction(t *testing.T) {
	tests := []struct {
		step    Step
		action  Action
		allowed bool
	}{
		{StepBackgroundCheck, ActionRunBackgroundCheck, true},
		{StepBackgroundCheck, ActionSendOffer, false},
		{StepGenerateOffer, ActionGenerateOffer, true},
		{StepHRApproval, ActionGenerateOffer, true},
		{StepSendOffer, ActionGenerateOffer, false},
		{StepHRApproval, ActionApprove, true},
		{StepGenerateOffer, ActionApprove, false},
		{StepSendOffer, ActionSendOffer, true},
		{StepTrackResponse, ActionSendOffer, true},
		{StepSendOffer, ActionRecordResponse, false},
		{StepTrackResponse, ActionRecordResponse, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.action)+"@"+tt.step.String(), func(t *testing.T) {
			wf := NewWorkflow("wf-1", "app-1", "user-1", testNow)
			wf.CurrentStep = tt.step
			wf.Status = StatusInProgress
			err := CheckAction(wf, tt.action)
			if tt.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, ErrWrongStep) {
				t.Fatalf("expected wrong step error, got %v", err)
			}
		})
	}
}

func TestPlanResponse(t *testing.T) {
	wf := NewWorkflow("wf-1", "app-1", "user-1", testNow)
	wf.CurrentStep = StepTrackResponse
	wf.Status = StatusInProgress

	cases := map[CandidateResponse]WorkflowStatus{
		ResponseAccepted:    StatusCompleted,
		ResponseRejected:    StatusRejected,
		ResponseNegotiating: StatusInProgress,
		ResponsePending:     StatusInProgress,
	}
	for response, want := range cases {
		patch, err := PlanResponse(wf, response, testNow)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", response, err)
		}
		got := patch.Apply(wf)
		if got.Status != want {
			t.Fatalf("%s: expected status %s, got %s", response, want, got.Status)
		}
		if got.CurrentStep != StepTrackResponse {
			t.Fatalf("%s: step changed to %s", response, got.CurrentStep)
		}
	}

	if _, err := PlanResponse(wf, CandidateResponse("maybe"), testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlanOfferSupersedeOnlyBeforeApproval(t *testing.T) {
	wf := NewWorkflow("wf-1", "app-1", "user-1", testNow)
	wf.Status = StatusInProgress
	wf.CurrentStep = StepHRApproval
	wf.Offer = dataFor(StepGenerateOffer).Offer

	second := OfferDetails{Position: "Engineer", Salary: "95000", Documents: OfferDocuments{PDF: "f-pdf-2"}, GenerationRequestID: "gen-2"}
	patch, err := PlanOfferSupersede(wf, second, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := patch.Apply(wf)
	if got.CurrentStep != StepHRApproval || got.Offer.Documents.PDF != "f-pdf-2" {
		t.Fatalf("unexpected supersede result: %+v", got)
	}
	if patch.Event != AuditOfferSuperseded {
		t.Fatalf("unexpected audit event %s", patch.Event)
	}

	wf.CurrentStep = StepSendOffer
	if _, err := PlanOfferSupersede(wf, second, testNow); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("expected wrong step after approval, got %v", err)
	}
}

func TestPlanCancel(t *testing.T) {
	wf := NewWorkflow("wf-1", "app-1", "user-1", testNow)
	patch, err := PlanCancel(wf, "  position closed ", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := patch.Apply(wf)
	if got.Status != StatusCancelled || *got.CancelReason != "position closed" {
		t.Fatalf("unexpected cancel result: %+v", got)
	}
	if _, err := PlanCancel(got, "again", testNow); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestPatchApplyNeverClearsPayloads(t *testing.T) {
	wf := NewWorkflow("wf-1", "app-1", "user-1", testNow)
	wf = Patch{BackgroundCheck: dataFor(StepBackgroundCheck).BackgroundCheck, UpdatedAt: testNow}.Apply(wf)
	before := wf.Clone()

	after := Patch{UpdatedAt: testNow.Add(time.Hour)}.Apply(wf)
	if !reflect.DeepEqual(before.BackgroundCheck, after.BackgroundCheck) {
		t.Fatalf("background check changed by empty patch")
	}
	if after.Version != before.Version+1 {
		t.Fatalf("expected version bump")
	}
}

func TestStepTextRoundTrip(t *testing.T) {
	raw, err := json.Marshal(struct {
		Step Step `json:"step"`
	}{Step: StepHRApproval})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"step":"hr_approval"}` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	var decoded struct {
		Step Step `json:"step"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Step != StepHRApproval {
		t.Fatalf("decoded %s", decoded.Step)
	}
	if _, err := ParseStep("offer"); err == nil {
		t.Fatalf("expected error for unknown step")
	}
}
