package domain

import "fmt"

// Step is a stage of the offer workflow. Steps are strictly ordered 1..5.
type Step int

const (
	StepBackgroundCheck Step = iota + 1
	StepGenerateOffer
	StepHRApproval
	StepSendOffer
	StepTrackResponse
)

var stepNames = map[Step]string{
	StepBackgroundCheck: "background_check",
	StepGenerateOffer:   "generate_offer",
	StepHRApproval:      "hr_approval",
	StepSendOffer:       "send_offer",
	StepTrackResponse:   "track_response",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) IsValid() bool {
	return s >= StepBackgroundCheck && s <= StepTrackResponse
}

// Next returns the following step, or false when s is the last step.
func (s Step) Next() (Step, bool) {
	if !s.IsValid() || s == StepTrackResponse {
		return s, false
	}
	return s + 1, true
}

func (s Step) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid step %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseStep(v string) (Step, error) {
	for step, name := range stepNames {
		if name == v {
			return step, nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", v)
}

type WorkflowStatus string

const (
	StatusPending    WorkflowStatus = "pending"
	StatusInProgress WorkflowStatus = "in_progress"
	StatusCompleted  WorkflowStatus = "completed"
	StatusRejected   WorkflowStatus = "rejected"
	StatusCancelled  WorkflowStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s WorkflowStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

type CandidateResponse string

const (
	ResponseAccepted    CandidateResponse = "accepted"
	ResponseRejected    CandidateResponse = "rejected"
	ResponseNegotiating CandidateResponse = "negotiating"
	ResponsePending     CandidateResponse = "pending"
)

func (r CandidateResponse) IsValid() bool {
	switch r {
	case ResponseAccepted, ResponseRejected, ResponseNegotiating, ResponsePending:
		return true
	default:
		return false
	}
}

// ResultingStatus is the workflow status implied by a candidate response.
func (r CandidateResponse) ResultingStatus() WorkflowStatus {
	switch r {
	case ResponseAccepted:
		return StatusCompleted
	case ResponseRejected:
		return StatusRejected
	default:
		return StatusInProgress
	}
}

type AuditEvent string

const (
	AuditCreated            AuditEvent = "created"
	AuditAdvanced           AuditEvent = "advanced"
	AuditOfferSuperseded    AuditEvent = "offer_superseded"
	AuditDeliverySuperseded AuditEvent = "delivery_superseded"
	AuditResponseRecorded   AuditEvent = "response_recorded"
	AuditCancelled          AuditEvent = "cancelled"
)

type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatDOCX DocumentFormat = "docx"
)
