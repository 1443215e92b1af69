package domain

import (
	"encoding/json"
	"time"
)

type BackgroundCheckResult struct {
	RequestID   string          `json:"request_id"`
	Result      json.RawMessage `json:"result,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

type OfferDocuments struct {
	PDF  string `json:"pdf,omitempty"`
	DOCX string `json:"docx,omitempty"`
}

type OfferDetails struct {
	Position            string         `json:"position"`
	Salary              string         `json:"salary"`
	Documents           OfferDocuments `json:"documents"`
	GenerationRequestID string         `json:"generation_request_id"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

type Approval struct {
	Comments   string    `json:"comments"`
	ApprovedAt time.Time `json:"approved_at"`
}

type Delivery struct {
	RequestID string    `json:"request_id"`
	SentAt    time.Time `json:"sent_at"`
}

// Workflow is the persisted state of one candidate's offer process.
// Optional payload fields are only ever set or superseded, never cleared.
type Workflow struct {
	ID                 string                 `json:"id"`
	ApplicationRef     string                 `json:"application_ref"`
	CurrentStep        Step                   `json:"current_step"`
	Status             WorkflowStatus         `json:"status"`
	BackgroundCheck    *BackgroundCheckResult `json:"background_check_result,omitempty"`
	Offer              *OfferDetails          `json:"offer_details,omitempty"`
	HRApprovalComments *string                `json:"hr_approval_comments,omitempty"`
	ApprovedAt         *time.Time             `json:"approved_at,omitempty"`
	EmailRequestID     *string                `json:"email_request_id,omitempty"`
	SentAt             *time.Time             `json:"sent_at,omitempty"`
	CandidateResponse  *CandidateResponse     `json:"candidate_response,omitempty"`
	CancelReason       *string                `json:"cancel_reason,omitempty"`
	CreatedBy          string                 `json:"created_by"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
	Version            int64                  `json:"version"`
}

// StepData is the payload merged into a workflow by Advance. Exactly the
// field owned by the workflow's current step must be set.
type StepData struct {
	BackgroundCheck *BackgroundCheckResult
	Offer           *OfferDetails
	Approval        *Approval
	Delivery        *Delivery
}

// Patch is a set of field assignments applied by a compare-and-swap update.
// Nil fields are left untouched; there is no way to clear a field.
type Patch struct {
	CurrentStep        *Step
	Status             *WorkflowStatus
	BackgroundCheck    *BackgroundCheckResult
	Offer              *OfferDetails
	HRApprovalComments *string
	ApprovedAt         *time.Time
	EmailRequestID     *string
	SentAt             *time.Time
	CandidateResponse  *CandidateResponse
	CancelReason       *string
	UpdatedAt          time.Time

	Event  AuditEvent
	Actor  string
	Detail map[string]any
}

// Apply returns a copy of wf with the patch applied and the version bumped.
func (p Patch) Apply(wf Workflow) Workflow {
	out := wf.Clone()
	if p.CurrentStep != nil {
		out.CurrentStep = *p.CurrentStep
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.BackgroundCheck != nil {
		v := *p.BackgroundCheck
		v.Result = append(json.RawMessage(nil), p.BackgroundCheck.Result...)
		out.BackgroundCheck = &v
	}
	if p.Offer != nil {
		v := *p.Offer
		out.Offer = &v
	}
	if p.HRApprovalComments != nil {
		out.HRApprovalComments = ptr(*p.HRApprovalComments)
	}
	if p.ApprovedAt != nil {
		out.ApprovedAt = ptr(*p.ApprovedAt)
	}
	if p.EmailRequestID != nil {
		out.EmailRequestID = ptr(*p.EmailRequestID)
	}
	if p.SentAt != nil {
		out.SentAt = ptr(*p.SentAt)
	}
	if p.CandidateResponse != nil {
		out.CandidateResponse = ptr(*p.CandidateResponse)
	}
	if p.CancelReason != nil {
		out.CancelReason = ptr(*p.CancelReason)
	}
	out.UpdatedAt = p.UpdatedAt
	out.Version = wf.Version + 1
	return out
}

// Clone deep-copies the optional payload fields.
func (w Workflow) Clone() Workflow {
	out := w
	if w.BackgroundCheck != nil {
		v := *w.BackgroundCheck
		v.Result = append(json.RawMessage(nil), w.BackgroundCheck.Result...)
		out.BackgroundCheck = &v
	}
	if w.Offer != nil {
		v := *w.Offer
		out.Offer = &v
	}
	if w.HRApprovalComments != nil {
		out.HRApprovalComments = ptr(*w.HRApprovalComments)
	}
	if w.ApprovedAt != nil {
		out.ApprovedAt = ptr(*w.ApprovedAt)
	}
	if w.EmailRequestID != nil {
		out.EmailRequestID = ptr(*w.EmailRequestID)
	}
	if w.SentAt != nil {
		out.SentAt = ptr(*w.SentAt)
	}
	if w.CandidateResponse != nil {
		out.CandidateResponse = ptr(*w.CandidateResponse)
	}
	if w.CancelReason != nil {
		out.CancelReason = ptr(*w.CancelReason)
	}
	return out
}

// ApplicationProfile is the read-only view of a job application owned by the
// recruitment CRUD backend.
type ApplicationProfile struct {
	ApplicationRef       string `json:"application_ref"`
	JobID                string `json:"job_id"`
	JobTitle             string `json:"job_title"`
	JobOwnerID           string `json:"job_owner_id"`
	CompanyName          string `json:"company_name,omitempty"`
	CandidateName        string `json:"candidate_name"`
	CandidateEmail       string `json:"candidate_email"`
	CandidatePhone       string `json:"candidate_phone,omitempty"`
	CandidateDateOfBirth string `json:"candidate_date_of_birth,omitempty"`
	ProposedSalary       string `json:"proposed_salary,omitempty"`
}

type AuditEntry struct {
	WorkflowID string          `json:"workflow_id"`
	Event      AuditEvent      `json:"event"`
	Actor      string          `json:"actor,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type OfferTemplate struct {
	Name         string    `json:"name"`
	ObjectKey    string    `json:"object_key"`
	RegisteredAt time.Time `json:"registered_at"`
}

func ptr[T any](v T) *T {
	return &v
}
