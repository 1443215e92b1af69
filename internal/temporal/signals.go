package temporal

import "offer-workflow-orchestrator/internal/domain"

const CandidateResponseSignalName = "candidateResponse"

// CandidateResponseSignal tells a tracking workflow that the candidate has
// answered, so further delivery polling is pointless.
type CandidateResponseSignal struct {
	Response   domain.CandidateResponse `json:"response"`
	RecordedBy string                   `json:"recorded_by,omitempty"`
}
