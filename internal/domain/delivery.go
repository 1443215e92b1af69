package domain

import "time"

type DeliveryState string

const (
	DeliveryQueued     DeliveryState = "queued"
	DeliveryProcessing DeliveryState = "processing"
	DeliveryCompleted  DeliveryState = "completed"
	DeliveryFailed     DeliveryState = "failed"
	DeliveryCancelled  DeliveryState = "cancelled"
)

// IsFinal reports whether the upstream service will not change the counters again.
func (s DeliveryState) IsFinal() bool {
	return s == DeliveryCompleted || s == DeliveryFailed || s == DeliveryCancelled
}

// DeliveryStatus is a snapshot of an email-delivery request.
type DeliveryStatus struct {
	WorkflowID      string        `json:"workflow_id,omitempty"`
	RequestID       string        `json:"request_id"`
	Status          DeliveryState `json:"status"`
	ProgressPercent int           `json:"progress_percent"`
	SentCount       int           `json:"sent_count"`
	PendingCount    int           `json:"pending_count"`
	FailedCount     int           `json:"failed_count"`
	Errors          []string      `json:"errors"`
	PolledAt        time.Time     `json:"polled_at"`
}
