package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"offer-workflow-orchestrator/internal/domain"
)

const serviceEmailDelivery = "email-delivery"

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content_base64"`
}

type SendRequest struct {
	SenderName  string
	Recipients  []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

type SendResult struct {
	RequestID string
}

type EmailClient struct {
	c   jsonClient
	now func() time.Time
}

func NewEmailClient(cfg Config) *EmailClient {
	return &EmailClient{c: newJSONClient(serviceEmailDelivery, cfg), now: time.Now}
}

type sendRequest struct {
	SenderName  string       `json:"sender_name,omitempty"`
	Recipients  []string     `json:"recipients"`
	Subject     string       `json:"subject"`
	HTMLBody    string       `json:"html_body"`
	Attachments []Attachment `json:"attachments"`
}

type sendResponse struct {
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	Status          string   `json:"status"`
	ProgressPercent int      `json:"progress_percent"`
	SentCount       int      `json:"sent_count"`
	PendingCount    int      `json:"pending_count"`
	FailedCount     int      `json:"failed_count"`
	Errors          []string `json:"errors"`
}

// Send queues a message. Delivery happens asynchronously; use PollStatus with
// the returned request id to observe it.
func (e *EmailClient) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if len(req.Recipients) == 0 {
		return SendResult{}, &Error{Service: serviceEmailDelivery, Op: "send", Err: errors.New("no recipients")}
	}
	var resp sendResponse
	payload := sendRequest{
		SenderName:  req.SenderName,
		Recipients:  req.Recipients,
		Subject:     req.Subject,
		HTMLBody:    req.HTMLBody,
		Attachments: req.Attachments,
	}
	if err := e.c.doJSON(ctx, "send", http.MethodPost, "/v1/messages", payload, &resp); err != nil {
		return SendResult{}, err
	}
	if resp.RequestID == "" {
		return SendResult{}, e.c.malformed("send", "missing request_id")
	}
	return SendResult{RequestID: resp.RequestID}, nil
}

func (e *EmailClient) PollStatus(ctx context.Context, requestID string) (domain.DeliveryStatus, error) {
	if requestID == "" {
		return domain.DeliveryStatus{}, &Error{Service: serviceEmailDelivery, Op: "poll_status", Err: errors.New("request id is empty")}
	}
	var resp statusResponse
	if err := e.c.doJSON(ctx, "poll_status", http.MethodGet, "/v1/messages/"+url.PathEscape(requestID), nil, &resp); err != nil {
		return domain.DeliveryStatus{}, err
	}
	state := domain.DeliveryState(resp.Status)
	switch state {
	case domain.DeliveryQueued, domain.DeliveryProcessing, domain.DeliveryCompleted, domain.DeliveryFailed, domain.DeliveryCancelled:
	default:
		return domain.DeliveryStatus{}, e.c.malformed("poll_status", "unknown status %q", resp.Status)
	}
	errs := resp.Errors
	if errs == nil {
		errs = []string{}
	}
	return domain.DeliveryStatus{
		RequestID:       requestID,
		Status:          state,
		ProgressPercent: resp.ProgressPercent,
		SentCount:       resp.SentCount,
		PendingCount:    resp.PendingCount,
		FailedCount:     resp.FailedCount,
		Errors:          errs,
		PolledAt:        e.now().UTC(),
	}, nil
}
