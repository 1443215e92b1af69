package adapters

import (
	"context"
	"encoding/json"
	"net/http"
)

const serviceBackgroundCheck = "background-check"

type Identity struct {
	ApplicationRef string `json:"reference,omitempty"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
}

type CheckResult struct {
	RequestID string
	Summary   json.RawMessage
}

type BackgroundCheckClient struct {
	c jsonClient
}

func NewBackgroundCheckClient(cfg Config) *BackgroundCheckClient {
	return &BackgroundCheckClient{c: newJSONClient(serviceBackgroundCheck, cfg)}
}

type checkRequest struct {
	Candidate Identity `json:"candidate"`
}

type checkResponse struct {
	RequestID string          `json:"request_id"`
	Result    json.RawMessage `json:"result"`
}

// Check submits a verification request. The provider answers synchronously
// with an opaque result document.
func (b *BackgroundCheckClient) Check(ctx context.Context, identity Identity) (CheckResult, error) {
	var resp checkResponse
	if err := b.c.doJSON(ctx, "check", http.MethodPost, "/v1/checks", checkRequest{Candidate: identity}, &resp); err != nil {
		return CheckResult{}, err
	}
	if resp.RequestID == "" {
		return CheckResult{}, b.c.malformed("check", "missing request_id")
	}
	summary := resp.Result
	if len(summary) == 0 {
		summary = json.RawMessage(`{}`)
	}
	return CheckResult{RequestID: resp.RequestID, Summary: summary}, nil
}
