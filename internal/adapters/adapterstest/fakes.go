// Package adapterstest provides in-memory stand-ins for the external services,
// for use in tests across packages.
package adapterstest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/domain"
)

// hang blocks until ctx ends and reports it the way the HTTP client would.
func hang(ctx context.Context, service, op string) error {
	<-ctx.Done()
	return &adapters.Error{Service: service, Op: op, Retryable: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: ctx.Err()}
}

type BackgroundCheck struct {
	mu    sync.Mutex
	Calls []adapters.Identity
	Err   error
	Hang  bool
}

func (f *BackgroundCheck) Check(ctx context.Context, identity adapters.Identity) (adapters.CheckResult, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, identity)
	n, err, hangs := len(f.Calls), f.Err, f.Hang
	f.mu.Unlock()

	if hangs {
		return adapters.CheckResult{}, hang(ctx, "background-check", "check")
	}
	if err != nil {
		return adapters.CheckResult{}, err
	}
	return adapters.CheckResult{
		RequestID: fmt.Sprintf("bg-%d", n),
		Summary:   []byte(`{"status":"clear"}`),
	}, nil
}

func (f *BackgroundCheck) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// Documents keeps every generated file so earlier references stay
// downloadable after a regeneration.
type Documents struct {
	mu        sync.Mutex
	files     map[string][]byte
	Requests  []adapters.GenerateRequest
	Downloads int
	Err       error
}

func NewDocuments() *Documents {
	return &Documents{files: make(map[string][]byte)}
}

func (f *Documents) Generate(_ context.Context, req adapters.GenerateRequest) (adapters.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return adapters.GenerateResult{}, f.Err
	}
	f.Requests = append(f.Requests, req)
	n := len(f.Requests)

	out := adapters.GenerateResult{RequestID: fmt.Sprintf("gen-%d", n)}
	for _, format := range req.Formats {
		ref := fmt.Sprintf("file-%d.%s", n, format)
		f.files[ref] = []byte(fmt.Sprintf("%s document %d for %v at %v", format, n, req.Data["candidate_name"], req.Data["salary"]))
		switch format {
		case domain.FormatPDF:
			out.Files.PDF = ref
		case domain.FormatDOCX:
			out.Files.DOCX = ref
		}
	}
	return out, nil
}

func (f *Documents) Download(_ context.Context, fileRef string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Downloads++
	content, ok := f.files[fileRef]
	if !ok {
		return nil, &adapters.Error{Service: "document-generation", Op: "download", StatusCode: http.StatusNotFound, Err: errors.New("file not found")}
	}
	return append([]byte(nil), content...), nil
}

// Hash returns the sha256 of a stored file, for round-trip assertions.
func (f *Documents) Hash(fileRef string) [32]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sha256.Sum256(f.files[fileRef])
}

func (f *Documents) DownloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Downloads
}

// Mailer accepts messages and reports whatever status the test sets for them.
type Mailer struct {
	mu       sync.Mutex
	Sent     []adapters.SendRequest
	statuses map[string]domain.DeliveryStatus
	polls    map[string]int
	Err      error
	PollErr  error
}

func NewMailer() *Mailer {
	return &Mailer{statuses: make(map[string]domain.DeliveryStatus), polls: make(map[string]int)}
}

func (f *Mailer) Send(_ context.Context, req adapters.SendRequest) (adapters.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return adapters.SendResult{}, f.Err
	}
	f.Sent = append(f.Sent, req)
	id := fmt.Sprintf("mail-%d", len(f.Sent))
	f.statuses[id] = domain.DeliveryStatus{RequestID: id, Status: domain.DeliveryQueued, PendingCount: len(req.Recipients), Errors: []string{}}
	return adapters.SendResult{RequestID: id}, nil
}

func (f *Mailer) PollStatus(_ context.Context, requestID string) (domain.DeliveryStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[requestID]++
	if f.PollErr != nil {
		return domain.DeliveryStatus{}, f.PollErr
	}
	st, ok := f.statuses[requestID]
	if !ok {
		return domain.DeliveryStatus{}, &adapters.Error{Service: "email-delivery", Op: "poll_status", StatusCode: http.StatusNotFound, Err: errors.New("unknown request")}
	}
	st.Errors = append([]string{}, st.Errors...)
	st.PolledAt = time.Now().UTC()
	return st, nil
}

func (f *Mailer) SetStatus(requestID string, st domain.DeliveryStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st.RequestID = requestID
	f.statuses[requestID] = st
}

func (f *Mailer) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (f *Mailer) LastSent() adapters.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return adapters.SendRequest{}
	}
	return f.Sent[len(f.Sent)-1]
}

func (f *Mailer) PollCount(requestID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[requestID]
}

type Blobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	Puts    int
}

func NewBlobs() *Blobs {
	return &Blobs{objects: make(map[string][]byte)}
}

func (f *Blobs) PutDocument(_ context.Context, objectKey string, content []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Puts++
	f.objects[objectKey] = append([]byte(nil), content...)
	return objectKey, nil
}

func (f *Blobs) GetDocument(_ context.Context, objectKey string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", domain.ErrNotFound, objectKey)
	}
	return append([]byte(nil), content...), nil
}

func (f *Blobs) Has(objectKey string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[objectKey]
	return ok
}
