package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/logging"
	"offer-workflow-orchestrator/internal/orchestrator"
)

const (
	ActorHeader = "X-Actor-ID"

	defaultMaxTemplateBytes = 5 << 20
	readTimeout             = 5 * time.Second
)

type Service interface {
	Create(ctx context.Context, applicationRef, actorID string) (domain.Workflow, error)
	Get(ctx context.Context, workflowID string) (domain.Workflow, error)
	GetByApplication(ctx context.Context, applicationRef string) (domain.Workflow, error)
	RunBackgroundCheck(ctx context.Context, workflowID string) (domain.Workflow, error)
	GenerateOffer(ctx context.Context, workflowID string, in orchestrator.GenerateOfferInput) (orchestrator.Outcome, error)
	Approve(ctx context.Context, workflowID, comments string) (domain.Workflow, error)
	SendOffer(ctx context.Context, workflowID string) (orchestrator.Outcome, error)
	RecordResponse(ctx context.Context, workflowID string, response domain.CandidateResponse) (domain.Workflow, error)
	Cancel(ctx context.Context, workflowID, reason string) (domain.Workflow, error)
}

type DeliveryPoller interface {
	Poll(ctx context.Context, workflowID string) (domain.DeliveryStatus, error)
}

// Tracker starts and stops background delivery tracking. Optional.
type Tracker interface {
	StartTracking(ctx context.Context, workflowID string) error
	StopTracking(ctx context.Context, workflowID string, response domain.CandidateResponse, recordedBy string) error
}

type Store interface {
	Ping(ctx context.Context) error
	ListTemplates(ctx context.Context) ([]domain.OfferTemplate, error)
}

type Handler struct {
	service          Service
	store            Store
	poller           DeliveryPoller
	tracker          Tracker
	maxTemplateBytes int64
	logger           *zap.Logger
}

type Options struct {
	Tracker          Tracker
	MaxTemplateBytes int64
	Logger           *zap.Logger
}

func NewHandler(service Service, store Store, poller DeliveryPoller, opts Options) *Handler {
	maxBytes := opts.MaxTemplateBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxTemplateBytes
	}
	return &Handler{
		service:          service,
		store:            store,
		poller:           poller,
		tracker:          opts.Tracker,
		maxTemplateBytes: maxBytes,
		logger:           logging.OrNop(opts.Logger),
	}
}

type createRequest struct {
	ApplicationRef string `json:"application_ref"`
}

type generateOfferRequest struct {
	TemplateRef    string         `json:"template_ref,omitempty"`
	TemplateBase64 string         `json:"template_base64,omitempty"`
	CandidateData  map[string]any `json:"candidate_data,omitempty"`
	OverrideSalary *string        `json:"override_salary,omitempty"`
}

type approvalRequest struct {
	Comments string `json:"comments"`
}

type responseRequest struct {
	Response domain.CandidateResponse `json:"response"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type workflowResponse struct {
	Workflow domain.Workflow `json:"workflow"`
	Message  string          `json:"message,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	actor := actorID(r)
	wf, err := h.service.Create(orchestrator.WithActor(r.Context(), actor), req.ApplicationRef, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowResponse{Workflow: wf, Message: "Offer workflow started"})
}

func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request, workflowID string) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	wf, err := h.service.Get(ctx, workflowID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse{Workflow: wf})
}

func (h *Handler) GetApplicationWorkflow(w http.ResponseWriter, r *http.Request, applicationRef string) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	wf, err := h.service.GetByApplication(ctx, applicationRef)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse{Workflow: wf})
}

func (h *Handler) RunBackgroundCheck(w http.ResponseWriter, r *http.Request, workflowID string) {
	wf, err := h.service.RunBackgroundCheck(actorContext(r), workflowID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse{Workflow: wf, Message: "Background check completed"})
}

func (h *Handler) GenerateOffer(w http.ResponseWriter, r *http.Request, workflowID string) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(base64.StdEncoding.EncodedLen(int(h.maxTemplateBytes)))+64<<10)
	var req generateOfferRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	in := orchestrator.GenerateOfferInput{
		TemplateRef:    req.TemplateRef,
		CandidateData:  req.CandidateData,
		OverrideSalary: req.OverrideSalary,
	}
	if req.TemplateBase64 != "" {
		template, err := base64.StdEncoding.DecodeString(req.TemplateBase64)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: template_base64 is not valid base64", domain.ErrValidation))
			return
		}
		if int64(len(template)) > h.maxTemplateBytes {
			h.writeError(w, r, fmt.Errorf("%w: template exceeds %d bytes", domain.ErrValidation, h.maxTemplateBytes))
			return
		}
		in.Template = template
	}

	out, err := h.service.GenerateOffer(actorContext(r), workflowID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	message := "Offer documents generated"
	if out.Superseded {
		message = "Offer documents regenerated"
	}
	writeJSON(w, http.StatusOK, workflowResponse{Workflow: out.Workflow, Message: message})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request, workflowID string) {
	var req approvalRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	wf, err := h.service.Approve(actorContext(r), workflowID, req.Comments)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse{Workflow: wf, Message: "Offer approved"})
}

func (h *Handler) SendOffer(w http.ResponseWriter, r *http.Request, workflowID string) {
	out, err := h.service.SendOffer(actorContext(r), workflowID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// The email is out; a tracking failure must not turn this into an error.
	if h.tracker != nil {
		if err := h.tracker.StartTracking(r.Context(), out.Workflow.ID); err != nil {
			h.logger.Warn("delivery tracking not started", zap.String("workflow_id", out.Workflow.ID), zap.Error(err))
		}
	}

	message := "Offer sent to candidate"
	if out.Superseded {
		message = "Offer re-sent to candidate"
	}
	writeJSON(w, http.StatusOK, workflowResponse{Workflow: out.Workflow, Message: message})
}

func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request, workflowID string) {
	status, err := h.poller.Poll(r.Context(), workflowID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivery": status})
}

func (h *Handler) RecordResponse(w http.ResponseWriter, r *http.Request, workflowID string) {
	var req responseRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	wf, err := h.service.RecordResponse(actorContext(r), workflowID, req.Response)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.tracker != nil {
		if err := h.tracker.StopTracking(r.Context(), wf.ID, req.Response, actorID(r)); err != nil {
			h.logger.Warn("delivery tracking not signalled", zap.String("workflow_id", wf.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, workflowResponse{
		Workflow: wf,
		Message:  fmt.Sprintf("Candidate response recorded: %s", req.Response),
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, workflowID string) {
	var req cancelRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	wf, err := h.service.Cancel(actorContext(r), workflowID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowResponse{Workflow: wf, Message: "Offer workflow cancelled"})
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	items, err := h.store.ListTemplates(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.ErrorKind(err)
	resp := errorResponse{Error: err.Error(), Code: kind}
	status := http.StatusInternalServerError
	switch kind {
	case "validation":
		status = http.StatusBadRequest
	case "not_found":
		status = http.StatusNotFound
	case "precondition", "conflict":
		status = http.StatusConflict
	case "adapter":
		status = http.StatusBadGateway
		resp.Retryable = adapters.IsRetryable(err)
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body. With optional set, an empty body is accepted.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid json: %v", domain.ErrValidation, err)
	}
	return nil
}

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

func actorContext(r *http.Request) context.Context {
	return orchestrator.WithActor(r.Context(), actorID(r))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
