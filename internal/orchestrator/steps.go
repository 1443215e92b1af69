package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/storage"
)

var offerFormats = []domain.DocumentFormat{domain.FormatPDF, domain.FormatDOCX}

// GenerateOfferInput carries either inline template bytes or the name of a
// registered template. CandidateData overrides fields taken from the
// application profile; OverrideSalary wins over both.
type GenerateOfferInput struct {
	Template       []byte
	TemplateRef    string
	CandidateData  map[string]any
	OverrideSalary *string
}

// Outcome is the result of an action that either advances the workflow or
// replaces the artifact of the current step.
type Outcome struct {
	Workflow   domain.Workflow
	Superseded bool
}

func (o *Orchestrator) RunBackgroundCheck(ctx context.Context, workflowID string) (domain.Workflow, error) {
	wf, err := o.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.Workflow{}, err
	}
	if err := domain.CheckAction(wf, domain.ActionRunBackgroundCheck); err != nil {
		return domain.Workflow{}, fmt.Errorf("run background check: %w", err)
	}
	profile, err := o.Directory.GetApplication(ctx, wf.ApplicationRef)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("run background check: %w", err)
	}
	if err := domain.ValidateIdentity(profile); err != nil {
		return domain.Workflow{}, fmt.Errorf("run background check: %w", err)
	}

	callCtx, cancel := o.adapterContext(ctx)
	defer cancel()
	res, err := o.BackgroundChecks.Check(callCtx, adapters.Identity{
		ApplicationRef: profile.ApplicationRef,
		Name:           profile.CandidateName,
		Email:          profile.CandidateEmail,
		Phone:          profile.CandidatePhone,
		DateOfBirth:    profile.CandidateDateOfBirth,
	})
	if err != nil {
		return domain.Workflow{}, o.adapterFailed("run background check", wf, err)
	}

	return o.advance(ctx, wf, domain.StepData{BackgroundCheck: &domain.BackgroundCheckResult{
		RequestID:   res.RequestID,
		Result:      res.Summary,
		CompletedAt: o.now(),
	}})
}

// GenerateOffer produces PDF and DOCX offer documents. At GenerateOffer it
// advances; at HRApproval it replaces the pending offer in place.
func (o *Orchestrator) GenerateOffer(ctx context.Context, workflowID string, in GenerateOfferInput) (Outcome, error) {
	wf, err := o.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return Outcome{}, err
	}
	if err := domain.CheckAction(wf, domain.ActionGenerateOffer); err != nil {
		return Outcome{}, fmt.Errorf("generate offer: %w", err)
	}

	template, err := o.resolveTemplate(ctx, in)
	if err != nil {
		return Outcome{}, fmt.Errorf("generate offer: %w", err)
	}
	profile, err := o.Directory.GetApplication(ctx, wf.ApplicationRef)
	if err != nil {
		return Outcome{}, fmt.Errorf("generate offer: %w", err)
	}
	data := offerData(profile, in.CandidateData, in.OverrideSalary)
	if err := domain.ValidateOfferData(data); err != nil {
		return Outcome{}, fmt.Errorf("generate offer: %w", err)
	}

	callCtx, cancel := o.adapterContext(ctx)
	defer cancel()
	res, err := o.Documents.Generate(callCtx, adapters.GenerateRequest{
		Template: template,
		Data:     data,
		Formats:  offerFormats,
	})
	if err != nil {
		return Outcome{}, o.adapterFailed("generate offer", wf, err)
	}

	offer := domain.OfferDetails{
		Position:            data["position"].(string),
		Salary:              data["salary"].(string),
		Documents:           res.Files,
		GenerationRequestID: res.RequestID,
		GeneratedAt:         o.now(),
	}
	if wf.CurrentStep == domain.StepGenerateOffer {
		updated, err := o.advance(ctx, wf, domain.StepData{Offer: &offer})
		return Outcome{Workflow: updated}, err
	}
	patch, err := domain.PlanOfferSupersede(wf, offer, o.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("generate offer: %w", err)
	}
	return o.superseded(ctx, wf, patch)
}

func (o *Orchestrator) resolveTemplate(ctx context.Context, in GenerateOfferInput) ([]byte, error) {
	if len(in.Template) > 0 {
		return in.Template, nil
	}
	name := strings.TrimSpace(in.TemplateRef)
	if name == "" {
		return nil, fmt.Errorf("%w: a template or template_ref is required", domain.ErrValidation)
	}
	if o.Blobs == nil {
		return nil, fmt.Errorf("%w: template store is not configured", domain.ErrPrecondition)
	}
	tpl, err := o.Store.GetTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	content, err := o.Blobs.GetDocument(ctx, tpl.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", name, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: template %s is empty", domain.ErrValidation, name)
	}
	return content, nil
}

// offerData merges profile fields, caller data and the salary override, in
// increasing order of precedence.
func offerData(profile domain.ApplicationProfile, candidateData map[string]any, overrideSalary *string) map[string]any {
	data := map[string]any{
		"application_ref": profile.ApplicationRef,
		"candidate_name":  profile.CandidateName,
		"candidate_email": profile.CandidateEmail,
		"position":        profile.JobTitle,
	}
	if profile.CompanyName != "" {
		data["company_name"] = profile.CompanyName
	}
	if profile.ProposedSalary != "" {
		data["salary"] = profile.ProposedSalary
	}
	for k, v := range candidateData {
		data[k] = v
	}
	if overrideSalary != nil && strings.TrimSpace(*overrideSalary) != "" {
		data["salary"] = strings.TrimSpace(*overrideSalary)
	}
	switch v := data["salary"].(type) {
	case float64:
		data["salary"] = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		data["salary"] = strconv.Itoa(v)
	}
	return data
}

func (o *Orchestrator) Approve(ctx context.Context, workflowID, comments string) (domain.Workflow, error) {
	wf, err := o.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.Workflow{}, err
	}
	if err := domain.CheckAction(wf, domain.ActionApprove); err != nil {
		return domain.Workflow{}, fmt.Errorf("approve offer: %w", err)
	}
	return o.advance(ctx, wf, domain.StepData{Approval: &domain.Approval{
		Comments:   strings.TrimSpace(comments),
		ApprovedAt: o.now(),
	}})
}

// SendOffer emails the generated PDF to the candidate. At TrackResponse it
// re-sends and supersedes the previous delivery record.
func (o *Orchestrator) SendOffer(ctx context.Context, workflowID string) (Outcome, error) {
	wf, err := o.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return Outcome{}, err
	}
	if err := domain.CheckAction(wf, domain.ActionSendOffer); err != nil {
		return Outcome{}, fmt.Errorf("send offer: %w", err)
	}
	if wf.Offer == nil || wf.Offer.Documents.PDF == "" {
		return Outcome{}, fmt.Errorf("send offer: %w: no generated offer document", domain.ErrPrecondition)
	}
	profile, err := o.Directory.GetApplication(ctx, wf.ApplicationRef)
	if err != nil {
		return Outcome{}, fmt.Errorf("send offer: %w", err)
	}
	if strings.TrimSpace(profile.CandidateEmail) == "" {
		return Outcome{}, fmt.Errorf("send offer: %w: candidate email is missing", domain.ErrValidation)
	}

	pdf, err := o.offerDocument(ctx, wf, wf.Offer.Documents.PDF)
	if err != nil {
		return Outcome{}, o.adapterFailed("send offer", wf, err)
	}
	subject, body, err := renderOfferEmail(offerEmail{
		CandidateName: profile.CandidateName,
		Position:      wf.Offer.Position,
		CompanyName:   profile.CompanyName,
		SenderName:    o.SenderName,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("send offer: %w", err)
	}

	callCtx, cancel := o.adapterContext(ctx)
	defer cancel()
	res, err := o.Mailer.Send(callCtx, adapters.SendRequest{
		SenderName: o.SenderName,
		Recipients: []string{profile.CandidateEmail},
		Subject:    subject,
		HTMLBody:   body,
		Attachments: []adapters.Attachment{{
			Filename:    "offer-letter.pdf",
			ContentType: "application/pdf",
			Content:     pdf,
		}},
	})
	if err != nil {
		return Outcome{}, o.adapterFailed("send offer", wf, err)
	}

	delivery := domain.Delivery{RequestID: res.RequestID, SentAt: o.now()}
	if wf.CurrentStep == domain.StepSendOffer {
		updated, err := o.advance(ctx, wf, domain.StepData{Delivery: &delivery})
		return Outcome{Workflow: updated}, err
	}
	patch, err := domain.PlanDeliverySupersede(wf, delivery, o.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("send offer: %w", err)
	}
	return o.superseded(ctx, wf, patch)
}

// superseded commits a replacement patch. The CAS pins the step the
// replacement was planned from, so a successful commit is a supersede.
func (o *Orchestrator) superseded(ctx context.Context, wf domain.Workflow, patch domain.Patch) (Outcome, error) {
	updated, err := o.commit(ctx, wf, patch)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Workflow: updated, Superseded: true}, nil
}

// offerDocument reads a generated file from the blob cache, falling back to
// the generator and caching what it returns. Cache failures only log.
func (o *Orchestrator) offerDocument(ctx context.Context, wf domain.Workflow, fileRef string) ([]byte, error) {
	key := storage.OfferDocumentKey(wf.ID, fileRef)
	if o.Blobs != nil {
		content, err := o.Blobs.GetDocument(ctx, key)
		if err == nil && len(content) > 0 {
			return content, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			o.log().Warn("offer document cache read failed", zap.String("workflow_id", wf.ID), zap.String("object_key", key), zap.Error(err))
		}
	}

	callCtx, cancel := o.adapterContext(ctx)
	defer cancel()
	content, err := o.Documents.Download(callCtx, fileRef)
	if err != nil {
		return nil, err
	}

	if o.Blobs != nil {
		if _, err := o.Blobs.PutDocument(ctx, key, content, "application/pdf"); err != nil {
			o.log().Warn("offer document cache write failed", zap.String("workflow_id", wf.ID), zap.String("object_key", key), zap.Error(err))
		}
	}
	return content, nil
}
