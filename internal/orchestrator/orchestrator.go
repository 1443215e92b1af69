package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/logging"
)

const defaultAdapterTimeout = 30 * time.Second

type Store interface {
	CreateIfAbsent(ctx context.Context, wf domain.Workflow) (domain.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	GetWorkflowByApplication(ctx context.Context, applicationRef string) (domain.Workflow, error)
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, patch domain.Patch) (domain.Workflow, error)
	GetTemplate(ctx context.Context, name string) (domain.OfferTemplate, error)
}

type Directory interface {
	GetApplication(ctx context.Context, applicationRef string) (domain.ApplicationProfile, error)
}

type BackgroundChecker interface {
	Check(ctx context.Context, identity adapters.Identity) (adapters.CheckResult, error)
}

type DocumentGenerator interface {
	Generate(ctx context.Context, req adapters.GenerateRequest) (adapters.GenerateResult, error)
	Download(ctx context.Context, fileRef string) ([]byte, error)
}

type Mailer interface {
	Send(ctx context.Context, req adapters.SendRequest) (adapters.SendResult, error)
}

type BlobStore interface {
	PutDocument(ctx context.Context, objectKey string, content []byte, contentType string) (string, error)
	GetDocument(ctx context.Context, objectKey string) ([]byte, error)
}

// Orchestrator runs the offer workflow state machine. Every mutation is a
// compare-and-swap against the version read before any adapter call, so a
// failed or raced action leaves the stored workflow untouched.
type Orchestrator struct {
	Store            Store
	Directory        Directory
	BackgroundChecks BackgroundChecker
	Documents        DocumentGenerator
	Mailer           Mailer
	Blobs            BlobStore
	Logger           *zap.Logger
	Clock            func() time.Time
	NewID            func() string
	AdapterTimeout   time.Duration
	SenderName       string
}

type actorKey struct{}

// WithActor attaches the authenticated caller's identity to ctx; it is
// recorded on audit entries.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}

// Create starts a workflow for an application. Only the owner of the job
// posting may do so, and only when no live workflow exists for it.
func (o *Orchestrator) Create(ctx context.Context, applicationRef, actorID string) (domain.Workflow, error) {
	applicationRef = strings.TrimSpace(applicationRef)
	actorID = strings.TrimSpace(actorID)
	if applicationRef == "" {
		return domain.Workflow{}, fmt.Errorf("%w: application_ref is required", domain.ErrValidation)
	}
	if actorID == "" {
		return domain.Workflow{}, fmt.Errorf("%w: actor id is required", domain.ErrValidation)
	}

	profile, err := o.Directory.GetApplication(ctx, applicationRef)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("create workflow: %w", err)
	}
	if profile.JobOwnerID != actorID {
		return domain.Workflow{}, fmt.Errorf("create workflow: %w", domain.ErrNotOwner)
	}

	wf := domain.NewWorkflow(o.newID(), applicationRef, actorID, o.now())
	created, err := o.Store.CreateIfAbsent(ctx, wf)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("create workflow: %w", err)
	}
	o.log().Info("workflow created",
		zap.String("workflow_id", created.ID),
		zap.String("application_ref", created.ApplicationRef),
		zap.String("actor", actorID),
	)
	return created, nil
}

func (o *Orchestrator) Get(ctx context.Context, workflowID string) (domain.Workflow, error) {
	return o.Store.GetWorkflow(ctx, workflowID)
}

func (o *Orchestrator) GetByApplication(ctx context.Context, applicationRef string) (domain.Workflow, error) {
	return o.Store.GetWorkflowByApplication(ctx, applicationRef)
}

// Advance merges data into the payload owned by the current step and moves to
// the next step. Step actions call it after their adapter work succeeds.
func (o *Orchestrator) Advance(ctx context.Context, workflowID string, data domain.StepData) (domain.Workflow, error) {
	wf, err := o.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.Workflow{}, err
	}
	return o.advance(ctx, wf, data)
}

func (o *Orchestrator) advance(ctx context.Context, wf domain.Workflow, data domain.StepData) (domain.Workflow, error) {
	patch, err := domain.PlanAdvance(wf, data, o.now())
	if err != nil {
		return domain.Workflow{}, err
	}
	return o.commit(ctx, wf, patch)
}

// commit writes patch against the version observed in wf.
func (o *Orchestrator) commit(ctx context.Context, wf domain.Workflow, patch domain.Patch) (domain.Workflow, error) {
	patch.Actor = ActorFrom(ctx)
	updated, err := o.Store.CompareAndSwap(ctx, wf.ID, wf.Version, patch)
	if err != nil {
		o.log().Warn("workflow update rejected",
			zap.String("workflow_id", wf.ID),
			zap.String("event", string(patch.Event)),
			zap.Int64("expected_version", wf.Version),
			zap.Error(err),
		)
		return domain.Workflow{}, err
	}
	o.log().Info("workflow updated",
		zap.String("workflow_id", updated.ID),
		zap.String("application_ref", updated.ApplicationRef),
		zap.String("event", string(patch.Event)),
		zap.String("step", updated.CurrentStep.String()),
		zap.String("status", string(updated.Status)),
		zap.Int64("version", updated.Version),
	)
	return updated, nil
}

func (o *Orchestrator) RecordResponse(ctx context.Context, workflowID string, response domain.CandidateResponse) (domain.Workflow, error) {
	wf, err := o.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.Workflow{}, err
	}
	patch, err := domain.PlanResponse(wf, response, o.now())
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("record response: %w", err)
	}
	return o.commit(ctx, wf, patch)
}

// Cancel moves a non-terminal workflow to Cancelled, freeing its application
// for a new workflow.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID, reason string) (domain.Workflow, error) {
	wf, err := o.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.Workflow{}, err
	}
	patch, err := domain.PlanCancel(wf, reason, o.now())
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("cancel workflow: %w", err)
	}
	return o.commit(ctx, wf, patch)
}

func (o *Orchestrator) adapterContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.AdapterTimeout
	if timeout <= 0 {
		timeout = defaultAdapterTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (o *Orchestrator) adapterFailed(action string, wf domain.Workflow, err error) error {
	o.log().Warn("adapter call failed",
		zap.String("action", action),
		zap.String("workflow_id", wf.ID),
		zap.String("step", wf.CurrentStep.String()),
		zap.Bool("retryable", adapters.IsRetryable(err)),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %w", action, err)
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

func (o *Orchestrator) log() *zap.Logger {
	return logging.OrNop(o.Logger)
}
