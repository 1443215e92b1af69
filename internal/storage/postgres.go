package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"offer-workflow-orchestrator/internal/domain"
)

const workflowColumns = `id, application_ref, current_step, status, background_check_result, offer_details,
	hr_approval_comments, approved_at, email_request_id, sent_at, candidate_response, cancel_reason,
	created_by, created_at, updated_at, version`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the pool so the application directory can share it.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// CreateIfAbsent inserts wf unless a non-cancelled workflow already exists for
// its application. The partial unique index makes the check and the insert one
// atomic statement.
func (s *PostgresStore) CreateIfAbsent(ctx context.Context, wf domain.Workflow) (domain.Workflow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workflow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO offer_workflows (id, application_ref, current_step, status, created_by, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (application_ref) WHERE status <> 'cancelled' DO NOTHING
		RETURNING id
	`, wf.ID, wf.ApplicationRef, int(wf.CurrentStep), wf.Status, wf.CreatedBy, wf.CreatedAt, wf.UpdatedAt, wf.Version).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Workflow{}, fmt.Errorf("%w: application %s", domain.ErrAlreadyExists, wf.ApplicationRef)
	}
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("insert workflow: %w", err)
	}

	detail := map[string]any{"application_ref": wf.ApplicationRef}
	if err := insertAudit(ctx, tx, wf.ID, domain.AuditCreated, wf.CreatedBy, detail, wf.CreatedAt); err != nil {
		return domain.Workflow{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workflow{}, err
	}
	return wf, nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	wf, err := scanWorkflow(s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM offer_workflows WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	return wf, err
}

// GetWorkflowByApplication returns the live workflow for an application, or
// the most recently cancelled one when no live workflow exists.
func (s *PostgresStore) GetWorkflowByApplication(ctx context.Context, applicationRef string) (domain.Workflow, error) {
	wf, err := scanWorkflow(s.db.QueryRowContext(ctx, `
		SELECT `+workflowColumns+`
		FROM offer_workflows
		WHERE application_ref = $1
		ORDER BY (status <> 'cancelled') DESC, created_at DESC
		LIMIT 1
	`, applicationRef))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Workflow{}, fmt.Errorf("%w: workflow for application %s", domain.ErrNotFound, applicationRef)
	}
	return wf, err
}

// CompareAndSwap applies patch only if the stored version equals
// expectedVersion, and records the patch's audit entry in the same transaction.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, patch domain.Patch) (domain.Workflow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workflow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanWorkflow(tx.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM offer_workflows WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Workflow{}, err
	}
	if current.Version != expectedVersion {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s is at version %d, expected %d", domain.ErrConflict, id, current.Version, expectedVersion)
	}

	next := patch.Apply(current)
	bg, err := jsonOrNull(next.BackgroundCheck)
	if err != nil {
		return domain.Workflow{}, err
	}
	offer, err := jsonOrNull(next.Offer)
	if err != nil {
		return domain.Workflow{}, err
	}
	var response any
	if next.CandidateResponse != nil {
		response = string(*next.CandidateResponse)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE offer_workflows
		SET current_step = $3,
		    status = $4,
		    background_check_result = $5::jsonb,
		    offer_details = $6::jsonb,
		    hr_approval_comments = $7,
		    approved_at = $8,
		    email_request_id = $9,
		    sent_at = $10,
		    candidate_response = $11,
		    cancel_reason = $12,
		    updated_at = $13,
		    version = $14
		WHERE id = $1 AND version = $2
	`, id, expectedVersion, int(next.CurrentStep), next.Status, bg, offer,
		nullString(next.HRApprovalComments), nullTime(next.ApprovedAt),
		nullString(next.EmailRequestID), nullTime(next.SentAt),
		response, nullString(next.CancelReason), next.UpdatedAt, next.Version)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("update workflow: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s changed during update", domain.ErrConflict, id)
	}

	if err := insertAudit(ctx, tx, id, patch.Event, patch.Actor, patch.Detail, patch.UpdatedAt); err != nil {
		return domain.Workflow{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workflow{}, err
	}
	return next, nil
}

var finalDeliveryStates = []string{
	string(domain.DeliveryCompleted),
	string(domain.DeliveryFailed),
	string(domain.DeliveryCancelled),
}

// ListAwaitingResponse returns in-progress workflows at TrackResponse whose
// current delivery request has not reached a final state, oldest send first.
func (s *PostgresStore) ListAwaitingResponse(ctx context.Context, limit int) ([]domain.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workflowColumns+`
		FROM offer_workflows w
		WHERE w.current_step = $1 AND w.status = $2 AND w.email_request_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_snapshots d
			WHERE d.workflow_id = w.id
			  AND d.request_id = w.email_request_id
			  AND d.status = ANY($3)
		  )
		ORDER BY w.sent_at ASC
		LIMIT $4
	`, int(domain.StepTrackResponse), domain.StatusInProgress, pq.Array(finalDeliveryStates), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAudit(ctx context.Context, workflowID string) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, event, actor, detail, created_at
		FROM workflow_audit_log
		WHERE workflow_id = $1
		ORDER BY id ASC
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var entry domain.AuditEntry
		var detail []byte
		if err := rows.Scan(&entry.WorkflowID, &entry.Event, &entry.Actor, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Detail = detail
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveDeliverySnapshot(ctx context.Context, status domain.DeliveryStatus) error {
	errs := status.Errors
	if errs == nil {
		errs = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_snapshots (workflow_id, request_id, status, progress_percent, sent_count, pending_count, failed_count, errors, polled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workflow_id) DO UPDATE SET
			request_id = EXCLUDED.request_id,
			status = EXCLUDED.status,
			progress_percent = EXCLUDED.progress_percent,
			sent_count = EXCLUDED.sent_count,
			pending_count = EXCLUDED.pending_count,
			failed_count = EXCLUDED.failed_count,
			errors = EXCLUDED.errors,
			polled_at = EXCLUDED.polled_at
	`, status.WorkflowID, status.RequestID, status.Status, status.ProgressPercent,
		status.SentCount, status.PendingCount, status.FailedCount, pq.Array(errs), status.PolledAt)
	if err != nil {
		return fmt.Errorf("save delivery snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDeliverySnapshot(ctx context.Context, workflowID string) (domain.DeliveryStatus, error) {
	var out domain.DeliveryStatus
	var errs []string
	err := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, request_id, status, progress_percent, sent_count, pending_count, failed_count, errors, polled_at
		FROM delivery_snapshots
		WHERE workflow_id = $1
	`, workflowID).Scan(&out.WorkflowID, &out.RequestID, &out.Status, &out.ProgressPercent,
		&out.SentCount, &out.PendingCount, &out.FailedCount, pq.Array(&errs), &out.PolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeliveryStatus{}, fmt.Errorf("%w: delivery snapshot for %s", domain.ErrNotFound, workflowID)
	}
	if err != nil {
		return domain.DeliveryStatus{}, err
	}
	out.Errors = errs
	return out, nil
}

func (s *PostgresStore) RegisterTemplate(ctx context.Context, tpl domain.OfferTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offer_templates (name, object_key, registered_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			registered_at = EXCLUDED.registered_at
	`, tpl.Name, tpl.ObjectKey, tpl.RegisteredAt)
	return err
}

func (s *PostgresStore) GetTemplate(ctx context.Context, name string) (domain.OfferTemplate, error) {
	var tpl domain.OfferTemplate
	err := s.db.QueryRowContext(ctx, `SELECT name, object_key, registered_at FROM offer_templates WHERE name = $1`, name).
		Scan(&tpl.Name, &tpl.ObjectKey, &tpl.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OfferTemplate{}, fmt.Errorf("%w: template %s", domain.ErrNotFound, name)
	}
	return tpl, err
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]domain.OfferTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, object_key, registered_at FROM offer_templates ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.OfferTemplate, 0)
	for rows.Next() {
		var tpl domain.OfferTemplate
		if err := rows.Scan(&tpl.Name, &tpl.ObjectKey, &tpl.RegisteredAt); err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (domain.Workflow, error) {
	var wf domain.Workflow
	var step int
	var bgJSON, offerJSON []byte
	var comments, emailID, response, cancelReason sql.NullString
	var approvedAt, sentAt sql.NullTime
	if err := row.Scan(
		&wf.ID,
		&wf.ApplicationRef,
		&step,
		&wf.Status,
		&bgJSON,
		&offerJSON,
		&comments,
		&approvedAt,
		&emailID,
		&sentAt,
		&response,
		&cancelReason,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
		&wf.Version,
	); err != nil {
		return domain.Workflow{}, err
	}
	wf.CurrentStep = domain.Step(step)

	if len(bgJSON) > 0 {
		var bg domain.BackgroundCheckResult
		if err := json.Unmarshal(bgJSON, &bg); err != nil {
			return domain.Workflow{}, fmt.Errorf("decode background check result: %w", err)
		}
		wf.BackgroundCheck = &bg
	}
	if len(offerJSON) > 0 {
		var offer domain.OfferDetails
		if err := json.Unmarshal(offerJSON, &offer); err != nil {
			return domain.Workflow{}, fmt.Errorf("decode offer details: %w", err)
		}
		wf.Offer = &offer
	}
	if comments.Valid {
		wf.HRApprovalComments = &comments.String
	}
	if approvedAt.Valid {
		wf.ApprovedAt = &approvedAt.Time
	}
	if emailID.Valid {
		wf.EmailRequestID = &emailID.String
	}
	if sentAt.Valid {
		wf.SentAt = &sentAt.Time
	}
	if response.Valid {
		r := domain.CandidateResponse(response.String)
		wf.CandidateResponse = &r
	}
	if cancelReason.Valid {
		wf.CancelReason = &cancelReason.String
	}
	return wf, nil
}

// insertAudit stamps the entry with the time of the change it records.
func insertAudit(ctx context.Context, tx *sql.Tx, workflowID string, event domain.AuditEvent, actor string, detail map[string]any, at time.Time) error {
	payload := []byte("{}")
	if len(detail) > 0 {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("encode audit detail: %w", err)
		}
		payload = b
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_audit_log (workflow_id, event, actor, detail, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, workflowID, event, actor, string(payload), at)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func jsonOrNull(v any) (any, error) {
	switch t := v.(type) {
	case *domain.BackgroundCheckResult:
		if t == nil {
			return nil, nil
		}
	case *domain.OfferDetails:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
