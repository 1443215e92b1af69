package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"offer-workflow-orchestrator/internal/domain"
)

// MemoryStore is an in-process store with the same atomicity guarantees as
// PostgresStore: one mutex covers the active-application index, the version
// check and the audit append.
type MemoryStore struct {
	mu        sync.Mutex
	workflows map[string]domain.Workflow
	active    map[string]string
	audit     map[string][]domain.AuditEntry
	snapshots map[string]domain.DeliveryStatus
	templates map[string]domain.OfferTemplate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]domain.Workflow),
		active:    make(map[string]string),
		audit:     make(map[string][]domain.AuditEntry),
		snapshots: make(map[string]domain.DeliveryStatus),
		templates: make(map[string]domain.OfferTemplate),
	}
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) CreateIfAbsent(_ context.Context, wf domain.Workflow) (domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[wf.ApplicationRef]; ok {
		return domain.Workflow{}, fmt.Errorf("%w: application %s", domain.ErrAlreadyExists, wf.ApplicationRef)
	}
	if _, ok := m.workflows[wf.ID]; ok {
		return domain.Workflow{}, fmt.Errorf("%w: workflow id %s reused", domain.ErrConflict, wf.ID)
	}
	m.workflows[wf.ID] = wf.Clone()
	m.active[wf.ApplicationRef] = wf.ID
	m.appendAudit(wf.ID, domain.AuditCreated, wf.CreatedBy, map[string]any{"application_ref": wf.ApplicationRef}, wf.CreatedAt)
	return wf.Clone(), nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	return wf.Clone(), nil
}

func (m *MemoryStore) GetWorkflowByApplication(_ context.Context, applicationRef string) (domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.active[applicationRef]; ok {
		return m.workflows[id].Clone(), nil
	}
	var latest *domain.Workflow
	for _, wf := range m.workflows {
		if wf.ApplicationRef != applicationRef {
			continue
		}
		if latest == nil || wf.CreatedAt.After(latest.CreatedAt) {
			w := wf
			latest = &w
		}
	}
	if latest == nil {
		return domain.Workflow{}, fmt.Errorf("%w: workflow for application %s", domain.ErrNotFound, applicationRef)
	}
	return latest.Clone(), nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, id string, expectedVersion int64, patch domain.Patch) (domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.workflows[id]
	if !ok {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	if current.Version != expectedVersion {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s is at version %d, expected %d", domain.ErrConflict, id, current.Version, expectedVersion)
	}
	next := patch.Apply(current)
	m.workflows[id] = next
	if next.Status == domain.StatusCancelled && m.active[next.ApplicationRef] == id {
		delete(m.active, next.ApplicationRef)
	}
	m.appendAudit(id, patch.Event, patch.Actor, patch.Detail, patch.UpdatedAt)
	return next.Clone(), nil
}

func (m *MemoryStore) ListAwaitingResponse(_ context.Context, limit int) ([]domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Workflow, 0)
	for _, wf := range m.workflows {
		if wf.CurrentStep != domain.StepTrackResponse || wf.Status != domain.StatusInProgress || wf.EmailRequestID == nil {
			continue
		}
		if snap, ok := m.snapshots[wf.ID]; ok && snap.RequestID == *wf.EmailRequestID && snap.Status.IsFinal() {
			continue
		}
		out = append(out, wf.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SentAt.Before(*out[j].SentAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListAudit(_ context.Context, workflowID string) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.audit[workflowID]
	out := make([]domain.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemoryStore) SaveDeliverySnapshot(_ context.Context, status domain.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[status.WorkflowID]; !ok {
		return fmt.Errorf("%w: workflow %s", domain.ErrNotFound, status.WorkflowID)
	}
	status.Errors = append([]string(nil), status.Errors...)
	m.snapshots[status.WorkflowID] = status
	return nil
}

func (m *MemoryStore) GetDeliverySnapshot(_ context.Context, workflowID string) (domain.DeliveryStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[workflowID]
	if !ok {
		return domain.DeliveryStatus{}, fmt.Errorf("%w: delivery snapshot for %s", domain.ErrNotFound, workflowID)
	}
	s.Errors = append([]string(nil), s.Errors...)
	return s, nil
}

func (m *MemoryStore) RegisterTemplate(_ context.Context, tpl domain.OfferTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tpl.Name] = tpl
	return nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, name string) (domain.OfferTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[name]
	if !ok {
		return domain.OfferTemplate{}, fmt.Errorf("%w: template %s", domain.ErrNotFound, name)
	}
	return tpl, nil
}

func (m *MemoryStore) ListTemplates(context.Context) ([]domain.OfferTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OfferTemplate, 0, len(m.templates))
	for _, tpl := range m.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// caller holds m.mu
func (m *MemoryStore) appendAudit(workflowID string, event domain.AuditEvent, actor string, detail map[string]any, at time.Time) {
	payload := json.RawMessage(`{}`)
	if len(detail) > 0 {
		if b, err := json.Marshal(detail); err == nil {
			payload = b
		}
	}
	m.audit[workflowID] = append(m.audit[workflowID], domain.AuditEntry{
		WorkflowID: workflowID,
		Event:      event,
		Actor:      actor,
		Detail:     payload,
		CreatedAt:  at,
	})
}
