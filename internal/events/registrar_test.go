package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/storage"
)

type failingRegistry struct{}

func (failingRegistry) RegisterTemplate(context.Context, domain.OfferTemplate) error {
	return errors.New("database is down")
}

func TestRegistrarRegistersTemplate(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	r := &Registrar{Registry: store, MaxBytes: 1024, Clock: func() time.Time { return now }}

	require.NoError(t, r.Handle(context.Background(), TemplateEvent{Name: "standard.docx", ObjectKey: "templates/standard.docx", Size: 512}))

	tpl, err := store.GetTemplate(context.Background(), "standard.docx")
	require.NoError(t, err)
	require.Equal(t, "templates/standard.docx", tpl.ObjectKey)
	require.Equal(t, now, tpl.RegisteredAt)
}

func TestRegistrarSkipsOversizedTemplate(t *testing.T) {
	store := storage.NewMemoryStore()
	r := &Registrar{Registry: store, MaxBytes: 1024}

	require.NoError(t, r.Handle(context.Background(), TemplateEvent{Name: "huge.docx", ObjectKey: "templates/huge.docx", Size: 4096}))

	_, err := store.GetTemplate(context.Background(), "huge.docx")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistrarReturnsStoreErrors(t *testing.T) {
	r := &Registrar{Registry: failingRegistry{}}
	err := r.Handle(context.Background(), TemplateEvent{Name: "standard.docx", ObjectKey: "templates/standard.docx"})
	require.ErrorContains(t, err, "register template standard.docx")
}
