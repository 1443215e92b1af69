package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/logging"
)

type TemplateRegistry interface {
	RegisterTemplate(ctx context.Context, tpl domain.OfferTemplate) error
}

// Registrar records uploaded templates so offers can reference them by name.
type Registrar struct {
	Registry TemplateRegistry
	MaxBytes int64
	Clock    func() time.Time
	Logger   *zap.Logger
}

func (r *Registrar) Handle(ctx context.Context, event TemplateEvent) error {
	if r.MaxBytes > 0 && event.Size > r.MaxBytes {
		r.log().Warn("template exceeds size limit, skipping",
			zap.String("template", event.Name),
			zap.String("object_key", event.ObjectKey),
			zap.Int64("size", event.Size),
			zap.Int64("max_bytes", r.MaxBytes),
		)
		return nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock().UTC()
	}
	tpl := domain.OfferTemplate{Name: event.Name, ObjectKey: event.ObjectKey, RegisteredAt: now}
	if err := r.Registry.RegisterTemplate(ctx, tpl); err != nil {
		return fmt.Errorf("register template %s: %w", event.Name, err)
	}
	r.log().Info("template registered", zap.String("template", event.Name), zap.String("object_key", event.ObjectKey))
	return nil
}

func (r *Registrar) log() *zap.Logger {
	return logging.OrNop(r.Logger)
}
