package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/logging"
)

const (
	DefaultSchedule  = "@every 5m"
	defaultBatchSize = 100
	sweepTimeout     = 2 * time.Minute
)

type AwaitingStore interface {
	ListAwaitingResponse(ctx context.Context, limit int) ([]domain.Workflow, error)
	GetDeliverySnapshot(ctx context.Context, workflowID string) (domain.DeliveryStatus, error)
}

type deliveryPoller interface {
	Poll(ctx context.Context, workflowID string) (domain.DeliveryStatus, error)
}

type SweepResult struct {
	Checked int
	Skipped int
	Final   int
	Failed  int
}

// Sweeper polls every workflow still waiting for a candidate response on a
// cron schedule. A run that overlaps the previous one is skipped.
type Sweeper struct {
	poller    deliveryPoller
	store     AwaitingStore
	logger    *zap.Logger
	batchSize int

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(poller deliveryPoller, store AwaitingStore, logger *zap.Logger, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Sweeper{
		poller:    poller,
		store:     store,
		logger:    logging.OrNop(logger),
		batchSize: batchSize,
	}
}

// Start schedules sweeps. schedule accepts standard five-field cron
// expressions and descriptors such as "@every 5m".
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	if _, err := c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		s.Sweep(runCtx)
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("delivery sweeper started", zap.String("schedule", schedule), zap.Int("batch_size", s.batchSize))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("delivery sweeper stopped")
}

// Sweep polls each awaiting workflow once. Workflows whose last snapshot for
// the current request is already final are skipped.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	workflows, err := s.store.ListAwaitingResponse(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list workflows awaiting response", zap.Error(err))
		return res
	}

	for _, wf := range workflows {
		if ctx.Err() != nil {
			break
		}
		if s.alreadyFinal(ctx, wf) {
			res.Skipped++
			continue
		}
		status, err := s.poller.Poll(ctx, wf.ID)
		if err != nil {
			res.Failed++
			continue
		}
		res.Checked++
		if status.Status.IsFinal() {
			res.Final++
		}
	}

	if len(workflows) > 0 {
		s.logger.Info("delivery sweep completed",
			zap.Int("checked", res.Checked),
			zap.Int("skipped", res.Skipped),
			zap.Int("final", res.Final),
			zap.Int("failed", res.Failed),
		)
	}
	return res
}

func (s *Sweeper) alreadyFinal(ctx context.Context, wf domain.Workflow) bool {
	snap, err := s.store.GetDeliverySnapshot(ctx, wf.ID)
	if err != nil {
		return false
	}
	return wf.EmailRequestID != nil && snap.RequestID == *wf.EmailRequestID && snap.Status.IsFinal()
}
