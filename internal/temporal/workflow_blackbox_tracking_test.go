package temporal

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"offer-workflow-orchestrator/internal/adapters"
	"offer-workflow-orchestrator/internal/adapters/adapterstest"
	"offer-workflow-orchestrator/internal/delivery"
	"offer-workflow-orchestrator/internal/domain"
	"offer-workflow-orchestrator/internal/storage"
)

type pollTrace struct {
	mu       sync.Mutex
	inputs   []PollDeliveryInput
	statuses []domain.DeliveryState
}

var _ = Describe("DeliveryTrackingWorkflow blackbox", func() {
	var (
		ctx    context.Context
		store  *storage.MemoryStore
		mailer *adapterstest.Mailer
		wf     domain.Workflow
		trace  *pollTrace
		env    *testsuite.TestWorkflowEnvironment
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewMemoryStore()
		mailer = adapterstest.NewMailer()
		trace = &pollTrace{}

		now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
		created, err := store.CreateIfAbsent(ctx, domain.NewWorkflow("wf-offer-1", "app-1", "owner-1", now))
		Expect(err).ToNot(HaveOccurred())
		res, err := mailer.Send(ctx, adapters.SendRequest{Recipients: []string{"jane@example.com"}, Subject: "Your offer"})
		Expect(err).ToNot(HaveOccurred())

		step := domain.StepTrackResponse
		status := domain.StatusInProgress
		wf, err = store.CompareAndSwap(ctx, created.ID, created.Version, domain.Patch{
			CurrentStep: &step, Status: &status, EmailRequestID: &res.RequestID, SentAt: &now, UpdatedAt: now,
		})
		Expect(err).ToNot(HaveOccurred())

		var suite testsuite.WorkflowTestSuite
		env = suite.NewTestWorkflowEnvironment()
		acts := &Activities{Poller: &delivery.Poller{Store: store, Email: mailer}}
		env.RegisterWorkflow(DeliveryTrackingWorkflow)
		env.RegisterActivity(acts.PollDeliveryActivity)

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			var in PollDeliveryInput
			_ = args.Get(&in)
			trace.mu.Lock()
			trace.inputs = append(trace.inputs, in)
			trace.mu.Unlock()
		})
		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
			var out PollDeliveryOutput
			_ = result.Get(&out)
			trace.mu.Lock()
			trace.statuses = append(trace.statuses, out.Status.Status)
			trace.mu.Unlock()
		})
	})

	It("polls until the email service reports a final state and records every snapshot", func() {
		By("completing delivery between the second and third poll")
		env.RegisterDelayedCallback(func() {
			mailer.SetStatus(*wf.EmailRequestID, domain.DeliveryStatus{
				Status: domain.DeliveryCompleted, ProgressPercent: 100, SentCount: 1, Errors: []string{},
			})
		}, 7*time.Minute)

		env.ExecuteWorkflow(DeliveryTrackingWorkflow, TrackingInput{WorkflowID: wf.ID, PollInterval: 5 * time.Minute, MaxPolls: 10})

		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result TrackingResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.Outcome).To(Equal(TrackingDelivered))
		Expect(result.Polls).To(Equal(3))

		By("checking each poll targeted the offer workflow")
		Expect(trace.inputs).To(HaveLen(3))
		for _, in := range trace.inputs {
			Expect(in.WorkflowID).To(Equal(wf.ID))
		}
		Expect(trace.statuses).To(Equal([]domain.DeliveryState{
			domain.DeliveryQueued, domain.DeliveryQueued, domain.DeliveryCompleted,
		}))
		Expect(mailer.PollCount(*wf.EmailRequestID)).To(Equal(3))

		By("checking the latest snapshot was stored and the workflow was left alone")
		snap, err := store.GetDeliverySnapshot(ctx, wf.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(snap.Status).To(Equal(domain.DeliveryCompleted))
		Expect(snap.ProgressPercent).To(Equal(100))

		after, err := store.GetWorkflow(ctx, wf.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(after).To(Equal(wf))
	})

	It("stops polling when the candidate response is signalled", func() {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(CandidateResponseSignalName, CandidateResponseSignal{Response: domain.ResponseNegotiating})
		}, 12*time.Minute)

		env.ExecuteWorkflow(DeliveryTrackingWorkflow, TrackingInput{WorkflowID: wf.ID, PollInterval: 5 * time.Minute, MaxPolls: 10})

		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result TrackingResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.Outcome).To(Equal(TrackingResponded))
		Expect(result.Response).To(Equal(domain.ResponseNegotiating))
		Expect(result.Polls).To(Equal(3))
		Expect(mailer.PollCount(*wf.EmailRequestID)).To(Equal(3))
	})
})
