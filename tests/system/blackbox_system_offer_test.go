//go:build system

package system_test

import (
	"fmt"
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"offer-workflow-orchestrator/internal/domain"
)

var _ = Describe("System blackbox offer workflow", Ordered, func() {
	var (
		repoRoot string
		cfg      systemTestConfig
		appRef   string
	)

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services (including worker) are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.APIBaseURL+"/healthz", http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.APIBaseURL+"/readyz", http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg)).To(Succeed())

		By("seeding a job application owned by the test recruiter")
		appRef, err = seedApplication(repoRoot, cfg, fmt.Sprintf("%d", time.Now().UnixNano()))
		Expect(err).ToNot(HaveOccurred())
	})

	It("creates exactly one live workflow per application and frees it on cancel", func() {
		By("creating the workflow like the recruiter UI does")
		var created workflowResponse
		status, err := doJSON(cfg, http.MethodPost, "/v1/workflows", map[string]string{"application_ref": appRef}, &created)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))
		Expect(created.Workflow.ID).ToNot(BeEmpty())
		Expect(created.Workflow.CurrentStep).To(Equal(domain.StepBackgroundCheck))
		Expect(created.Workflow.Status).To(Equal(domain.StatusPending))
		Expect(created.Workflow.Version).To(Equal(int64(1)))

		By("rejecting a second workflow for the same application")
		var dup errorResponse
		status, err = doJSON(cfg, http.MethodPost, "/v1/workflows", map[string]string{"application_ref": appRef}, &dup)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusConflict))
		Expect(dup.Code).To(Equal("precondition"))

		By("rejecting an out-of-order approval without touching the workflow")
		status, err = doJSON(cfg, http.MethodPost, "/v1/workflows/"+created.Workflow.ID+"/approval", map[string]string{"comments": "too early"}, &dup)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusConflict))

		var fetched workflowResponse
		status, err = doJSON(cfg, http.MethodGet, "/v1/applications/"+appRef+"/workflow", nil, &fetched)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(fetched.Workflow.Version).To(Equal(int64(1)))

		By("cancelling and creating again")
		var cancelled workflowResponse
		status, err = doJSON(cfg, http.MethodPost, "/v1/workflows/"+created.Workflow.ID+"/cancel", map[string]string{"reason": "system test"}, &cancelled)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(cancelled.Workflow.Status).To(Equal(domain.StatusCancelled))

		var recreated workflowResponse
		status, err = doJSON(cfg, http.MethodPost, "/v1/workflows", map[string]string{"application_ref": appRef}, &recreated)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))
		Expect(recreated.Workflow.ID).ToNot(Equal(created.Workflow.ID))

		By("checking the audit trail of the cancelled workflow")
		events, err := auditEvents(cfg.PostgresDSN, created.Workflow.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(Equal([]string{string(domain.AuditCreated), string(domain.AuditCancelled)}))
	})

	It("lists registered templates", func() {
		var list struct {
			Items []domain.OfferTemplate `json:"items"`
		}
		status, err := doJSON(cfg, http.MethodGet, "/v1/templates", nil, &list)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
	})
})
