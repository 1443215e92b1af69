package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/workflows", h.CreateWorkflow)
		r.Get("/templates", h.ListTemplates)
		r.Get("/applications/{applicationRef}/workflow", func(w http.ResponseWriter, r *http.Request) {
			h.GetApplicationWorkflow(w, r, chi.URLParam(r, "applicationRef"))
		})
		r.Route("/workflows/{workflowId}", func(r chi.Router) {
			r.Get("/", withWorkflowID(h.GetWorkflow))
			r.Post("/background-check", withWorkflowID(h.RunBackgroundCheck))
			r.Post("/offer", withWorkflowID(h.GenerateOffer))
			r.Post("/approval", withWorkflowID(h.Approve))
			r.Post("/send", withWorkflowID(h.SendOffer))
			r.Get("/delivery", withWorkflowID(h.GetDelivery))
			r.Post("/response", withWorkflowID(h.RecordResponse))
			r.Post("/cancel", withWorkflowID(h.Cancel))
		})
	})

	return r
}

func withWorkflowID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "workflowId"))
	}
}
