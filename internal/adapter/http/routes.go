package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Candidates
		r.Post("/candidates", h.SubmitCandidate)
		r.Get("/candidates/{id}", h.GetCandidate)

		// Experts
		r.Post("/experts", h.RegisterExpert)
		r.Get("/experts/{id}", h.GetExpert)
		r.Get("/experts/{id}/stats", h.GetExpertStats)

		// Reviews
		r.Get("/reviews/pending", h.ListPendingReviews)
		r.Get("/reviews/{id}", h.GetReview)
		r.Post("/reviews/{id}/assign", h.AssignReviewers)
		r.Post("/reviews/{id}/decisions", h.SubmitDecision)
		r.Post("/reviews/{id}/cancel", h.CancelReview)
		r.Get("/reviews/{id}/result", h.GetReviewResult)

		// Translation memory
		r.Get("/memory/search", h.SearchMemory)
		r.Get("/memory/consistency", h.CheckConsistency)

		// Operator statistics
		r.Get("/stats/reviews", h.ReviewStats)
	})
}
