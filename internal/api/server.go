// Package api exposes the StudyLink partner-matching HTTP surface: ranked
// partner search, per-candidate scoring, and the connection request
// lifecycle. The matching engine itself stays pure; this layer owns auth,
// rate limiting, persistence collaborators, and event publishing.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studylink/match-app/internal/metrics"
	"github.com/studylink/match-app/internal/partner"
	"github.com/studylink/match-app/internal/profile"
	"github.com/studylink/match-app/internal/ratelimit"
	"github.com/studylink/match-app/internal/session"
)

// ProfileStore is the persistence collaborator for user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*partner.UserProfile, error)
	ListCandidatePool(ctx context.Context, f profile.Filter) ([]partner.UserProfile, error)
}

// ConnectionStore is the persistence collaborator for connection records.
type ConnectionStore interface {
	ListForUser(ctx context.Context, userID string) ([]partner.ConnectionRecord, error)
	Request(ctx context.Context, requesterID, recipientID string) (*partner.ConnectionRecord, error)
	Accept(ctx context.Context, id, recipientID string) (*partner.ConnectionRecord, error)
	Decline(ctx context.Context, id, recipientID string) (*partner.ConnectionRecord, error)
}

// SessionResolver resolves bearer tokens to sessions.
type SessionResolver interface {
	Get(ctx context.Context, token string) (*session.Session, error)
}

// RateLimiter throttles per-user actions.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// EventPublisher publishes partner lifecycle events for the notifier.
type EventPublisher interface {
	PublishPartnerRequest(data []byte) error
	PublishPartnerAccept(data []byte) error
	PublishPartnerDecline(data []byte) error
}

// Server wires the HTTP routes to their collaborators.
type Server struct {
	profiles    ProfileStore
	connections ConnectionStore
	sessions    SessionResolver
	limiter     RateLimiter
	events      EventPublisher
}

// NewServer creates an API server over the given collaborators. The
// limiter and events publisher may be nil (disabled), which the handlers
// treat as always-allow and no-op respectively.
func NewServer(profiles ProfileStore, connections ConnectionStore, sessions SessionResolver, limiter RateLimiter, events EventPublisher) *Server {
	return &Server{
		profiles:    profiles,
		connections: connections,
		sessions:    sessions,
		limiter:     limiter,
		events:      events,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/partners/search", s.handleSearch)
		r.Get("/partners/{id}/score", s.handleScore)

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", s.handleListConnections)
			r.Post("/", s.handleCreateConnection)
			r.Post("/{id}/accept", s.handleAccept)
			r.Post("/{id}/decline", s.handleDecline)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
