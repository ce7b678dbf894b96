package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studylink/match-app/internal/connection"
	"github.com/studylink/match-app/internal/metrics"
	"github.com/studylink/match-app/internal/partner"
	"github.com/studylink/match-app/internal/profile"
	"github.com/studylink/match-app/internal/push"
	"github.com/studylink/match-app/internal/ratelimit"
)

// SearchRequest is the body of POST /api/partners/search.
type SearchRequest struct {
	Institution string `json:"institution,omitempty"`
	Query       string `json:"query,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// SearchResponse carries the ranked candidate list.
type SearchResponse struct {
	Results []partner.MatchResult `json:"results"`
	Count   int                   `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(ctx)

	if !s.allow(r, userID, ratelimit.RuleSearch) {
		writeError(w, http.StatusTooManyRequests, "search rate limit exceeded")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	started := time.Now()

	current, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		writeRetryable(w, "profile fetch failed")
		return
	}

	pool, err := s.profiles.ListCandidatePool(ctx, profile.Filter{
		Institution: req.Institution,
		Query:       req.Query,
		ExcludeID:   userID,
	})
	if err != nil {
		// Without the pool there is no meaningful partial ranking.
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		writeRetryable(w, "candidate pool fetch failed")
		return
	}

	records, err := s.connections.ListForUser(ctx, userID)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		writeRetryable(w, "connection fetch failed")
		return
	}

	criteria := partner.SearchCriteria{
		Institution: req.Institution,
		Query:       req.Query,
		Limit:       req.Limit,
	}
	results, err := partner.Search(*current, criteria, pool, records)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics.SearchesTotal.WithLabelValues("ok").Inc()
	metrics.SearchDuration.Observe(time.Since(started).Seconds())
	metrics.CandidatePoolSize.Observe(float64(len(pool)))

	writeJSON(w, http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

// ScoreResponse carries a single candidate's score for display.
type ScoreResponse struct {
	CandidateID string              `json:"candidateId"`
	Result      partner.ScoreResult `json:"result"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(ctx)
	candidateID := chi.URLParam(r, "id")

	current, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeRetryable(w, "profile fetch failed")
		return
	}

	candidate, err := s.profiles.GetProfile(ctx, candidateID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, http.StatusNotFound, "candidate not found")
			return
		}
		writeRetryable(w, "profile fetch failed")
		return
	}

	writeJSON(w, http.StatusOK, ScoreResponse{
		CandidateID: candidateID,
		Result:      partner.ComputeScore(*current, *candidate),
	})
}

// ConnectionView is one connection record decorated with the counterpart's
// identity and score for display consistency with search results.
type ConnectionView struct {
	Record      partner.ConnectionRecord `json:"record"`
	PartnerID   string                   `json:"partnerId"`
	PartnerName string                   `json:"partnerName,omitempty"`
	Score       *partner.ScoreResult     `json:"score,omitempty"`
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(ctx)

	records, err := s.connections.ListForUser(ctx, userID)
	if err != nil {
		writeRetryable(w, "connection fetch failed")
		return
	}

	current, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeRetryable(w, "profile fetch failed")
		return
	}

	views := make([]ConnectionView, 0, len(records))
	for _, rec := range records {
		partnerID := rec.RequesterID
		if partnerID == userID {
			partnerID = rec.RecipientID
		}

		view := ConnectionView{Record: rec, PartnerID: partnerID}

		// A missing counterpart profile degrades the view, not the list.
		if other, err := s.profiles.GetProfile(ctx, partnerID); err == nil {
			view.PartnerName = other.Name
			score := partner.ComputeScore(*current, *other)
			view.Score = &score
		} else if !errors.Is(err, profile.ErrNotFound) {
			log.Printf("[api] score for connection %s: %v", rec.ID, err)
		}

		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connections": views,
		"count":       len(views),
	})
}

// CreateConnectionRequest is the body of POST /api/connections.
type CreateConnectionRequest struct {
	RecipientID string `json:"recipientId"`
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUserID(ctx)

	if !s.allow(r, userID, ratelimit.RuleRequest) {
		writeError(w, http.StatusTooManyRequests, "connection request rate limit exceeded")
		return
	}

	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.RecipientID == "" {
		writeError(w, http.StatusBadRequest, "recipientId is required")
		return
	}

	rec, err := s.connections.Request(ctx, userID, req.RecipientID)
	if err != nil {
		switch {
		case errors.Is(err, connection.ErrSelfConnection):
			writeError(w, http.StatusBadRequest, "cannot connect to yourself")
		case errors.Is(err, connection.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "connection already exists")
		default:
			log.Printf("[api] create connection: %v", err)
			writeRetryable(w, "connection create failed")
		}
		return
	}

	metrics.ConnectionEventsTotal.WithLabelValues("request").Inc()
	s.publishEvent(rec, func(data []byte) error { return s.events.PublishPartnerRequest(data) })

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, "accept")
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, "decline")
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, action string) {
	ctx := r.Context()
	userID := currentUserID(ctx)
	id := chi.URLParam(r, "id")

	var rec *partner.ConnectionRecord
	var err error
	if action == "accept" {
		rec, err = s.connections.Accept(ctx, id, userID)
	} else {
		rec, err = s.connections.Decline(ctx, id, userID)
	}
	if err != nil {
		switch {
		case errors.Is(err, connection.ErrNotFound):
			writeError(w, http.StatusNotFound, "connection not found")
		case errors.Is(err, connection.ErrNotPending):
			writeError(w, http.StatusConflict, "not a pending request for this user")
		default:
			log.Printf("[api] %s connection %s: %v", action, id, err)
			writeRetryable(w, "connection update failed")
		}
		return
	}

	metrics.ConnectionEventsTotal.WithLabelValues(action).Inc()
	if action == "accept" {
		s.publishEvent(rec, func(data []byte) error { return s.events.PublishPartnerAccept(data) })
	} else {
		s.publishEvent(rec, func(data []byte) error { return s.events.PublishPartnerDecline(data) })
	}

	writeJSON(w, http.StatusOK, rec)
}

// allow applies a rate limit rule, treating a nil limiter as always-allow.
func (s *Server) allow(r *http.Request, userID string, rule ratelimit.Rule) bool {
	if s.limiter == nil {
		return true
	}
	ok, _ := s.limiter.Allow(r.Context(), userID, rule)
	return ok
}

// publishEvent publishes a lifecycle event for the notifier. Publishing is
// best-effort: a broker outage must not fail the user's request.
func (s *Server) publishEvent(rec *partner.ConnectionRecord, publish func([]byte) error) {
	if s.events == nil {
		return
	}

	event := push.Event{
		ConnectionID: rec.ID,
		RequesterID:  rec.RequesterID,
		RecipientID:  rec.RecipientID,
		SentAt:       time.Now().UnixMilli(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[api] marshal event for %s: %v", rec.ID, err)
		return
	}
	if err := publish(data); err != nil {
		log.Printf("[api] publish event for %s: %v", rec.ID, err)
	}
}
