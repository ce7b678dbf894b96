package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studylink/match-app/internal/connection"
	"github.com/studylink/match-app/internal/partner"
	"github.com/studylink/match-app/internal/profile"
	"github.com/studylink/match-app/internal/ratelimit"
	"github.com/studylink/match-app/internal/session"
)

type fakeProfiles struct {
	byID    map[string]partner.UserProfile
	pool    []partner.UserProfile
	poolErr error
}

func (f *fakeProfiles) GetProfile(ctx context.Context, id string) (*partner.UserProfile, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProfiles) ListCandidatePool(ctx context.Context, filter profile.Filter) ([]partner.UserProfile, error) {
	if f.poolErr != nil {
		return nil, f.poolErr
	}
	return f.pool, nil
}

type fakeConnections struct {
	records []partner.ConnectionRecord
	nextID  int
}

func (f *fakeConnections) ListForUser(ctx context.Context, userID string) ([]partner.ConnectionRecord, error) {
	var out []partner.ConnectionRecord
	for _, rec := range f.records {
		if rec.RequesterID == userID || rec.RecipientID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeConnections) Request(ctx context.Context, requesterID, recipientID string) (*partner.ConnectionRecord, error) {
	if requesterID == recipientID {
		return nil, connection.ErrSelfConnection
	}
	for _, rec := range f.records {
		samePair := (rec.RequesterID == requesterID && rec.RecipientID == recipientID) ||
			(rec.RequesterID == recipientID && rec.RecipientID == requesterID)
		if samePair {
			return nil, connection.ErrAlreadyExists
		}
	}
	f.nextID++
	rec := partner.ConnectionRecord{
		ID:          fmt.Sprintf("conn-%d", f.nextID),
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      partner.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeConnections) Accept(ctx context.Context, id, recipientID string) (*partner.ConnectionRecord, error) {
	return f.transition(id, recipientID, partner.StatusAccepted)
}

func (f *fakeConnections) Decline(ctx context.Context, id, recipientID string) (*partner.ConnectionRecord, error) {
	return f.transition(id, recipientID, partner.StatusDeclined)
}

func (f *fakeConnections) transition(id, recipientID string, to partner.ConnectionStatus) (*partner.ConnectionRecord, error) {
	for i, rec := range f.records {
		if rec.ID != id {
			continue
		}
		if rec.Status != partner.StatusPending || rec.RecipientID != recipientID {
			return nil, connection.ErrNotPending
		}
		f.records[i].Status = to
		f.records[i].UpdatedAt = time.Now()
		out := f.records[i]
		return &out, nil
	}
	return nil, connection.ErrNotFound
}

type fakeSessions struct {
	byToken map[string]string // token -> user id
}

func (f *fakeSessions) Get(ctx context.Context, token string) (*session.Session, error) {
	userID, ok := f.byToken[token]
	if !ok {
		return nil, nil
	}
	return &session.Session{Token: token, UserID: userID}, nil
}

type fakeLimiter struct {
	denied map[string]bool // rule key prefix -> denied
}

func (f *fakeLimiter) Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error) {
	return !f.denied[rule.Key], nil
}

type fakeEvents struct {
	published []string
}

func (f *fakeEvents) PublishPartnerRequest(data []byte) error {
	f.published = append(f.published, "request")
	return nil
}

func (f *fakeEvents) PublishPartnerAccept(data []byte) error {
	f.published = append(f.published, "accept")
	return nil
}

func (f *fakeEvents) PublishPartnerDecline(data []byte) error {
	f.published = append(f.published, "decline")
	return nil
}

type fixture struct {
	profiles    *fakeProfiles
	connections *fakeConnections
	sessions    *fakeSessions
	limiter     *fakeLimiter
	events      *fakeEvents
	handler     http.Handler
}

func intPtr(n int) *int { return &n }

func testProfile(id, name string, courses ...partner.CourseEnrollment) partner.UserProfile {
	return partner.UserProfile{
		ID:          id,
		Name:        name,
		Institution: "State University",
		Program:     "Computer Science",
		Year:        intPtr(2),
		Courses:     courses,
	}
}

func course(id, code, name string) partner.CourseEnrollment {
	return partner.CourseEnrollment{CourseID: id, Code: code, Name: name, Status: partner.EnrollmentActive}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		profiles: &fakeProfiles{byID: map[string]partner.UserProfile{
			"alice": testProfile("alice", "Alice", course("c1", "CS101", "Intro to Programming")),
		}},
		connections: &fakeConnections{},
		sessions:    &fakeSessions{byToken: map[string]string{"tok-alice": "alice"}},
		limiter:     &fakeLimiter{denied: map[string]bool{}},
		events:      &fakeEvents{},
	}
	f.handler = NewServer(f.profiles, f.connections, f.sessions, f.limiter, f.events).Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"unknown token", "tok-nobody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/partners/search", tt.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestSearchRanksCandidates(t *testing.T) {
	f := newFixture(t)
	f.profiles.pool = []partner.UserProfile{
		testProfile("bob", "Bob"), // program + year only
		testProfile("carol", "Carol", course("c1", "CS101", "Intro to Programming")),
	}

	rec := f.do(t, http.MethodPost, "/api/partners/search", "tok-alice", SearchRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp SearchResponse
	decodeInto(t, rec, &resp)

	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	if resp.Results[0].CandidateID != "carol" {
		t.Errorf("top candidate = %q, want carol (shared course outranks none)", resp.Results[0].CandidateID)
	}
	if resp.Results[0].Score <= resp.Results[1].Score {
		t.Errorf("scores not descending: %d then %d", resp.Results[0].Score, resp.Results[1].Score)
	}
}

func TestSearchInvalidLimit(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/partners/search", "tok-alice", SearchRequest{Limit: partner.MaxLimit + 1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSearchRateLimited(t *testing.T) {
	f := newFixture(t)
	f.limiter.denied[ratelimit.RuleSearch.Key] = true

	rec := f.do(t, http.MethodPost, "/api/partners/search", "tok-alice", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestSearchPoolFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.profiles.poolErr = errors.New("db down")

	rec := f.do(t, http.MethodPost, "/api/partners/search", "tok-alice", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}

	var resp map[string]interface{}
	decodeInto(t, rec, &resp)
	if retryable, _ := resp["retryable"].(bool); !retryable {
		t.Errorf("retryable = %v, want true", resp["retryable"])
	}
}

func TestSearchAnnotatesPendingState(t *testing.T) {
	f := newFixture(t)
	f.profiles.pool = []partner.UserProfile{
		testProfile("bob", "Bob"),
		testProfile("carol", "Carol"),
	}
	now := time.Now()
	f.connections.records = []partner.ConnectionRecord{
		{ID: "r1", RequesterID: "alice", RecipientID: "bob", Status: partner.StatusPending, UpdatedAt: now},
		{ID: "r2", RequesterID: "carol", RecipientID: "alice", Status: partner.StatusPending, UpdatedAt: now},
	}

	rec := f.do(t, http.MethodPost, "/api/partners/search", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp SearchResponse
	decodeInto(t, rec, &resp)

	byID := make(map[string]partner.MatchResult, len(resp.Results))
	for _, r := range resp.Results {
		byID[r.CandidateID] = r
	}

	bob := byID["bob"]
	if !bob.IsPendingSent || bob.IsPendingReceived {
		t.Errorf("bob pending flags = sent=%v received=%v, want sent only", bob.IsPendingSent, bob.IsPendingReceived)
	}
	carol := byID["carol"]
	if carol.IsPendingSent || !carol.IsPendingReceived {
		t.Errorf("carol pending flags = sent=%v received=%v, want received only", carol.IsPendingSent, carol.IsPendingReceived)
	}
}

func TestScoreEndpoint(t *testing.T) {
	f := newFixture(t)
	f.profiles.byID["bob"] = testProfile("bob", "Bob", course("c1", "CS101", "Intro to Programming"))

	rec := f.do(t, http.MethodGet, "/api/partners/bob/score", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp ScoreResponse
	decodeInto(t, rec, &resp)
	if resp.CandidateID != "bob" {
		t.Errorf("candidateId = %q, want bob", resp.CandidateID)
	}
	if resp.Result.Score <= 0 {
		t.Errorf("score = %d, want > 0 for overlapping profiles", resp.Result.Score)
	}
}

func TestScoreUnknownCandidate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/partners/ghost/score", "tok-alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCreateConnection(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/connections", "tok-alice", CreateConnectionRequest{RecipientID: "bob"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var created partner.ConnectionRecord
	decodeInto(t, rec, &created)
	if created.Status != partner.StatusPending {
		t.Errorf("status = %q, want pending", created.Status)
	}
	if len(f.events.published) != 1 || f.events.published[0] != "request" {
		t.Errorf("published events = %v, want [request]", f.events.published)
	}
}

func TestCreateConnectionErrors(t *testing.T) {
	f := newFixture(t)
	f.connections.records = []partner.ConnectionRecord{
		{ID: "r1", RequesterID: "alice", RecipientID: "bob", Status: partner.StatusPending},
	}

	tests := []struct {
		name       string
		recipient  string
		wantStatus int
	}{
		{"self request", "alice", http.StatusBadRequest},
		{"duplicate pair", "bob", http.StatusConflict},
		{"empty recipient", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/connections", "tok-alice", CreateConnectionRequest{RecipientID: tt.recipient})
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
	if len(f.events.published) != 0 {
		t.Errorf("published events = %v, want none on failed requests", f.events.published)
	}
}

func TestAcceptConnection(t *testing.T) {
	f := newFixture(t)
	f.connections.records = []partner.ConnectionRecord{
		{ID: "r1", RequesterID: "bob", RecipientID: "alice", Status: partner.StatusPending},
	}

	rec := f.do(t, http.MethodPost, "/api/connections/r1/accept", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var updated partner.ConnectionRecord
	decodeInto(t, rec, &updated)
	if updated.Status != partner.StatusAccepted {
		t.Errorf("status = %q, want accepted", updated.Status)
	}
	if len(f.events.published) != 1 || f.events.published[0] != "accept" {
		t.Errorf("published events = %v, want [accept]", f.events.published)
	}
}

func TestDeclineConnection(t *testing.T) {
	f := newFixture(t)
	f.connections.records = []partner.ConnectionRecord{
		{ID: "r1", RequesterID: "bob", RecipientID: "alice", Status: partner.StatusPending},
	}

	rec := f.do(t, http.MethodPost, "/api/connections/r1/decline", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var updated partner.ConnectionRecord
	decodeInto(t, rec, &updated)
	if updated.Status != partner.StatusDeclined {
		t.Errorf("status = %q, want declined", updated.Status)
	}
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	f.connections.records = []partner.ConnectionRecord{
		// Alice is the requester, not the recipient, so she cannot accept.
		{ID: "r1", RequesterID: "alice", RecipientID: "bob", Status: partner.StatusPending},
		{ID: "r2", RequesterID: "bob", RecipientID: "alice", Status: partner.StatusAccepted},
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"unknown id", "/api/connections/ghost/accept", http.StatusNotFound},
		{"wrong side", "/api/connections/r1/accept", http.StatusConflict},
		{"already accepted", "/api/connections/r2/accept", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, "tok-alice", nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestListConnectionsDecoratesWithScore(t *testing.T) {
	f := newFixture(t)
	f.profiles.byID["bob"] = testProfile("bob", "Bob", course("c1", "CS101", "Intro to Programming"))
	f.connections.records = []partner.ConnectionRecord{
		{ID: "r1", RequesterID: "bob", RecipientID: "alice", Status: partner.StatusAccepted},
		{ID: "r2", RequesterID: "alice", RecipientID: "ghost", Status: partner.StatusPending},
	}

	rec := f.do(t, http.MethodGet, "/api/connections", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Connections []ConnectionView `json:"connections"`
		Count       int              `json:"count"`
	}
	decodeInto(t, rec, &resp)

	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	for _, view := range resp.Connections {
		switch view.PartnerID {
		case "bob":
			if view.PartnerName != "Bob" {
				t.Errorf("bob partnerName = %q, want Bob", view.PartnerName)
			}
			if view.Score == nil || view.Score.Score <= 0 {
				t.Errorf("bob score = %+v, want positive score", view.Score)
			}
		case "ghost":
			// The counterpart profile is gone; the view degrades but survives.
			if view.Score != nil {
				t.Errorf("ghost score = %+v, want nil", view.Score)
			}
		default:
			t.Errorf("unexpected partner %q", view.PartnerID)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
