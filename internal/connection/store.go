// Package connection provides PostgreSQL-backed storage for partner
// connection records: the durable representation of a request and its
// pending/accepted/declined lifecycle. Records only ever move forward
// through status transitions and are never deleted.
package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/studylink/match-app/internal/partner"
)

var (
	// ErrNotFound is returned when no matching connection record exists.
	ErrNotFound = errors.New("connection: not found")

	// ErrAlreadyExists is returned when a record between the two users
	// already exists in any status.
	ErrAlreadyExists = errors.New("connection: already exists")

	// ErrNotPending is returned when accepting or declining a record
	// that is not in pending status or does not belong to the caller.
	ErrNotPending = errors.New("connection: not a pending request for this user")

	// ErrSelfConnection is returned when a user requests themself.
	ErrSelfConnection = errors.New("connection: cannot connect to self")
)

// Store manages connection records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a connection store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListForUser returns every connection record involving the user in either
// role, most recently updated first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]partner.ConnectionRecord, error) {
	const query = `
		SELECT id, requester_id, recipient_id, status, created_at, updated_at
		FROM connections
		WHERE requester_id = $1 OR recipient_id = $1
		ORDER BY updated_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("connection: list for %s: %w", userID, err)
	}
	defer rows.Close()

	var records []partner.ConnectionRecord
	for rows.Next() {
		var rec partner.ConnectionRecord
		if err := rows.Scan(&rec.ID, &rec.RequesterID, &rec.RecipientID,
			&rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("connection: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("connection: list rows: %w", err)
	}
	return records, nil
}

// Request creates a pending connection record from requester to recipient.
// The unique pair index guarantees at most one record between two users;
// a second request in either direction returns ErrAlreadyExists.
func (s *Store) Request(ctx context.Context, requesterID, recipientID string) (*partner.ConnectionRecord, error) {
	if requesterID == recipientID {
		return nil, ErrSelfConnection
	}

	rec := partner.ConnectionRecord{
		ID:          uuid.New().String(),
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      partner.StatusPending,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	const query = `
		INSERT INTO connections (id, requester_id, recipient_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RequesterID, rec.RecipientID, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("connection: request: %w", err)
	}
	return &rec, nil
}

// Accept transitions a pending request to accepted. Only the recipient of
// the request may accept it.
func (s *Store) Accept(ctx context.Context, id, recipientID string) (*partner.ConnectionRecord, error) {
	return s.transition(ctx, id, recipientID, partner.StatusAccepted)
}

// Decline transitions a pending request to declined. Only the recipient of
// the request may decline it.
func (s *Store) Decline(ctx context.Context, id, recipientID string) (*partner.ConnectionRecord, error) {
	return s.transition(ctx, id, recipientID, partner.StatusDeclined)
}

func (s *Store) transition(ctx context.Context, id, recipientID string, to partner.ConnectionStatus) (*partner.ConnectionRecord, error) {
	const query = `
		UPDATE connections
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND recipient_id = $3 AND status = 'pending'
		RETURNING id, requester_id, recipient_id, status, created_at, updated_at`

	var rec partner.ConnectionRecord
	err := s.db.QueryRowContext(ctx, query, to, id, recipientID).Scan(
		&rec.ID, &rec.RequesterID, &rec.RecipientID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing record from a wrong-state one.
		var exists bool
		checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM connections WHERE id = $1)`, id).Scan(&exists)
		if checkErr == nil && !exists {
			return nil, ErrNotFound
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("connection: transition %s to %s: %w", id, to, err)
	}
	return &rec, nil
}
