package partner

// ConnectionState is a candidate's relationship to the current user as
// derived from existing connection records.
type ConnectionState struct {
	Status            ConnectionStatus
	IsPendingSent     bool
	IsPendingReceived bool
}

// ResolveConnection derives the connection state between the current user
// and a candidate from the current user's connection records. A record
// counts if it involves the candidate in either role.
//
// At most one record per pair is expected. If the store ever returns more
// (a data anomaly), the most recently updated record wins; equal update
// times fall back to the record id so the result stays deterministic.
func ResolveConnection(currentUserID, candidateID string, records []ConnectionRecord) ConnectionState {
	var found *ConnectionRecord
	for i := range records {
		rec := &records[i]
		involved := (rec.RequesterID == currentUserID && rec.RecipientID == candidateID) ||
			(rec.RequesterID == candidateID && rec.RecipientID == currentUserID)
		if !involved {
			continue
		}
		if found == nil || rec.UpdatedAt.After(found.UpdatedAt) ||
			(rec.UpdatedAt.Equal(found.UpdatedAt) && rec.ID > found.ID) {
			found = rec
		}
	}

	if found == nil {
		return ConnectionState{Status: StatusNone}
	}

	state := ConnectionState{Status: found.Status}
	if found.Status == StatusPending {
		state.IsPendingSent = found.RequesterID == currentUserID
		state.IsPendingReceived = !state.IsPendingSent
	}
	return state
}
