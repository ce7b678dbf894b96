// Package push delivers partner-connection notifications to users. The API
// service publishes lifecycle events to NATS; the notifier service turns
// each event into a per-user notification and fans it out over WebSocket
// to any sockets that user has open.
package push

// Event is the NATS payload published by the API service when a connection
// record is created or transitions status.
type Event struct {
	ConnectionID string `json:"connection_id"`
	RequesterID  string `json:"requester_id"`
	RecipientID  string `json:"recipient_id"`
	ActorName    string `json:"actor_name,omitempty"` // display name of the acting user
	SentAt       int64  `json:"sent_at"`              // unix millis
}

// Notification types delivered to clients.
const (
	TypePartnerRequest  = "partner_request"
	TypePartnerAccepted = "partner_accepted"
	TypePartnerDeclined = "partner_declined"
)

// Notification is the payload written to a user's notification socket.
type Notification struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	FromUserID   string `json:"from_user_id"`
	FromName     string `json:"from_name,omitempty"`
	Ts           int64  `json:"ts"` // unix millis
}
