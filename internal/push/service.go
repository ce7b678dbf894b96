package push

import (
	"encoding/json"
	"log"
	"time"

	"github.com/studylink/match-app/internal/messaging"
)

// Service bridges partner lifecycle events to per-user notification
// subjects. It subscribes to partner.* and republishes a Notification to
// notify.<user> for the user on the receiving end of each event: the
// recipient for a new request, the original requester for an accept or
// decline.
type Service struct {
	nats *messaging.NATSClient
}

// NewService creates a notification bridge over the given NATS client.
func NewService(nats *messaging.NATSClient) *Service {
	return &Service{nats: nats}
}

// Start subscribes to partner lifecycle events.
func (s *Service) Start() error {
	if err := s.nats.SubscribePartnerEvents(s.handleEvent); err != nil {
		return err
	}
	log.Println("[notifier] service started")
	return nil
}

func (s *Service) handleEvent(subject string, data []byte) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("[notifier] invalid event on %s: %v", subject, err)
		return
	}

	var notifType, targetID, fromID string
	switch subject {
	case messaging.SubjectPartnerRequest:
		notifType = TypePartnerRequest
		targetID = event.RecipientID
		fromID = event.RequesterID
	case messaging.SubjectPartnerAccept:
		notifType = TypePartnerAccepted
		targetID = event.RequesterID
		fromID = event.RecipientID
	case messaging.SubjectPartnerDecline:
		notifType = TypePartnerDeclined
		targetID = event.RequesterID
		fromID = event.RecipientID
	default:
		log.Printf("[notifier] unknown subject %s", subject)
		return
	}

	if targetID == "" {
		log.Printf("[notifier] event on %s has no target user", subject)
		return
	}

	notif := Notification{
		Type:         notifType,
		ConnectionID: event.ConnectionID,
		FromUserID:   fromID,
		FromName:     event.ActorName,
		Ts:           time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(notif)
	if err != nil {
		log.Printf("[notifier] marshal notification: %v", err)
		return
	}

	if err := s.nats.PublishNotify(targetID, payload); err != nil {
		log.Printf("[notifier] publish notify.%s: %v", targetID, err)
		return
	}

	log.Printf("[notifier] %s -> user=%s connection=%s", notifType, targetID, event.ConnectionID)
}
