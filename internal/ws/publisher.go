package ws

import (
	"encoding/json"
	"fmt"
	"log"

	"go_certhub/internal/db"
	"go_certhub/internal/model"
)

// certificatesTopic is the durable event stream for certificate lifecycle
// changes. Clients resume from their last seen event id after a reconnect.
const certificatesTopic = "certificates"

// PublishCertificateEvent publishes a certificate event to the database and
// broadcasts it.
// eventType: a lifecycle status ("issued", "revoked", ...) or "delete"
// payload: the certificate data to be sent to clients
func PublishCertificateEvent(eventType string, payload interface{}) error {
	// 1. Serialize payload to JSON
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WebSocket] Failed to marshal payload: %v", err)
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// 2. Write event to database
	event := model.WSEvent{
		Topic:     certificatesTopic,
		EventType: eventType,
		Payload:   string(payloadJSON),
	}

	if err := db.GetDB().Create(&event).Error; err != nil {
		log.Printf("[WebSocket] Failed to write event to database: %v", err)
		return fmt.Errorf("failed to write event to database: %w", err)
	}

	// 3. Broadcast event to all connected clients
	// Note: Broadcast failure should not affect the main flow
	broadcastData := map[string]interface{}{
		"eventId": event.ID,
		"type":    eventType,
		"data":    payload,
	}

	// Broadcast to all clients (no room filtering for now)
	BroadcastToAll("certificates:update", broadcastData)

	return nil
}

// GetIncrementalEvents retrieves incremental events from the database
// Returns events with id > lastEventId, limited to maxCount
func GetIncrementalEvents(lastEventId int64, maxCount int) ([]model.WSEvent, error) {
	var events []model.WSEvent

	err := db.GetDB().
		Where("topic = ? AND id > ?", certificatesTopic, lastEventId).
		Order("id ASC").
		Limit(maxCount).
		Find(&events).Error

	if err != nil {
		return nil, fmt.Errorf("failed to query incremental events: %w", err)
	}

	return events, nil
}

// GetLatestEventId retrieves the latest event ID from the database
func GetLatestEventId() (int64, error) {
	var event model.WSEvent

	err := db.GetDB().
		Where("topic = ?", certificatesTopic).
		Order("id DESC").
		Limit(1).
		First(&event).Error

	if err != nil {
		// No events yet
		return 0, nil
	}

	return event.ID, nil
}
