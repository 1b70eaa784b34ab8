package ws

import (
	"encoding/json"
	"log"

	socketio "github.com/googollee/go-socket.io"

	"go_certhub/internal/db"
	"go_certhub/internal/model"
)

// RequestCertificatesData represents the data sent by client in the
// request:certificates event
type RequestCertificatesData struct {
	LastEventId int64 `json:"lastEventId"`
}

// CertificateListItem is the shape pushed to the admin live board
type CertificateListItem struct {
	ID               int    `json:"id"`
	UniqueCode       string `json:"unique_code"`
	VerificationCode string `json:"verification_code"`
	ParticipantName  string `json:"participant_name"`
	ActivityID       int    `json:"activity_id"`
	Status           string `json:"status"`
	RenderAttempts   int    `json:"render_attempts"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// handleRequestCertificates handles the request:certificates event
func handleRequestCertificates(s socketio.Conn, data interface{}) {
	// Parse lastEventId from data
	var lastEventId int64 = 0
	if dataMap, ok := data.(map[string]interface{}); ok {
		if lastEventIdFloat, ok := dataMap["lastEventId"].(float64); ok {
			lastEventId = int64(lastEventIdFloat)
		}
	}

	// If lastEventId is provided, try to send incremental updates
	if lastEventId > 0 {
		if sendIncrementalUpdates(s, lastEventId) {
			// Incremental updates sent successfully
			return
		}
		// If incremental updates failed, fall through to send full list
		log.Printf("[WebSocket] Incremental updates failed, falling back to full list")
	}

	// Send full list
	sendFullCertificatesList(s)
}

// sendIncrementalUpdates sends incremental updates to the client
// Returns true if successful, false if should fall back to full list
func sendIncrementalUpdates(s socketio.Conn, lastEventId int64) bool {
	// Query incremental events (limit to 500)
	maxCount := 500
	events, err := GetIncrementalEvents(lastEventId, maxCount)
	if err != nil {
		log.Printf("[WebSocket] Failed to query incremental events: %v", err)
		return false
	}

	// If too many events (>= maxCount), fall back to full list
	if len(events) >= maxCount {
		log.Printf("[WebSocket] Too many incremental events (%d), falling back to full list", len(events))
		return false
	}

	// If no events, send empty response
	if len(events) == 0 {
		latestEventId, _ := GetLatestEventId()
		s.Emit("certificates:initial", map[string]interface{}{
			"items":       []interface{}{},
			"total":       0,
			"lastEventId": latestEventId,
		})
		return true
	}

	// Send incremental updates
	for _, event := range events {
		// Parse payload
		var payload interface{}
		if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
			log.Printf("[WebSocket] Failed to unmarshal event payload: %v", err)
			continue
		}

		// Emit certificates:update event
		s.Emit("certificates:update", map[string]interface{}{
			"eventId": event.ID,
			"type":    event.EventType,
			"data":    payload,
		})
	}

	return true
}

// sendFullCertificatesList sends the full certificates list to the client
func sendFullCertificatesList(s socketio.Conn) {
	var total int64

	query := db.GetDB().Model(&model.Certificate{})

	// Count total
	if err := query.Count(&total).Error; err != nil {
		log.Printf("[WebSocket] Failed to count certificates: %v", err)
		s.Emit("error", map[string]interface{}{
			"message": "Failed to query certificates",
		})
		return
	}

	// Query all certificates (limit to 10000 for safety)
	var certs []model.Certificate
	if err := query.Order("id DESC").Limit(10000).Find(&certs).Error; err != nil {
		log.Printf("[WebSocket] Failed to query certificates: %v", err)
		s.Emit("error", map[string]interface{}{
			"message": "Failed to query certificates",
		})
		return
	}

	items := make([]CertificateListItem, 0, len(certs))
	for _, cert := range certs {
		item := CertificateListItem{
			ID:              cert.ID,
			UniqueCode:      cert.UniqueCode,
			ParticipantName: cert.ParticipantName,
			ActivityID:      cert.ActivityID,
			Status:          cert.Status,
			RenderAttempts:  cert.RenderAttempts,
			CreatedAt:       cert.CreatedAt.Format("2006-01-02 15:04:05"),
			UpdatedAt:       cert.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		if cert.VerificationCode != nil {
			item.VerificationCode = *cert.VerificationCode
		}
		items = append(items, item)
	}

	// Get latest event ID
	latestEventId, _ := GetLatestEventId()

	// Send certificates:initial event
	s.Emit("certificates:initial", map[string]interface{}{
		"items":       items,
		"total":       total,
		"lastEventId": latestEventId,
	})
}
