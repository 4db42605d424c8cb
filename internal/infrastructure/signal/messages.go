package signal

import (
	"encoding/json"
	"net/http"

	"telecare/internal/core/domain"
	"telecare/internal/infrastructure/middleware"
)

const (
	TypeResult                 = "result"
	NotificationSessionChanged = "session_changed"
)

// Message is a command sent by a participant.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Result answers exactly one Message.
type Result struct {
	Type      string                    `json:"type"`
	RequestID string                    `json:"request_id,omitempty"`
	OK        bool                      `json:"ok"`
	Change    interface{}               `json:"change,omitempty"`
	Error     *middleware.ErrorResponse `json:"error,omitempty"`
}

// Notification tells the other participants that the session changed.
type Notification struct {
	Type   string               `json:"type"`
	Origin domain.ParticipantID `json:"origin"`
	Change *domain.Change       `json:"change"`
}

type endSessionPayload struct {
	Reason domain.EndReason `json:"reason"`
}

type targetPayload struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
}

type mutePayload struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Muted         bool                 `json:"muted"`
}

type permissionsPayload struct {
	ParticipantID domain.ParticipantID    `json:"participant_id"`
	Permissions   domain.PermissionsPatch `json:"permissions"`
}

type invitePayload struct {
	Email   string      `json:"email"`
	Name    string      `json:"name"`
	Role    domain.Role `json:"role"`
	Message string      `json:"message,omitempty"`
}

type consentPayload struct {
	ConsentType string `json:"consent_type"`
	Granted     bool   `json:"granted"`
}

type issuePayload struct {
	Description string `json:"description"`
}

type qualityPayload struct {
	Quality float64 `json:"quality"`
}

// rtcpPayload carries a compound RTCP packet, base64 encoded on the wire.
type rtcpPayload struct {
	Packets []byte `json:"packets"`
}

type qualityResult struct {
	Quality float64 `json:"quality"`
}

func errorResult(requestID string, err error) Result {
	_, body := middleware.NewErrorResponse(err)
	return Result{Type: TypeResult, RequestID: requestID, Error: &body}
}

func changeOf(out interface{}) *domain.Change {
	switch v := out.(type) {
	case *domain.Change:
		return v
	case *domain.EndResult:
		return &v.Change
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, status int, body middleware.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
