package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/internal/core/services"
	"telecare/pkg/errors"
)

// Command types accepted on the control socket.
const (
	CmdStartSession      = "start_session"
	CmdEndSession        = "end_session"
	CmdPauseSession      = "pause_session"
	CmdResumeSession     = "resume_session"
	CmdMinimizeSession   = "minimize_session"
	CmdMaximizeSession   = "maximize_session"
	CmdUpdateMedia       = "update_media"
	CmdStartScreenShare  = "start_screen_share"
	CmdStopScreenShare   = "stop_screen_share"
	CmdStartRecording    = "start_recording"
	CmdStopRecording     = "stop_recording"
	CmdMuteParticipant   = "mute_participant"
	CmdUpdatePermissions = "update_permissions"
	CmdRemoveParticipant = "remove_participant"
	CmdLeaveSession      = "leave_session"
	CmdInviteParticipant = "invite_participant"
	CmdRecordConsent     = "record_consent"
	CmdReportIssue       = "report_issue"
	CmdConnectionQuality = "connection_quality"
	CmdRTCPReport        = "rtcp_report"
	CmdGetState          = "get_state"
)

func decode(msg Message, v interface{}) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return errors.NewInvalidInputError(fmt.Sprintf("invalid %s payload", msg.Type)).
			WithDetail("cause", err.Error())
	}
	return nil
}

// dispatch maps a command onto the session. The authenticated participant
// is always the actor; payloads never name the caller.
func (s *WebSocketServer) dispatch(ctx context.Context, sess ports.TelehealthSession, claims *domain.ParticipantClaims, msg Message) (interface{}, error) {
	caller := claims.ParticipantID
	authorize := func(action services.Action, target domain.ParticipantID) error {
		return services.Authorize(sess, claims, action, target)
	}

	switch msg.Type {
	case CmdStartSession:
		if err := authorize(services.ActionStartSession, ""); err != nil {
			return nil, err
		}
		return sess.StartSession(ctx)

	case CmdEndSession:
		var p endSessionPayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		if p.Reason != "" && !p.Reason.Valid() {
			return nil, errors.NewInvalidInputError(fmt.Sprintf("unknown end reason %q", p.Reason))
		}
		if err := authorize(services.ActionEndSession, ""); err != nil {
			return nil, err
		}
		result, err := sess.EndSession(ctx, p.Reason)
		if err != nil {
			return nil, err
		}
		if s.deps.Publisher != nil {
			if err := s.deps.Publisher.PublishSessionEnded(ctx, result); err != nil {
				s.logger.Warnw("Failed to publish session end", "session_id", sess.ID(), "error", err)
			}
		}
		return result, nil

	case CmdPauseSession:
		if err := authorize(services.ActionPauseSession, ""); err != nil {
			return nil, err
		}
		return sess.PauseSession(ctx)

	case CmdResumeSession:
		if err := authorize(services.ActionResumeSession, ""); err != nil {
			return nil, err
		}
		return sess.ResumeSession(ctx)

	case CmdMinimizeSession:
		if err := authorize(services.ActionMinimizeSession, ""); err != nil {
			return nil, err
		}
		return sess.MinimizeSession(ctx)

	case CmdMaximizeSession:
		if err := authorize(services.ActionMaximizeSession, ""); err != nil {
			return nil, err
		}
		return sess.MaximizeSession(ctx)

	case CmdUpdateMedia:
		var patch domain.MediaSettingsPatch
		if err := decode(msg, &patch); err != nil {
			return nil, err
		}
		if err := authorize(services.ActionUpdateMedia, ""); err != nil {
			return nil, err
		}
		return sess.UpdateMediaSettings(ctx, patch)

	case CmdStartScreenShare:
		return sess.StartScreenShare(ctx, caller)

	case CmdStopScreenShare:
		if err := authorize(services.ActionStopScreenShare, ""); err != nil {
			return nil, err
		}
		return sess.StopScreenShare(ctx)

	case CmdStartRecording:
		return sess.StartRecording(ctx, caller)

	case CmdStopRecording:
		if err := authorize(services.ActionStopRecording, ""); err != nil {
			return nil, err
		}
		return sess.StopRecording(ctx)

	case CmdMuteParticipant:
		var p mutePayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		return sess.MuteParticipant(ctx, p.ParticipantID, p.Muted, caller)

	case CmdUpdatePermissions:
		var p permissionsPayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		return sess.UpdateParticipantPermissions(ctx, caller, p.ParticipantID, p.Permissions)

	case CmdRemoveParticipant:
		var p targetPayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		if err := authorize(services.ActionRemoveParticipant, p.ParticipantID); err != nil {
			return nil, err
		}
		return sess.RemoveParticipant(ctx, p.ParticipantID)

	case CmdLeaveSession:
		return sess.RemoveParticipant(ctx, caller)

	case CmdInviteParticipant:
		var p invitePayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		return sess.InviteParticipant(ctx, domain.InviteRequest{
			InvitedBy: caller,
			Email:     p.Email,
			Name:      p.Name,
			Role:      p.Role,
			Message:   p.Message,
		})

	case CmdRecordConsent:
		var p consentPayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		return sess.RecordConsent(ctx, caller, p.ConsentType, p.Granted)

	case CmdReportIssue:
		var p issuePayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		return sess.ReportTechnicalIssue(ctx, caller, p.Description)

	case CmdConnectionQuality:
		var p qualityPayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		if err := sess.ReportConnectionQuality(ctx, caller, p.Quality); err != nil {
			return nil, err
		}
		return qualityResult{Quality: p.Quality}, nil

	case CmdRTCPReport:
		if s.deps.Quality == nil {
			return nil, errors.NewInvalidInputError("rtcp reports are not accepted by this server")
		}
		var p rtcpPayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		quality, err := s.deps.Quality.HandleRaw(ctx, sess, caller, p.Packets)
		if err != nil {
			if errors.GetTelehealthError(err) == nil {
				return nil, errors.NewInvalidInputError(err.Error())
			}
			return nil, err
		}
		return qualityResult{Quality: quality}, nil

	case CmdGetState:
		if err := authorize(services.ActionViewState, ""); err != nil {
			return nil, err
		}
		return sess.GetSessionState(), nil

	case "":
		return nil, errors.NewInvalidInputError("message type is required")
	}

	return nil, errors.NewInvalidInputError(fmt.Sprintf("unknown message type: %s", msg.Type))
}
