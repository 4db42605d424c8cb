package services

import (
	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"
)

// Action names a caller-initiated operation that the transports check
// before handing it to a session. Operations that carry their own actor
// (mute, permission changes, invitations) are checked by the session itself.
type Action string

const (
	ActionStartSession      Action = "start_session"
	ActionEndSession        Action = "end_session"
	ActionPauseSession      Action = "pause_session"
	ActionResumeSession     Action = "resume_session"
	ActionMinimizeSession   Action = "minimize_session"
	ActionMaximizeSession   Action = "maximize_session"
	ActionUpdateMedia       Action = "update_media"
	ActionStopScreenShare   Action = "stop_screen_share"
	ActionStopRecording     Action = "stop_recording"
	ActionRemoveParticipant Action = "remove_participant"
	ActionViewState         Action = "view_state"
	ActionViewInvitations   Action = "view_invitations"
	ActionViewCompliance    Action = "view_compliance"
)

// Authorize decides whether the caller identified by claims may perform
// action on sess. target is only consulted for ActionRemoveParticipant.
func Authorize(sess ports.TelehealthSession, claims *domain.ParticipantClaims, action Action, target domain.ParticipantID) error {
	if claims == nil {
		return errors.NewUnauthorizedError("missing caller identity")
	}
	if claims.SessionID != sess.ID() {
		return errors.NewPermissionError(errors.ErrCodeInsufficientPermissions, "token was issued for another session").
			WithDetail("session_id", sess.ID())
	}
	caller := claims.ParticipantID

	switch action {
	case ActionStartSession:
		// The roster is empty until the session starts, so the token role decides.
		if !claims.Role.IsModerator() {
			return errors.NewInsufficientPermissionsError("start session").
				WithDetail("role", claims.Role)
		}
		return nil

	case ActionEndSession, ActionPauseSession, ActionResumeSession:
		return sess.RequirePermission(caller, domain.PermEndSession)

	case ActionStopRecording:
		return sess.RequirePermission(caller, domain.PermRecordSession)

	case ActionStopScreenShare:
		if sess.GetSessionState().Session.ScreenSharer == caller {
			return requireConnected(sess, caller)
		}
		return sess.RequirePermission(caller, domain.PermMuteOthers)

	case ActionRemoveParticipant:
		if target == caller {
			return nil
		}
		return requireModerator(sess, caller)

	case ActionUpdateMedia:
		// Media settings may be prepared by a moderator before anyone joins.
		if sess.GetSessionState().Session.Status == domain.SessionWaiting && claims.Role.IsModerator() {
			return nil
		}
		return requireConnected(sess, caller)

	case ActionMinimizeSession, ActionMaximizeSession:
		return requireConnected(sess, caller)

	case ActionViewState:
		if claims.Role.IsModerator() {
			return nil
		}
		_, err := sess.GetParticipant(caller)
		return err

	case ActionViewInvitations:
		return holds(sess, caller, domain.PermInviteParticipants)

	case ActionViewCompliance:
		return holds(sess, caller, domain.PermAccessMedicalRecords)
	}

	return errors.NewInvalidInputError("unknown action").WithDetail("action", action)
}

func requireConnected(sess ports.TelehealthSession, id domain.ParticipantID) error {
	p, err := sess.GetParticipant(id)
	if err != nil {
		return err
	}
	if !p.IsConnected {
		return errors.NewInsufficientPermissionsError("session control").
			WithDetail("reason", "participant is not connected")
	}
	return nil
}

func requireModerator(sess ports.TelehealthSession, id domain.ParticipantID) error {
	p, err := sess.GetParticipant(id)
	if err != nil {
		return err
	}
	if !p.IsConnected || !p.Role.IsModerator() {
		return errors.NewInsufficientPermissionsError("manage participants")
	}
	return nil
}

// holds checks a permission without requiring a live connection, so records
// stay readable after the session has ended.
func holds(sess ports.TelehealthSession, id domain.ParticipantID, permission string) error {
	p, err := sess.GetParticipant(id)
	if err != nil {
		return err
	}
	if !p.Permissions.Has(permission) {
		return errors.NewInsufficientPermissionsError(permission)
	}
	return nil
}
