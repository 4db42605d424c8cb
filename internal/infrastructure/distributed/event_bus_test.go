package distributed

import (
	"encoding/json"
	"testing"

	"telecare/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvitationFromEvent(t *testing.T) {
	inv := domain.Invitation{ID: "inv-1", SessionID: "s1", Role: domain.RoleInterpreter}
	payload, err := json.Marshal(inv)
	require.NoError(t, err)

	raw, err := json.Marshal(Event{Type: EventInvitationCreated, InstanceID: "a", SessionID: "s1", Payload: payload})
	require.NoError(t, err)

	event, err := decodeEvent(string(raw))
	require.NoError(t, err)
	got, err := InvitationFromEvent(event)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, domain.RoleInterpreter, got.Role)

	_, err = InvitationFromEvent(&Event{Type: EventSessionEnded})
	assert.Error(t, err)
}

func TestDecodeEvent_RejectsGarbage(t *testing.T) {
	_, err := decodeEvent("not json")
	assert.Error(t, err)
}

func TestSessionOwnership_ReleaseUnknownIsNoop(t *testing.T) {
	o := NewSessionOwnership(nil, 0, nil)
	o.Release(t.Context(), "unknown")
	assert.Empty(t, o.Held())
}
