package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/outbox/payloads"
)

func TestDecodeEnvelope(t *testing.T) {
	occurred := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(PayloadEnvelope{
		Version:     EnvelopeVersion,
		EventID:     "evt-1",
		OccurredAt:  occurred,
		OrderingKey: "project-1",
		Actor:       &ActorRef{Source: "ledger"},
		Data:        json.RawMessage(`{"ok":true}`),
	})
	require.NoError(t, err)

	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, "project-1", env.OrderingKey)

	attrs := env.Attributes()
	require.Equal(t, "evt-1", attrs["event_id"])
	require.Equal(t, "ledger", attrs["source"])
	require.Equal(t, "1", attrs["version"])
	require.Equal(t, "2026-10-17T08:00:00Z", attrs["occurred_at"])
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":     `{`,
		"old version":  `{"version":0,"eventId":"e","occurredAt":"2026-10-17T00:00:00Z","data":{}}`,
		"no event id":  `{"version":1,"occurredAt":"2026-10-17T00:00:00Z","data":{}}`,
		"no timestamp": `{"version":1,"eventId":"e","data":{}}`,
		"null data":    `{"version":1,"eventId":"e","occurredAt":"2026-10-17T00:00:00Z","data":null}`,
	} {
		_, err := DecodeEnvelope([]byte(raw))
		require.ErrorIs(t, err, ErrMalformedEnvelope, name)
	}
}

func TestOrderingKeyFollowsProject(t *testing.T) {
	projectID, donationID := uuid.New(), uuid.New()
	event := DomainEvent{
		EventType:     enums.EventDonationCompleted,
		AggregateType: enums.AggregateDonation,
		AggregateID:   donationID,
		Data:          payloads.DonationCompletedEvent{DonationID: donationID, ProjectID: projectID},
	}
	require.NoError(t, validateEvent(event))
	require.Equal(t, projectID.String(), orderingKey(event))

	event.Data = payloads.ProjectFundingRebuiltEvent{ProjectID: projectID}
	require.Equal(t, donationID.String(), orderingKey(event))

	discrepancyID := uuid.New()
	event.Data = payloads.DiscrepancyRecordedEvent{DiscrepancyID: discrepancyID}
	require.Equal(t, discrepancyID.String(), orderingKey(event))
}

func TestValidateEvent(t *testing.T) {
	base := DomainEvent{
		EventType:     enums.EventProjectStatusChanged,
		AggregateType: enums.AggregateProject,
		AggregateID:   uuid.New(),
		Data:          payloads.ProjectStatusChangedEvent{},
	}
	require.NoError(t, validateEvent(base))

	bad := base
	bad.EventType = "project_deleted"
	require.Error(t, validateEvent(bad))

	bad = base
	bad.AggregateID = uuid.Nil
	require.Error(t, validateEvent(bad))

	bad = base
	bad.Data = nil
	require.Error(t, validateEvent(bad))

	require.Error(t, NewService(nil, nil).Emit(t.Context(), nil, base))
}
