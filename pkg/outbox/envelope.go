package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the only envelope layout this build writes and reads.
const EnvelopeVersion = 1

// ErrMalformedEnvelope marks rows that can never be published as stored.
var ErrMalformedEnvelope = errors.New("malformed outbox envelope")

// ActorRef identifies who produced the event. System-driven events
// (processor notifications, scheduled jobs) carry only a Source.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Source string     `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
// OrderingKey groups events that subscribers must see in commit order; for
// ledger events it is the project id.
type PayloadEnvelope struct {
	Version     int             `json:"version"`
	EventID     string          `json:"eventId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	OrderingKey string          `json:"orderingKey,omitempty"`
	Actor       *ActorRef       `json:"actor,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and rejects envelopes a subscriber
// could not interpret.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	switch {
	case env.Version != EnvelopeVersion:
		return env, fmt.Errorf("%w: unsupported version %d", ErrMalformedEnvelope, env.Version)
	case env.EventID == "":
		return env, fmt.Errorf("%w: missing eventId", ErrMalformedEnvelope)
	case env.OccurredAt.IsZero():
		return env, fmt.Errorf("%w: missing occurredAt", ErrMalformedEnvelope)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, fmt.Errorf("%w: missing data", ErrMalformedEnvelope)
	}
	return env, nil
}

// Attributes are the message attributes subscribers filter on.
func (e PayloadEnvelope) Attributes() map[string]string {
	attrs := map[string]string{
		"event_id":    e.EventID,
		"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"version":     fmt.Sprint(e.Version),
	}
	if e.Actor != nil && e.Actor.Source != "" {
		attrs["source"] = e.Actor.Source
	}
	return attrs
}
