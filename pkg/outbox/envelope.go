package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is stamped on events that do not pick their own version.
const EnvelopeVersion = 1

// ActorRef names the user whose request produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and sent to brokers unchanged.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var errEmptyData = errors.New("envelope has no data")

// DecodeEnvelope parses a stored payload and rejects envelopes whose data is empty or null.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if d := bytes.TrimSpace(env.Data); len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return env, errEmptyData
	}
	return env, nil
}

func sealEnvelope(ev DomainEvent) ([]byte, string, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, "", fmt.Errorf("encode %s data: %w", ev.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    ev.Version,
		EventID:    uuid.NewString(),
		OccurredAt: ev.OccurredAt,
		Actor:      ev.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = EnvelopeVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	raw, err := json.Marshal(env)
	return raw, env.EventID, err
}
