package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the newest envelope layout; Emit always writes it.
const CurrentVersion = 1

// ActorRef identifies who caused the event.
type ActorRef struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// as the pub/sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// OpenEnvelope decodes raw and checks the fields every reader relies on.
// Version 0 is read as 1, which predates the field.
func OpenEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version == 0 {
		env.Version = 1
	}
	data := bytes.TrimSpace(env.Data)
	switch {
	case env.Version < 0 || env.Version > CurrentVersion:
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	case strings.TrimSpace(env.EventID) == "":
		return env, errors.New("envelope eventId missing")
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return env, errors.New("envelope data missing")
	}
	env.Data = data
	return env, nil
}

var liveMomentNamespace = uuid.MustParse("6f1c3b1e-2d4a-5c8e-9b7f-0a1d2e3f4a5b")

// LiveMomentAggregateID maps a feed-assigned moment id onto a stable uuid so
// moment events can share the uuid aggregate column.
func LiveMomentAggregateID(momentID string) uuid.UUID {
	return uuid.NewSHA1(liveMomentNamespace, []byte(momentID))
}
