package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenEnvelope(t *testing.T) {
	env, err := OpenEnvelope([]byte(`{"eventId":"e1","data":  {"a":1} }`))
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version, "missing version reads as 1")
	assert.JSONEq(t, `{"a":1}`, string(env.Data))

	for name, raw := range map[string]string{
		"not json":       `nope`,
		"future version": `{"version":2,"eventId":"e1","data":{}}`,
		"blank event id": `{"version":1,"eventId":" ","data":{}}`,
		"null data":      `{"version":1,"eventId":"e1","data":null}`,
		"missing data":   `{"version":1,"eventId":"e1"}`,
	} {
		_, err := OpenEnvelope([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestLiveMomentAggregateIDIsStable(t *testing.T) {
	assert.Equal(t, LiveMomentAggregateID("walkoff-1"), LiveMomentAggregateID("walkoff-1"))
	assert.NotEqual(t, LiveMomentAggregateID("walkoff-1"), LiveMomentAggregateID("walkoff-2"))
}
