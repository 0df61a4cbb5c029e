package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.PIPELINE_COMPLETED", Subject("PIPELINE_COMPLETED"))
}

func TestDecode(t *testing.T) {
	evt, err := Decode("events.PIPELINE_FAILED", []byte(`{
		"type": "PIPELINE_FAILED",
		"data": {"stage": "types"},
		"occurred_at": "2026-03-01T12:00:00Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "PIPELINE_FAILED", evt.EventType())
	assert.Equal(t, "types", evt.Payload()["stage"])
	assert.True(t, evt.Timestamp().Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestDecodeFallsBackToSubject(t *testing.T) {
	evt, err := Decode("events.REGENERATION_COMPLETED", []byte(`{"data": {}}`))
	require.NoError(t, err)
	assert.Equal(t, "REGENERATION_COMPLETED", evt.EventType())
	assert.False(t, evt.Timestamp().IsZero())

	_, err = Decode("events.X", []byte(`nope`))
	assert.Error(t, err)
}
