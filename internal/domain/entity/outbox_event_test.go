package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutboxStatusTransitions(t *testing.T) {
	assert.True(t, OutboxStatusNew.CanTransitionTo(OutboxStatusDispatched))
	assert.True(t, OutboxStatusNew.CanTransitionTo(OutboxStatusError))
	assert.True(t, OutboxStatusError.CanTransitionTo(OutboxStatusDispatched))
	assert.False(t, OutboxStatusDispatched.CanTransitionTo(OutboxStatusError))
	assert.False(t, OutboxStatusDispatched.CanTransitionTo(OutboxStatusNew))
	assert.False(t, OutboxStatusError.CanTransitionTo(OutboxStatusNew))

	assert.Equal(t, []OutboxStatus{OutboxStatusNew, OutboxStatusError}, StatusesBefore(OutboxStatusDispatched))
	assert.Equal(t, []OutboxStatus{OutboxStatusNew}, StatusesBefore(OutboxStatusError))
	assert.Empty(t, StatusesBefore(OutboxStatusNew))
}

func TestSourceRowID(t *testing.T) {
	cases := map[string]any{
		"int64":   int64(7),
		"int32":   int32(7),
		"float64": float64(7),
		"bytes":   []byte("7"),
		"string":  "7",
	}
	for name, v := range cases {
		id, err := SourceRow{"id": v}.ID("id")
		assert.NoError(t, err, name)
		assert.Equal(t, int64(7), id, name)
	}

	for name, row := range map[string]SourceRow{
		"missing":    {},
		"nil":        {"id": nil},
		"fractional": {"id": 7.5},
		"text":       {"id": "seven"},
		"bool":       {"id": true},
	} {
		_, err := row.ID("id")
		assert.Error(t, err, name)
	}
	assert.Equal(t, "contact.created:acme:7", EventID("contact.created", "acme", 7))
}
