package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	event, err := New(TypeVaccineCreated, "child-1", &VaccineChange{
		ChildID:  "child-1",
		RecordID: "r1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, Source, event.Source)
	assert.Equal(t, TypeVaccineCreated, event.Type)
	assert.Equal(t, SpecVersion, event.SpecVersion)
	assert.Equal(t, DataContentType, event.DataContentType)
	assert.Equal(t, "child-1", event.Subject)
	assert.NotZero(t, event.Time)

	change := &VaccineChange{}
	require.NoError(t, json.Unmarshal(event.Data, change))
	assert.Equal(t, "r1", change.RecordID)
}

func TestNew_EmptyType(t *testing.T) {
	_, err := New("", "", nil)
	assert.Error(t, err)
}

func TestNew_RawPayloadPassesThrough(t *testing.T) {
	raw := json.RawMessage(`{"screen":"vaccines"}`)

	event, err := New(TypeAnalyticsTrack, "", raw)
	require.NoError(t, err)

	assert.JSONEq(t, string(raw), string(event.Data))
}
