package schedule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeTemplates_Envelopes(t *testing.T) {
	entries := `[
		{"id": "t1", "name": "BCG", "targetAgeMonths": 0},
		{"id": "t2", "name": "Rotavirus", "targetAgeWeeks": 6}
	]`

	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "bare array",
			input: entries,
		},
		{
			name:  "items envelope",
			input: `{"items": ` + entries + `}`,
		},
		{
			name:  "data.items envelope",
			input: `{"data": {"items": ` + entries + `}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates := ShapeTemplates(json.RawMessage(tt.input))

			require.Len(t, templates, 2)
			assert.Equal(t, "BCG", templates[0].Name)
			require.NotNil(t, templates[0].TargetAgeMonths)
			assert.Equal(t, float64(0), *templates[0].TargetAgeMonths)
			assert.Nil(t, templates[0].TargetAgeWeeks)

			require.NotNil(t, templates[1].TargetAgeWeeks)
			assert.Equal(t, 6, *templates[1].TargetAgeWeeks)
			assert.Nil(t, templates[1].TargetAgeMonths)
		})
	}
}

func TestShapeTemplates_Normalization(t *testing.T) {
	input := `[
		{"id": "t1", "name": "MMR", "targetAgeMonths": 12, "targetAgeWeeks": 52},
		{"id": "t2", "name": "BCG"},
		{"id": "t3", "targetAgeMonths": 2},
		{"id": "t4", "name": "Varicella", "targetAgeMonths": 15, "notes": "second dose optional"}
	]`

	templates := ShapeTemplates(json.RawMessage(input))
	require.Len(t, templates, 3) // nameless t3 dropped

	// Both units set: months wins, weeks dropped
	assert.NotNil(t, templates[0].TargetAgeMonths)
	assert.Nil(t, templates[0].TargetAgeWeeks)

	// Neither unit set: defaults to newborn
	require.NotNil(t, templates[1].TargetAgeMonths)
	assert.Equal(t, float64(0), *templates[1].TargetAgeMonths)

	assert.Equal(t, "second dose optional", templates[2].Notes)
}

func TestShapeTemplates_Garbage(t *testing.T) {
	assert.Empty(t, ShapeTemplates(nil))
	assert.Empty(t, ShapeTemplates(json.RawMessage(`"nope"`)))
	assert.Empty(t, ShapeTemplates(json.RawMessage(`{"unexpected": true}`)))
	assert.Empty(t, ShapeTemplates(json.RawMessage(`[42, "foo"]`)))
}

func TestShapeCountries(t *testing.T) {
	input := `{"items": [
		{"countryId": "UY", "countryName": "Uruguay", "items": []},
		{"countryId": "AR", "countryName": "Argentina", "items": []},
		{"countryName": "missing id"}
	]}`

	countries := ShapeCountries(json.RawMessage(input))

	require.Len(t, countries, 2)
	assert.Equal(t, Country{ID: "UY", Name: "Uruguay"}, countries[0])
	assert.Equal(t, Country{ID: "AR", Name: "Argentina"}, countries[1])
}
