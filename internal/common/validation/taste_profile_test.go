package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/models"
)

func TestParseTasteProfile_ListForm(t *testing.T) {
	profile, err := ParseTasteProfile([]byte(`{
		"restaurants": {"tags": [{"tag": "Japanese", "weight": 1.8}, {"tag": "Ramen", "weight": 0.6}], "avg_price_rated": 2.5},
		"movies": {"tags": []}
	}`))
	require.NoError(t, err)

	rest := profile[models.CategoryRestaurants]
	require.Len(t, rest.Tags, 2)
	assert.Equal(t, models.TagWeight{Tag: "Japanese", Weight: 1.8}, rest.Tags[0])
	require.NotNil(t, rest.AvgPriceRated)
	assert.Equal(t, 2.5, *rest.AvgPriceRated)
	assert.Contains(t, profile, models.CategoryMovies)
}

func TestParseTasteProfile_MapForm(t *testing.T) {
	profile, err := ParseTasteProfile([]byte(`{"books": {"tags": {"scifi": 0.4, "mystery": 0.9, "art": 0.4}}}`))
	require.NoError(t, err)

	assert.Equal(t, []models.TagWeight{
		{Tag: "mystery", Weight: 0.9},
		{Tag: "art", Weight: 0.4},
		{Tag: "scifi", Weight: 0.4},
	}, profile[models.CategoryBooks].Tags)
}

func TestParseTasteProfile_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "null", " null\n"} {
		profile, err := ParseTasteProfile([]byte(raw))
		require.NoError(t, err, "payload %q", raw)
		assert.Nil(t, profile)
	}

	profile, err := ParseTasteProfile(nil)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestParseTasteProfile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"not json", `{"restaurants":`, "not valid JSON"},
		{"not an object", `[1,2]`, "Invalid type"},
		{"negative weight", `{"movies": {"tags": [{"tag": "noir", "weight": -1}]}}`, "tags"},
		{"missing tag name", `{"movies": {"tags": [{"weight": 0.5}]}}`, "tags"},
		{"price out of range", `{"restaurants": {"avg_price_rated": 7}}`, "avg_price_rated"},
		{"unknown category", `{"cars": {"tags": []}}`, "unknown category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTasteProfile([]byte(tt.payload))
			require.Error(t, err)
			stdErr := apperrors.AsStandardError(err)
			assert.Equal(t, apperrors.ErrCodeInvalidTasteProfile, stdErr.Code)
			assert.Contains(t, stdErr.Details, tt.want)
		})
	}
}
