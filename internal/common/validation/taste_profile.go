package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/models"
)

// tasteProfileSchema accepts, per category, tags either as a list of
// {tag, weight} or as a {tag: weight} map.
var tasteProfileSchema = map[string]interface{}{
	"type": "object",
	"additionalProperties": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tags": map[string]interface{}{
				"oneOf": []interface{}{
					map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type":     "object",
							"required": []interface{}{"tag", "weight"},
							"properties": map[string]interface{}{
								"tag":    map[string]interface{}{"type": "string", "minLength": 1},
								"weight": map[string]interface{}{"type": "number", "minimum": 0},
							},
						},
					},
					map[string]interface{}{
						"type": "object",
						"additionalProperties": map[string]interface{}{
							"type": "number", "minimum": 0,
						},
					},
				},
			},
			"avg_price_rated": map[string]interface{}{
				"type":    []interface{}{"number", "null"},
				"minimum": 0,
				"maximum": 4,
			},
		},
	},
}

type wireTaste struct {
	Tags          json.RawMessage `json:"tags"`
	AvgPriceRated *float64        `json:"avg_price_rated"`
}

// ParseTasteProfile validates a taste_profile payload and converts it to the
// model form. Empty input and JSON null yield a nil profile.
func ParseTasteProfile(raw []byte) (map[models.Category]models.CategoryTaste, error) {
	if trimmed := strings.TrimSpace(string(raw)); trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.NewInvalidTasteProfileError(fmt.Sprintf("not valid JSON: %v", err))
	}

	result, err := ValidateDocument(tasteProfileSchema, doc)
	if err != nil {
		return nil, apperrors.NewInvalidTasteProfileError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidTasteProfileError(strings.Join(result.Messages(), "; "))
	}

	var wire map[string]wireTaste
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, apperrors.NewInvalidTasteProfileError(err.Error())
	}

	out := make(map[models.Category]models.CategoryTaste, len(wire))
	for key, w := range wire {
		category, ok := models.ParseCategory(key)
		if !ok {
			return nil, apperrors.NewInvalidTasteProfileError(fmt.Sprintf("unknown category %q", key))
		}
		tags, err := decodeTags(w.Tags)
		if err != nil {
			return nil, apperrors.NewInvalidTasteProfileError(fmt.Sprintf("%s.tags: %v", key, err))
		}
		out[category] = models.CategoryTaste{Tags: tags, AvgPriceRated: w.AvgPriceRated}
	}
	return out, nil
}

func decodeTags(raw json.RawMessage) ([]models.TagWeight, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []models.TagWeight
		err := json.Unmarshal(raw, &list)
		return list, err
	}

	var byTag map[string]float64
	if err := json.Unmarshal(raw, &byTag); err != nil {
		return nil, err
	}
	list := make([]models.TagWeight, 0, len(byTag))
	for tag, weight := range byTag {
		list = append(list, models.TagWeight{Tag: tag, Weight: weight})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Weight != list[j].Weight {
			return list[i].Weight > list[j].Weight
		}
		return list[i].Tag < list[j].Tag
	})
	return list, nil
}
