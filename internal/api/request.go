package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/common/validation"
	"recommend-workers/internal/recommendation/pipeline"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// query is the decoded query string shared by both recommendation endpoints.
type query struct {
	Category     string   `validate:"omitempty,max=32"`
	Limit        int      `validate:"gte=0"`
	Offset       int      `validate:"gte=0"`
	Query        string   `validate:"max=256"`
	SeenIDs      []string `validate:"max=1000,dive,required"`
	Lat          *float64 `validate:"omitempty,gte=-90,lte=90"`
	Lng          *float64 `validate:"omitempty,gte=-180,lte=180"`
	RadiusMeters *float64 `validate:"omitempty,gte=0"`
	SortBy       string
	Mode         string `validate:"omitempty,oneof=discover decide feed"`
	TasteProfile string
	UserID       string   `validate:"max=128"`
	Moods        []string `validate:"dive,required"`
	MaxPrice     *int     `validate:"omitempty,gte=1,lte=4"`
	MaxMinutes   *int     `validate:"omitempty,gte=0"`
	Sections     []string `validate:"dive,required"`
}

type recommendationsQuery struct {
	Category string `validate:"required"`
}

func parseQuery(v url.Values) (*query, error) {
	q := &query{
		Category:     strings.TrimSpace(v.Get("category")),
		Query:        v.Get("query"),
		SeenIDs:      splitList(v.Get("seen_ids")),
		SortBy:       v.Get("sort_by"),
		Mode:         v.Get("mode"),
		TasteProfile: v.Get("taste_profile"),
		UserID:       v.Get("user_id"),
		Moods:        splitList(v.Get("mood")),
		Sections:     splitList(v.Get("sections")),
	}

	var err error
	if q.Limit, err = intParam(v, "limit"); err != nil {
		return nil, err
	}
	if q.Offset, err = intParam(v, "offset"); err != nil {
		return nil, err
	}
	if q.Lat, err = floatParam(v, "lat"); err != nil {
		return nil, err
	}
	if q.Lng, err = floatParam(v, "lng"); err != nil {
		return nil, err
	}
	if q.RadiusMeters, err = floatParam(v, "radius_meters"); err != nil {
		return nil, err
	}
	if q.MaxPrice, err = optionalIntParam(v, "max_price"); err != nil {
		return nil, err
	}
	if q.MaxMinutes, err = optionalIntParam(v, "max_minutes"); err != nil {
		return nil, err
	}

	if err := validateStruct(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *query) toRequest() (*pipeline.Request, error) {
	taste, err := validation.ParseTasteProfile([]byte(q.TasteProfile))
	if err != nil {
		return nil, err
	}
	return &pipeline.Request{
		Category:     q.Category,
		Limit:        q.Limit,
		Offset:       q.Offset,
		Query:        q.Query,
		SeenIDs:      q.SeenIDs,
		Lat:          q.Lat,
		Lng:          q.Lng,
		RadiusMeters: q.RadiusMeters,
		SortBy:       q.SortBy,
		Mode:         q.Mode,
		TasteProfile: taste,
		UserID:       q.UserID,
		Moods:        q.Moods,
		MaxPrice:     q.MaxPrice,
		MaxMinutes:   q.MaxMinutes,
	}, nil
}

// validateStruct maps the first validator failure to INVALID_REQUEST.
func validateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.NewInvalidRequestError(fieldMessage(fe))
	}
	return apperrors.NewInvalidRequestError(err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds maximum %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidRequestError(name + " must be an integer")
	}
	return n, nil
}

func optionalIntParam(v url.Values, name string) (*int, error) {
	if v.Get(name) == "" {
		return nil, nil
	}
	n, err := intParam(v, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func floatParam(v url.Values, name string) (*float64, error) {
	raw := v.Get(name)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(name + " must be a number")
	}
	return &f, nil
}
