package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RequiredFields lists the keys every submission must carry.
var RequiredFields = []string{"title", "description", "start_time", "end_time", "latitude", "longitude", "categories"}

// ValidationError describes the first rule a submission violated.
type ValidationError struct {
	Message string
	// Fields holds the offending keys when the rule is field specific.
	Fields []string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string, fields ...string) *ValidationError {
	return &ValidationError{Message: msg, Fields: fields}
}

type coordinates struct {
	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`
}

var coordsValidator = validator.New()

// Validate checks a raw submission and returns the first violated rule as a
// *ValidationError, or nil when the submission can be normalized.
func Validate(raw map[string]any) error {
	var missing []string
	for _, key := range RequiredFields {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return invalid("Missing required fields: "+strings.Join(missing, ", "), missing...)
	}

	start, startErr := timestampField(raw, "start_time")
	end, endErr := timestampField(raw, "end_time")
	if startErr != nil || endErr != nil {
		return invalid("Invalid datetime format for start_time or end_time. Use ISO-8601.", "start_time", "end_time")
	}
	if !end.After(start) {
		return invalid("end_time must be after start_time.", "end_time")
	}

	lat, latOK := toFloat(raw["latitude"])
	lon, lonOK := toFloat(raw["longitude"])
	if !latOK || !lonOK {
		return invalid("latitude and longitude must be numbers.", "latitude", "longitude")
	}
	if err := checkCoordinates(lat, lon); err != nil {
		return err
	}

	if len(ListValues(raw["categories"])) == 0 {
		return invalid("categories must be a non-empty list or comma-separated string.", "categories")
	}

	if !nonBlankString(raw["title"]) || !nonBlankString(raw["description"]) {
		return invalid("title and description must be non-empty strings.", "title", "description")
	}

	if exp, ok := raw["expiration"]; ok && exp != nil {
		if _, err := timestampField(raw, "expiration"); err != nil {
			return invalid("Invalid datetime format for expiration. Use ISO-8601.", "expiration")
		}
	}
	return nil
}

func checkCoordinates(lat, lon float64) error {
	err := coordsValidator.Struct(coordinates{Latitude: lat, Longitude: lon})
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid("latitude and longitude must be numbers.", "latitude", "longitude")
	}
	if fieldErrs[0].Field() == "Latitude" {
		return invalid("latitude must be between -90 and 90.", "latitude")
	}
	return invalid("longitude must be between -180 and 180.", "longitude")
}

func timestampField(raw map[string]any, key string) (time.Time, error) {
	s, ok := raw[key].(string)
	if !ok {
		return time.Time{}, errTimestampFormat
	}
	return ParseTimestamp(s)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func nonBlankString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}
