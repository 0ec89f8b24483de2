package domain

// Normalize converts a submission that passed Validate into its stored form.
// Timestamps are kept as full UTC instants and the day is derived from the
// start time unless the submission carries a valid explicit day.
func Normalize(raw map[string]any) Event {
	start, _ := timestampField(raw, "start_time")
	end, _ := timestampField(raw, "end_time")
	lat, _ := toFloat(raw["latitude"])
	lon, _ := toFloat(raw["longitude"])

	ev := Event{
		ID:          idValue(raw["id"]),
		Title:       stringValue(raw["title"]),
		Description: stringValue(raw["description"]),
		Day:         DayOf(start),
		StartTime:   start,
		EndTime:     end,
		Latitude:    lat,
		Longitude:   lon,
		Categories:  ListValues(raw["categories"]),
		Status:      StatusActive,
		Expiration:  end,
	}
	if day, ok := raw["day"].(string); ok {
		if d, valid := ParseDay(day); valid {
			ev.Day = d
		}
	}
	if status := stringValue(raw["status"]); status != "" {
		ev.Status = status
	}
	if _, ok := raw["expiration"]; ok {
		if exp, err := timestampField(raw, "expiration"); err == nil {
			ev.Expiration = exp
		}
	}
	return ev
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// idValue keeps truthy caller ids. Empty strings, zero, false and null drop
// the id so one is assigned on insert.
func idValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return ""
	case float64:
		if val == 0 {
			return ""
		}
	}
	return stringify(v)
}
