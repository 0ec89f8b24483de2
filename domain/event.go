package domain

import "time"

// StatusActive is assigned to submissions that do not carry a status.
const StatusActive = "active"

// Event represents a single catalog entry as it is persisted.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Day         string    `json:"day"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Categories  []string  `json:"categories"`
	Status      string    `json:"status"`
	Expiration  time.Time `json:"expiration"`
}

// Feature is the GeoJSON wrapper returned when an event is created.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   Point             `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// Point is a GeoJSON point geometry. Coordinates are [longitude, latitude].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// FeatureProperties carries every stored field except the coordinates.
type FeatureProperties struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Day         string    `json:"day"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Categories  []string  `json:"categories"`
	Status      string    `json:"status"`
	Expiration  time.Time `json:"expiration"`
}

// NewFeature wraps a stored event into a GeoJSON point feature.
func NewFeature(ev Event) Feature {
	return Feature{
		Type: "Feature",
		Geometry: Point{
			Type:        "Point",
			Coordinates: [2]float64{ev.Longitude, ev.Latitude},
		},
		Properties: FeatureProperties{
			ID:          ev.ID,
			Title:       ev.Title,
			Description: ev.Description,
			Day:         ev.Day,
			StartTime:   ev.StartTime,
			EndTime:     ev.EndTime,
			Categories:  ev.Categories,
			Status:      ev.Status,
			Expiration:  ev.Expiration,
		},
	}
}
