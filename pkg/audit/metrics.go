package audit

import "time"

// BreakdownDimension defines valid group-by dimensions.
type BreakdownDimension string

const (
	// BreakdownByEventType groups by event type.
	BreakdownByEventType BreakdownDimension = "event_type"

	// BreakdownBySeries groups by series name.
	BreakdownBySeries BreakdownDimension = "series_name"

	// BreakdownByCreator groups by creator.
	BreakdownByCreator BreakdownDimension = "creator"

	// BreakdownByElement groups by element name.
	BreakdownByElement BreakdownDimension = "element_name"
)

// ValidBreakdownDimensions is the set of allowed group-by values.
var ValidBreakdownDimensions = map[BreakdownDimension]bool{
	BreakdownByEventType: true,
	BreakdownBySeries:    true,
	BreakdownByCreator:   true,
	BreakdownByElement:   true,
}

// BreakdownFilter controls breakdown query parameters.
type BreakdownFilter struct {
	GroupBy   BreakdownDimension
	Limit     int
	StartTime *time.Time
	EndTime   *time.Time
}

// BreakdownEntry holds the number of events for a single dimension value.
type BreakdownEntry struct {
	Dimension string `json:"dimension"`
	Count     int    `json:"count"`
}

// dimensionValue returns the value of e for the dimension.
func dimensionValue(e Event, d BreakdownDimension) string {
	switch d {
	case BreakdownByEventType:
		return string(e.Type)
	case BreakdownBySeries:
		return e.Series
	case BreakdownByCreator:
		return e.Creator
	case BreakdownByElement:
		return e.ElementName
	default:
		return ""
	}
}
