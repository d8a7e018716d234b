package alerts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity is the coarse risk classification of an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities low < medium < high. Unknown bands rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// Known reports whether s is one of the three defined bands.
func (s Severity) Known() bool { return s.Rank() > 0 }

// Entity is a named item extracted from alert text.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Alert is one flagged content item as returned by the upstream API.
type Alert struct {
	ID            string     `json:"id"`
	NewID         uuid.UUID  `json:"new_id"`
	Source        string     `json:"source"`
	Title         string     `json:"title"`
	Summary       string     `json:"summary"`
	PublishedAt   *time.Time `json:"published_at"`
	ViolenceScore float64    `json:"violence_score"`
	FetchedAt     time.Time  `json:"fetched_at"`
	Entities      []Entity   `json:"entities"`
	Activities    []string   `json:"activities"`
	SeverityBand  Severity   `json:"severity_band"`
	Language      string     `json:"language"`
	ImageURL      string     `json:"image_url"`
	Lon           *float64   `json:"lon"`
	Lat           *float64   `json:"lat"`
}

// EntityCount is one row of the upstream top-entities ranking.
type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// SeverityCount is one row of the upstream severity distribution.
type SeverityCount struct {
	SeverityBand Severity `json:"severity_band"`
	Count        int      `json:"count"`
}

// DailyCount is an alerts-per-day data point.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DailyScore is an average-violence-score-per-day data point.
type DailyScore struct {
	Date     string  `json:"date"`
	AvgScore float64 `json:"avg_score"`
}

// DayActivities is one day of per-activity alert counts. Upstream flattens
// the activity names into the JSON object next to "date", so this type
// carries a custom codec.
type DayActivities struct {
	Date   string
	Counts map[string]int
}

func (d *DayActivities) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Counts = make(map[string]int, len(raw))
	for k, v := range raw {
		if k == "date" {
			if err := json.Unmarshal(v, &d.Date); err != nil {
				return err
			}
			continue
		}
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		d.Counts[k] = n
	}
	return nil
}

func (d DayActivities) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Counts)+1)
	out["date"] = d.Date
	for k, v := range d.Counts {
		out[k] = v
	}
	return json.Marshal(out)
}
