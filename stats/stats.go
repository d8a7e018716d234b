// Package stats computes the dashboard aggregations over alert lists:
// per-activity rollups, weekday counts and severity distribution.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/sentinelhq/alertdeck/alerts"
)

// maxSampleEntities caps how many entity strings an activity row carries.
const maxSampleEntities = 5

// ActivityRow is one line of the per-day activity table: how often an
// activity was tagged, the worst severity it reached, and a few of the
// entities involved.
type ActivityRow struct {
	Activity    string          `json:"activity"`
	Count       int             `json:"count"`
	Percentage  int             `json:"percentage"`
	MaxSeverity alerts.Severity `json:"max_severity"`
	Entities    []string        `json:"entities"`
}

// SummarizeActivities rolls a day's alerts up by activity tag. Alerts
// without activities count under "other"; alerts without a severity band
// count as low. Rows whose worst severity stayed low are dropped, the rest
// are sorted by severity rank and then count, both descending.
func SummarizeActivities(list []alerts.Alert) []ActivityRow {
	type acc struct {
		count       int
		maxSeverity alerts.Severity
		entities    []string
		seen        map[string]bool
	}

	byActivity := make(map[string]*acc)
	var order []string

	for _, a := range list {
		sev := a.SeverityBand
		if sev == "" {
			sev = alerts.SeverityLow
		}
		acts := a.Activities
		if len(acts) == 0 {
			acts = []string{"other"}
		}
		for _, act := range acts {
			row, ok := byActivity[act]
			if !ok {
				row = &acc{maxSeverity: sev, seen: make(map[string]bool)}
				byActivity[act] = row
				order = append(order, act)
			}
			row.count++
			if sev.Rank() > row.maxSeverity.Rank() {
				row.maxSeverity = sev
			}
			for _, e := range a.Entities {
				if e.Text != "" && !row.seen[e.Text] {
					row.seen[e.Text] = true
					row.entities = append(row.entities, e.Text)
				}
			}
		}
	}

	total := len(list)
	rows := make([]ActivityRow, 0, len(order))
	for _, act := range order {
		a := byActivity[act]
		if a.maxSeverity == alerts.SeverityLow {
			continue
		}
		samples := a.entities
		if len(samples) > maxSampleEntities {
			samples = samples[:maxSampleEntities]
		}
		rows = append(rows, ActivityRow{
			Activity:    act,
			Count:       a.count,
			Percentage:  int(math.Round(float64(a.count) / float64(total) * 100)),
			MaxSeverity: a.maxSeverity,
			Entities:    samples,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if d := rows[i].MaxSeverity.Rank() - rows[j].MaxSeverity.Rank(); d != 0 {
			return d > 0
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// WeekdayCount is the number of alerts published on one weekday.
type WeekdayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// CountByWeekday buckets alerts by publication weekday, Sunday through
// Saturday. Alerts without a publication time fall back to fetch time.
func CountByWeekday(list []alerts.Alert) []WeekdayCount {
	counts := make([]int, 7)
	for _, a := range list {
		ts := a.FetchedAt
		if a.PublishedAt != nil {
			ts = *a.PublishedAt
		}
		counts[int(ts.Weekday())]++
	}

	out := make([]WeekdayCount, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		out[d] = WeekdayCount{Day: d.String()[:3], Count: counts[d]}
	}
	return out
}

// SeverityShare is one slice of the severity donut.
type SeverityShare struct {
	Band    alerts.Severity `json:"severity_band"`
	Count   int             `json:"count"`
	Percent int             `json:"percent"`
}

// SeverityDistribution counts alerts per known severity band, with each
// band's rounded share of the classified alerts. Unknown bands are ignored.
func SeverityDistribution(list []alerts.Alert) []SeverityShare {
	counts := make(map[alerts.Severity]int)
	total := 0
	for _, a := range list {
		if a.SeverityBand.Known() {
			counts[a.SeverityBand]++
			total++
		}
	}

	bands := []alerts.Severity{alerts.SeverityLow, alerts.SeverityMedium, alerts.SeverityHigh}
	out := make([]SeverityShare, 0, len(bands))
	for _, b := range bands {
		share := SeverityShare{Band: b, Count: counts[b]}
		if total > 0 {
			share.Percent = int(math.Round(float64(counts[b]) / float64(total) * 100))
		}
		out = append(out, share)
	}
	return out
}
