// Package alerts is a typed client for the upstream alerts API.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
)

const DefaultBaseURL = "http://localhost:8001"

const dateLayout = "2006-01-02"

type Client struct {
	http    *http.Client
	baseURL *url.URL
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.baseURL = u
		}
	}
}

func New(opts ...Option) *Client {
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:    http.DefaultClient,
		baseURL: u,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) getJSON(ctx context.Context, p string, q map[string]string, out any) error {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	qq := u.Query()
	for k, v := range q {
		qq.Set(k, v)
	}
	u.RawQuery = qq.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %s: %s", p, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// AlertsForDate returns all alerts published on the given YYYY-MM-DD day.
func (c *Client) AlertsForDate(ctx context.Context, date string) ([]Alert, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	var out []Alert
	err := c.getJSON(ctx, "/alerts", map[string]string{"date": date}, &out)
	return out, err
}

// Alert fetches a single alert by its public ID.
func (c *Client) Alert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	var out Alert
	if err := c.getJSON(ctx, "/alerts/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopEntities returns the upstream entity ranking. The ranking is raw
// extraction output; pass it through entity.Resolve before display.
func (c *Client) TopEntities(ctx context.Context, limit int) ([]EntityCount, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []EntityCount
	err := c.getJSON(ctx, "/stats/top_entities", map[string]string{"limit": fmt.Sprint(limit)}, &out)
	return out, err
}

// SeverityStats returns alert counts per severity band over the trailing 30
// days.
func (c *Client) SeverityStats(ctx context.Context) ([]SeverityCount, error) {
	var out []SeverityCount
	err := c.getJSON(ctx, "/stats/severity", nil, &out)
	return out, err
}

// DailyCounts returns alerts-per-day for the last N days.
func (c *Client) DailyCounts(ctx context.Context, days int) ([]DailyCount, error) {
	var out []DailyCount
	err := c.getJSON(ctx, "/stats/counts", daysParam(days), &out)
	return out, err
}

// AvgViolence returns the average violence score per day for the last N days.
func (c *Client) AvgViolence(ctx context.Context, days int) ([]DailyScore, error) {
	var out []DailyScore
	err := c.getJSON(ctx, "/stats/avg_violence", daysParam(days), &out)
	return out, err
}

// ActivitiesByDay returns per-activity alert counts per day for the last N
// days.
func (c *Client) ActivitiesByDay(ctx context.Context, days int) ([]DayActivities, error) {
	var out []DayActivities
	err := c.getJSON(ctx, "/stats/activities", daysParam(days), &out)
	return out, err
}

// GeoJSON returns the upstream map FeatureCollection, either for one date or
// for the last N days. The payload is passed through untouched.
func (c *Client) GeoJSON(ctx context.Context, days int, date string) (json.RawMessage, error) {
	q := daysParam(days)
	if date != "" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", date, err)
		}
		q["date"] = date
	}
	var out json.RawMessage
	err := c.getJSON(ctx, "/map/geojson", q, &out)
	return out, err
}

func daysParam(days int) map[string]string {
	q := map[string]string{}
	if days > 0 {
		q["days"] = fmt.Sprint(days)
	}
	return q
}
