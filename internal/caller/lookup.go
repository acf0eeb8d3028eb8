package caller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/resort-relay/internal/facts"
	"github.com/JakeFAU/resort-relay/internal/weather"
)

// DefaultQuery is used when the front-end submits nothing or its placeholder.
const DefaultQuery = "Arapahoe Basin,Silverthorne,Arapahoe Basin"

// placeholderQuery is the label the legacy form submits when untouched.
const placeholderQuery = "Get Info"

// Query names a resort, the town used for weather and the article searched
// for facts.
type Query struct {
	Resort   string `json:"resort"`
	Location string `json:"location"`
	Search   string `json:"search"`
}

// ParseQuery splits "resort,location,search". Missing location or search
// fall back to the resort name.
func ParseQuery(raw string) Query {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == placeholderQuery {
		raw = DefaultQuery
	}
	parts := strings.SplitN(raw, ",", 3)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	q := Query{Resort: parts[0]}
	if len(parts) > 1 {
		q.Location = parts[1]
	}
	if len(parts) > 2 {
		q.Search = parts[2]
	}
	if q.Location == "" {
		q.Location = q.Resort
	}
	if q.Search == "" {
		q.Search = q.Resort
	}
	return q
}

// WeatherPart is the weather half of a Report.
type WeatherPart struct {
	Available bool            `json:"available"`
	Report    *weather.Report `json:"report,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// FactsPart is the facts half of a Report.
type FactsPart struct {
	Available bool           `json:"available"`
	Capsule   *facts.Capsule `json:"capsule,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Report combines both lookups for one resort.
type Report struct {
	Query   Query       `json:"query"`
	Weather WeatherPart `json:"weather"`
	Facts   FactsPart   `json:"facts"`
}

// Lookup runs both hand-offs concurrently. A failed half is reported as
// unavailable and never fails the other; only an ended ctx is returned as
// an error.
func (c *Caller) Lookup(ctx context.Context, rawQuery string) (Report, error) {
	q := ParseQuery(rawQuery)
	report := Report{Query: q}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w, err := c.Weather(ctx, q.Location)
		if err != nil {
			report.Weather.Error = err.Error()
			return
		}
		report.Weather = WeatherPart{Available: true, Report: &w}
	}()
	go func() {
		defer wg.Done()
		f, err := c.Facts(ctx, q.Search)
		if err != nil {
			report.Facts.Error = err.Error()
			return
		}
		report.Facts = FactsPart{Available: true, Capsule: &f}
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("lookup: %w", err)
	}
	return report, nil
}
