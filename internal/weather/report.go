// Package weather implements the weather worker: it claims a place name from
// its mailbox, asks OpenWeather for current conditions and writes one
// normalized line to its result slot.
package weather

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedLine is returned by ParseLine for content that is not a
// normalized weather line.
var ErrMalformedLine = errors.New("malformed weather line")

// Report is one normalized weather observation.
type Report struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    int     `json:"humidity"`
}

// FormatLine renders r as "city,country,temp,condition,humidity," including
// the trailing comma read by existing consumers.
func FormatLine(r Report) string {
	fields := []string{
		r.City,
		r.Country,
		strconv.FormatFloat(r.Temperature, 'f', -1, 64),
		r.Condition,
		strconv.Itoa(r.Humidity),
	}
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f)
		b.WriteByte(',')
	}
	return b.String()
}

// ParseLine is the inverse of FormatLine. Surrounding whitespace and a missing
// trailing comma are tolerated.
func ParseLine(line string) (Report, error) {
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, ",")
	parts := strings.Split(line, ",")
	if len(parts) != 5 {
		return Report{}, fmt.Errorf("%w: want 5 fields, got %d", ErrMalformedLine, len(parts))
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil || math.IsNaN(temp) || math.IsInf(temp, 0) {
		return Report{}, fmt.Errorf("%w: temperature %q", ErrMalformedLine, parts[2])
	}
	humidity, err := parseHumidity(strings.TrimSpace(parts[4]))
	if err != nil {
		return Report{}, fmt.Errorf("%w: humidity %q", ErrMalformedLine, parts[4])
	}
	r := Report{
		City:        strings.TrimSpace(parts[0]),
		Country:     strings.TrimSpace(parts[1]),
		Temperature: temp,
		Condition:   strings.TrimSpace(parts[3]),
		Humidity:    humidity,
	}
	if r.City == "" || r.Country == "" || r.Condition == "" {
		return Report{}, fmt.Errorf("%w: empty field", ErrMalformedLine)
	}
	return r, nil
}

// parseHumidity accepts "30" and the "30.0" some writers emit.
func parseHumidity(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse humidity: %w", err)
	}
	return int(math.Round(f)), nil
}
