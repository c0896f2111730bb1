package promexec

import (
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/common/model"
)

var relativePattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseTimeBound parses a query time bound. Relative offsets like "1h"
// are subtracted from now; absolute bounds accept RFC3339 and a few
// common ISO-8601 shapes. Empty or unparseable input yields def.
func ParseTimeBound(s string, def, now time.Time) time.Time {
	if s == "" {
		return def
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		var unit time.Duration
		switch m[2] {
		case "s":
			unit = time.Second
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit)
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return def
}

// ParseStep parses a range query step, defaulting to one minute.
func ParseStep(s string) time.Duration {
	if s == "" {
		return time.Minute
	}
	if d, ok := ParseScrapeInterval(s); ok {
		return d
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return time.Minute
}

// ParseScrapeInterval parses Prometheus duration notation (500ms, 15s,
// 1m, 2h).
func ParseScrapeInterval(s string) (time.Duration, bool) {
	d, err := model.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, false
	}
	return time.Duration(d), true
}
