package recall

import (
	"fmt"
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseDateInput parses an explicit range bound given by an operator. A bare
// date expands to the first second of the day for a start bound and to
// 23:59:59 for an end bound. RFC3339 values keep their own offset; other
// layouts are read in loc. An empty input yields nil.
func ParseDateInput(s string, isEnd bool, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}

	if d, err := time.ParseInLocation(dateOnly, s, loc); err == nil {
		if isEnd {
			d = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc)
		}
		return &d, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD, YYYY-MM-DDTHH:MM:SS or RFC3339", s)
}
