package header

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const imfDateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

// HTTPDate parses an HTTP-date field value. All three formats mandated by
// the standard are accepted: IMF-fixdate, the obsolete RFC 850 format, and
// ANSI C asctime.
func HTTPDate(dateStr string) (time.Time, error) {
	if date, err := imfDate(dateStr); err == nil {
		return date, nil
	}
	return obsDate(dateStr)
}

// FormatHTTPDate serializes a time in the preferred IMF-fixdate format.
// http.TimeFormat carries the literal GMT zone the grammar requires;
// formatting with imfDateLayout would render the zone as UTC.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func imfDate(dateStr string) (time.Time, error) {
	date, err := time.Parse(imfDateLayout, normalizeDateStr(dateStr))
	if err != nil {
		return date, err
	}
	if date.Location().String() != "GMT" {
		return date, fmt.Errorf("date %s is not in GMT time, but %s", date, date.Location())
	}
	return date, nil
}

func obsDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date, nil
	}
	return time.Parse(time.ANSIC, str)
}

// HTTP-date is case sensitive, but cache recipients are allowed to relax
// this. Uppercasing makes e.g. "gmt" timezones parse.
func normalizeDateStr(dateStr string) string {
	return strings.ToUpper(dateStr)
}
