package header

import (
	"net/http"
	"testing"
	"time"
)

func TestHTTPDateIMF(t *testing.T) {
	date, err := HTTPDate("Sun, 06 Nov 1994 08:49:37 GMT")
	if err != nil {
		t.Fatal(err)
	}
	if date.Year() != 1994 || date.Month() != time.November {
		t.Fatalf("parsed as %v", date)
	}
}

func TestHTTPDateRFC850(t *testing.T) {
	if _, err := HTTPDate("Sunday, 06-Nov-94 08:49:37 GMT"); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPDateANSIC(t *testing.T) {
	if _, err := HTTPDate("Sun Nov  6 08:49:37 1994"); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPDateTZCase(t *testing.T) {
	if _, err := HTTPDate("Sun, 06 Nov 1994 08:49:37 gmt"); err != nil {
		t.Fatal(err)
	}
}

func TestFormatHTTPDateRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	parsed, err := HTTPDate(FormatHTTPDate(now))
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(now) {
		t.Fatalf("%v != %v", parsed, now)
	}
}

func TestGetList(t *testing.T) {
	h := make(http.Header)
	h.Add("Vary", "Accept, Accept-Encoding")
	h.Add("Vary", "Cookie")
	fields := GetList(h, "Vary")
	if len(fields) != 3 || fields[0] != "Accept" || fields[2] != "Cookie" {
		t.Fatalf("fields are %v", fields)
	}
}

func TestFieldAbsent(t *testing.T) {
	h := make(http.Header)
	if !FieldAbsent(h, "Authorization") {
		t.Fatal("missing field reported present")
	}
	h.Set("Authorization", "")
	if FieldAbsent(h, "Authorization") {
		t.Fatal("empty field reported absent")
	}
}
