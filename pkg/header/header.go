// Package header implements parsing and manipulation of the HTTP header
// fields a shared cache cares about: Cache-Control, HTTP dates, and
// comma-separated list fields such as Vary.
package header

import (
	"net/http"
	"strings"
)

// GetList returns the elements of a comma-separated list field,
// whitespace-trimmed, with empty elements dropped.
func GetList(header http.Header, field string) []string {
	elements := make([]string, 0)
	for _, value := range header.Values(field) {
		for _, element := range strings.Split(value, ",") {
			element = strings.TrimSpace(element)
			if element != "" {
				elements = append(elements, element)
			}
		}
	}
	return elements
}

// FieldAbsent returns whether the named field is missing from the headers.
// An empty field value counts as present.
func FieldAbsent(header http.Header, field string) bool {
	return header.Values(field) == nil
}

// Copy adds all values from src to dst.
func Copy(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}
