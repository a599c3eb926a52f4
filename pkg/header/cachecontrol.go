package header

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// CacheControl implements parsing and serialization of the Cache-Control
// header field. Directive names are compared case-insensitively; arguments
// are accepted in both token and quoted-string form.
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl takes Cache-Control headers as a slice of strings
// and returns an instance of CacheControl.
func ParseCacheControl(headers []string) CacheControl {
	m := make(map[string]string)
	// last defined directive wins
	for _, header := range headers {
		for _, directive := range strings.Split(header, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			parts := strings.SplitN(directive, "=", 2)
			name := strings.ToLower(parts[0])
			var arg string
			if len(parts) > 1 {
				arg = strings.Trim(parts[1], "\"")
			}
			m[name] = arg
		}
	}
	return CacheControl{m}
}

// Get returns the argument of the specified directive,
// along with a boolean indicating whether the directive is present.
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[directive]
	return val, ok
}

// Has returns whether the specified directive is present.
func (c CacheControl) Has(directive string) bool {
	_, ok := c.directives[directive]
	return ok
}

// Duration returns the delta-seconds argument of the specified directive
// as a duration, along with a boolean indicating whether the directive
// was present with a valid argument.
func (c CacheControl) Duration(directive string) (time.Duration, bool) {
	val, ok := c.directives[directive]
	if !ok {
		return 0, false
	}
	seconds, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// Set adds or replaces a directive. An empty value means the directive
// takes no argument.
func (c *CacheControl) Set(directive, value string) {
	if c.directives == nil {
		c.directives = make(map[string]string)
	}
	c.directives[strings.ToLower(directive)] = value
}

// Del removes a directive if present.
func (c *CacheControl) Del(directive string) {
	delete(c.directives, strings.ToLower(directive))
}

// String serializes the directives back into a Cache-Control field value.
// Directives are sorted so the output is deterministic.
func (c CacheControl) String() string {
	names := make([]string, 0, len(c.directives))
	for name := range c.directives {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if val := c.directives[name]; val != "" {
			parts = append(parts, name+"="+val)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}
