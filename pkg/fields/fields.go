// Package fields normalizes individual cell values: calendar dates, lists of
// dates, and human-readable durations.
package fields

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultSentinel is substituted for dates that cannot be parsed. It sorts
// after any real deadline so downstream consumers treat the program as open.
const DefaultSentinel = "2099-09-09"

// ListSeparator separates multiple values inside a single cell.
const ListSeparator = ";"

// ISODate is the output layout for every parsed date.
const ISODate = "2006-01-02"

var dateLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006",
}

// ErrInvalidDuration is returned by DurationToISO for unrecognized input.
var ErrInvalidDuration = errors.New("invalid duration")

var durationPattern = regexp.MustCompile(`(?i)^(\d+)\s+(days|weeks|months)$`)

// ParseDate parses a form date (M/D/YYYY, optionally followed by HH:MM:SS)
// and returns it as YYYY-MM-DD.
func ParseDate(s string) (string, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return "", errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(ISODate), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// ParseDateOrSentinel is ParseDate that substitutes sentinel on failure.
// An empty sentinel means DefaultSentinel.
func ParseDateOrSentinel(s, sentinel string) string {
	if out, err := ParseDate(s); err == nil {
		return out
	}
	if sentinel == "" {
		return DefaultSentinel
	}
	return sentinel
}

// ParseDateList splits s on ";" and parses each trimmed entry. Entries that
// fail to parse are kept as trimmed text. The result always has one element
// per split segment.
func ParseDateList(s string) []string {
	parts := strings.Split(s, ListSeparator)
	out := make([]string, len(parts))
	for i, part := range parts {
		entry := strings.TrimSpace(part)
		if parsed, err := ParseDate(entry); err == nil {
			out[i] = parsed
			continue
		}
		out[i] = entry
	}
	return out
}

// JoinList encodes values back into a single cell.
func JoinList(values []string) string {
	return strings.Join(values, ListSeparator)
}

// SplitList decodes a cell produced by JoinList. An empty cell yields nil.
// Empty segments are kept so the entry count matches ParseDateList.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ListSeparator)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// DurationToISO converts "<N> days|weeks|months" into an ISO-8601 duration
// (P<N>D, P<N>W, P<N>M).
func DurationToISO(s string) (string, error) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	var unit string
	switch strings.ToLower(m[2]) {
	case "days":
		unit = "D"
	case "weeks":
		unit = "W"
	case "months":
		unit = "M"
	}
	return "P" + m[1] + unit, nil
}
