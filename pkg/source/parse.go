package source

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// parseISODuration parses ISO-8601 durations such as "PT1M30S" into seconds.
// Unparseable input yields 0.
func parseISODuration(s string) float64 {
	m := isoDurationRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0
	}
	var total float64
	for i, mult := range []float64{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0
		}
		total += v * mult
	}
	return total
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts unix seconds (number or numeric string) and the common
// ISO layouts. It returns the zero time when nothing matches; the caller
// substitutes the scoring time.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case nil:
		return time.Time{}
	case float64:
		if t <= 0 {
			return time.Time{}
		}
		return time.Unix(int64(t), 0).UTC()
	case json.Number:
		if n, err := t.Int64(); err == nil && n > 0 {
			return time.Unix(n, 0).UTC()
		}
		return parseTime(t.String())
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return time.Unix(n, 0).UTC()
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

// truncate cuts s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen])
}

// hashtag strips leading hashes and surrounding space from a query.
func hashtag(query string) string {
	return strings.TrimLeft(strings.TrimSpace(query), "#")
}

// Loosely typed accessors for scraper payloads, where a field may arrive as
// a number, a numeric string or not at all.

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	}
	return 0
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	}
	return ""
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// firstInt64 returns the first non-zero numeric value among keys.
func firstInt64(raw map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if n := asInt64(raw[k]); n != 0 {
			return n
		}
	}
	return 0
}

// firstString returns the first non-empty string value among keys.
func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(raw[k]); s != "" {
			return s
		}
	}
	return ""
}
