// Package tooltip extracts a chronological key and named parameter values
// from the unstructured text a dashboard chart shows on hover.
//
// Dashboards render tooltips as free text ("Date: 15 - June | Active: 45.2 kW"),
// so extraction is layered heuristics: explicit "name: value" lookups for the
// requested parameters first, a "name - value" fallback, then an open-ended
// harvest of any remaining pairs so renamed or added series still surface.
package tooltip

import (
	"regexp"
	"strings"
)

// Sample is the parsed result of a single hover capture.
// Fields always contains an entry for every requested parameter; a nil value
// means the parameter was probed for but not present in the text, which is
// distinct from the parameter being absent from the map entirely.
type Sample struct {
	Key     string
	RawText string
	Fields  map[string]*string
}

var (
	timeRe = regexp.MustCompile(`\b([01]?\d|2[0-3]):[0-5]\d\b`)
	numRe  = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
)

// keyFieldName is the tooltip label that carries the day identity on
// daily charts. Intraday charts carry a bare HH:MM instead.
const keyFieldName = "Date"

// IsKeyName reports whether a parameter name denotes the chronological key
// rather than a measured series.
func IsKeyName(name string) bool {
	return strings.EqualFold(name, keyFieldName)
}

// Parse extracts the key and the target parameters from raw hover text.
// With an empty target list it runs in harvest-only mode and returns
// whatever "name: value" pairs the text contains (used for discovery).
func Parse(raw string, targets []string) Sample {
	s := Sample{RawText: raw, Fields: make(map[string]*string)}

	text := raw
	if m := timeRe.FindString(text); m != "" {
		s.Key = m
		// The time token is the key, not a field value.
		text = strings.Replace(text, m, "", 1)
	}

	captured := make(map[string]bool)
	for _, name := range targets {
		if IsKeyName(name) {
			continue
		}
		if v, ok := matchPair(text, name, `:`); ok {
			val := v
			s.Fields[name] = &val
			captured[strings.ToLower(name)] = true
		}
	}
	for _, name := range targets {
		if IsKeyName(name) || captured[strings.ToLower(name)] {
			continue
		}
		if v, ok := matchPair(text, name, `-`); ok {
			val := v
			s.Fields[name] = &val
			captured[strings.ToLower(name)] = true
		}
	}

	// Open-ended harvest: pick up pairs the target list did not ask for.
	for _, kv := range harvest(text) {
		low := strings.ToLower(kv.name)
		if captured[low] {
			continue
		}
		if IsKeyName(kv.name) && len(targets) > 0 {
			continue // the key field is handled below, not a data field
		}
		val := kv.value
		s.Fields[kv.name] = &val
		captured[low] = true
	}

	// Daily charts: the key is the day number inside the Date field.
	if s.Key == "" {
		if v, ok := matchPair(text, keyFieldName, `:`); ok {
			s.Key = Clean(v)
		} else if v, ok := matchPair(text, keyFieldName, `-`); ok {
			s.Key = Clean(v)
		}
	}

	// Requested parameters that never matched stay present as nil so
	// downstream code can tell "empty" from "absent".
	for _, name := range targets {
		if IsKeyName(name) {
			continue
		}
		if _, ok := s.Fields[name]; !ok {
			s.Fields[name] = nil
		}
	}
	return s
}

// matchPair searches case-insensitively for "<name> <sep> <value>", value
// running to the next pipe or line break.
func matchPair(text, name, sep string) (string, bool) {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\s*` + regexp.QuoteMeta(sep) + `\s*([^|\n]+)`)
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return "", false
	}
	return v, true
}

type pair struct {
	name  string
	value string
}

var harvestRe = regexp.MustCompile(`^\s*([A-Za-z][\w .%/()]*?)\s*[:-]\s*(.+)$`)

// harvest scans every pipe/newline-delimited segment for a "token: value"
// or "token - value" pair.
func harvest(text string) []pair {
	var out []pair
	seen := make(map[string]bool)
	for _, seg := range splitSegments(text) {
		m := harvestRe.FindStringSubmatch(seg)
		if len(m) < 3 {
			continue
		}
		name := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if name == "" || value == "" {
			continue
		}
		low := strings.ToLower(name)
		if seen[low] {
			continue
		}
		seen[low] = true
		out = append(out, pair{name: name, value: value})
	}
	return out
}

func splitSegments(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '|' || r == '\n' || r == '\r'
	})
}

// Clean reduces a value string to its first numeric substring
// ("29.88 A" -> "29.88"). Strings with no numeric content pass through
// unchanged, and already-clean numbers come back identical.
func Clean(s string) string {
	if m := numRe.FindString(s); m != "" {
		return m
	}
	return s
}
