// Package reconcile aligns a chart-derived dataset with the authoritative
// rows from the backing store and produces a keyed, field-by-field
// comparison. Chart parameter names and store column names are not
// guaranteed to agree, so fields are paired by a tiered matching strategy
// before any values are compared.
package reconcile

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"chartaudit/internal/series"
	"chartaudit/internal/tooltip"
)

// Tolerance is the absolute difference under which two numeric values are
// considered equal.
const Tolerance = 0.01

// ErrNoMatchingData marks a comparison where both sides were empty: no keys
// in common and none missing. Callers must not present that as a clean
// empty report.
var ErrNoMatchingData = errors.New("reconcile: no matching data on either side")

// Reference is the store-side dataset with its native column names intact.
type Reference struct {
	KeyColumn string
	Columns   []string // native order, key column excluded
	Keys      []string // row order as returned by the store
	Rows      map[string]map[string]any
}

// Mapping pairs one chart parameter with one reference column. Tier records
// which strategy made the pair; tier TierPositional pairs carry no semantic
// basis and should be discounted by report consumers.
type Mapping struct {
	ChartField string
	RefField   string
	Tier       int
}

const (
	TierExact      = 1
	TierCaseFold   = 2
	TierSubstring  = 3
	TierPositional = 4
)

// Row is one line of the comparison artifact. Missing is "" for a value
// comparison, or "chart"/"reference" for a sentinel row recording that the
// key exists on only one side (one sentinel per key, not per field).
type Row struct {
	Key        string
	Parameter  string
	ChartValue any
	RefValue   any
	Difference any // float64, or "N/A" when the comparison fell back to strings
	Match      bool
	Tier       int
	Missing    string
}

// Report is the complete comparison output.
type Report struct {
	Category            series.Category
	Rows                []Row
	Mappings            []Mapping
	UnmappedChartFields []string
	Mismatches          int
	MissingInChart      int
	MissingInReference  int
}

// MapFields pairs chart parameters with reference columns tier by tier.
// Each tier only considers chart fields not yet mapped, and a reference
// column is consumed by its first match and never reused. Chart fields left
// over after the positional tier (reference pool exhausted) are returned
// unmapped, never dropped.
func MapFields(chartFields, refFields []string) ([]Mapping, []string) {
	used := make(map[string]bool)
	mapped := make(map[string]bool)
	var out []Mapping

	take := func(chart, ref string, tier int) {
		out = append(out, Mapping{ChartField: chart, RefField: ref, Tier: tier})
		used[ref] = true
		mapped[chart] = true
		if tier == TierPositional {
			log.Printf("reconcile: positional pairing %q -> %q (no name relation, low confidence)", chart, ref)
		}
	}

	for _, cf := range chartFields {
		for _, rf := range refFields {
			if !used[rf] && cf == rf {
				take(cf, rf, TierExact)
				break
			}
		}
	}
	for _, cf := range chartFields {
		if mapped[cf] {
			continue
		}
		for _, rf := range refFields {
			if !used[rf] && strings.EqualFold(cf, rf) {
				take(cf, rf, TierCaseFold)
				break
			}
		}
	}
	for _, cf := range chartFields {
		if mapped[cf] {
			continue
		}
		for _, rf := range refFields {
			if used[rf] {
				continue
			}
			lc, lr := strings.ToLower(cf), strings.ToLower(rf)
			if strings.Contains(lc, lr) || strings.Contains(lr, lc) {
				take(cf, rf, TierSubstring)
				break
			}
		}
	}
	for _, cf := range chartFields {
		if mapped[cf] {
			continue
		}
		for _, rf := range refFields {
			if !used[rf] {
				take(cf, rf, TierPositional)
				break
			}
		}
	}

	var unmapped []string
	for _, cf := range chartFields {
		if !mapped[cf] {
			log.Printf("reconcile: chart field %q has no reference column left to pair with", cf)
			unmapped = append(unmapped, cf)
		}
	}
	return out, unmapped
}

// Compare joins the two datasets on their keys and compares every mapped
// field pair. Keys present on only one side produce a single sentinel row.
// Numeric comparison is attempted first (match when the absolute difference
// is under Tolerance); values that do not parse on both sides fall back to
// exact trimmed-string equality with Difference reported as "N/A".
func Compare(chart series.Dataset, ref Reference, mappings []Mapping, unmapped []string) (Report, error) {
	rep := Report{
		Category:            chart.Category,
		Mappings:            mappings,
		UnmappedChartFields: unmapped,
	}

	keySet := make(map[string]bool)
	for _, k := range chart.Keys() {
		keySet[k] = true
	}
	for _, k := range ref.Keys {
		keySet[k] = true
	}
	if len(keySet) == 0 {
		return rep, ErrNoMatchingData
	}

	allKeys := make([]string, 0, len(keySet))
	for k := range keySet {
		allKeys = append(allKeys, k)
	}
	sort.SliceStable(allKeys, func(i, j int) bool {
		ri, rj := series.ChronoRank(allKeys[i]), series.ChronoRank(allKeys[j])
		if ri != rj {
			return ri < rj
		}
		return allKeys[i] < allKeys[j]
	})

	for _, key := range allKeys {
		chartRec, inChart := chart.Row(key)
		refRow, inRef := ref.Rows[key]

		switch {
		case inChart && !inRef:
			rep.Rows = append(rep.Rows, Row{Key: key, Missing: "reference"})
			rep.MissingInReference++
			continue
		case !inChart && inRef:
			rep.Rows = append(rep.Rows, Row{Key: key, Missing: "chart"})
			rep.MissingInChart++
			continue
		}

		for _, m := range mappings {
			row := compareValues(key, m, chartRec.Values[m.ChartField], refRow[m.RefField])
			if !row.Match {
				rep.Mismatches++
			}
			rep.Rows = append(rep.Rows, row)
		}
	}
	return rep, nil
}

func compareValues(key string, m Mapping, chartVal, refVal any) Row {
	row := Row{
		Key:        key,
		Parameter:  m.ChartField,
		ChartValue: chartVal,
		RefValue:   refVal,
		Tier:       m.Tier,
	}

	cf, cok := toFloat(chartVal)
	rf, rok := toFloat(refVal)
	if cok && rok {
		diff := cf - rf
		row.Difference = diff
		row.Match = math.Abs(diff) < Tolerance
		return row
	}

	row.Difference = "N/A"
	row.Match = asString(chartVal) == asString(refVal)
	return row
}

// toFloat coaxes a scanned or parsed value into a float64. Strings go
// through numeric cleanup first so "45.2 kW" still compares numerically.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case []byte:
		return parseFloat(string(t))
	case string:
		return parseFloat(t)
	default:
		return 0, false
	}
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(tooltip.Clean(s)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		return strings.TrimSpace(string(b))
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
