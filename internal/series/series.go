// Package series turns the scanner's raw key->sample mapping into an
// ordered, numerically coerced dataset ready for reconciliation.
package series

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"chartaudit/internal/scan"
	"chartaudit/internal/tooltip"
)

// Category names the kind of chart a dataset came from.
type Category string

const (
	Voltage Category = "Voltage"
	Current Category = "Current"
	Energy  Category = "Energy"
	Demand  Category = "Demand"
)

// Record is one chart point. Values hold float64 where the cleaned source
// text parses as a number, the raw string where it does not, and nil where
// the parameter was absent at this point.
type Record struct {
	Key    string
	Values map[string]any
}

// Dataset is the ordered chart-side result of an extraction run. Records
// are unique by key and sorted chronologically.
type Dataset struct {
	Category   Category
	Parameters []string
	Records    []Record
}

// Keys returns the record keys in dataset order.
func (d Dataset) Keys() []string {
	out := make([]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Key
	}
	return out
}

// Row returns the record for a key, if present.
func (d Dataset) Row(key string) (Record, bool) {
	for _, r := range d.Records {
		if r.Key == key {
			return r, true
		}
	}
	return Record{}, false
}

// Assemble builds a Dataset from scanned points: one record per key, every
// field value run through numeric cleanup and coerced to float64 where it
// parses, records sorted chronologically. Keys that carry no sortable prefix
// rank zero and sink to the front; a warning is logged so the caller knows
// the order is not trustworthy there.
func Assemble(points map[string]scan.Point, parameters []string, category Category) Dataset {
	ds := Dataset{Category: category, Parameters: parameters}
	for key, pt := range points {
		rec := Record{Key: CanonicalKey(key), Values: make(map[string]any)}
		for name, val := range pt.Sample.Fields {
			if val == nil {
				rec.Values[name] = nil
				continue
			}
			rec.Values[name] = coerce(tooltip.Clean(*val))
		}
		ds.Records = append(ds.Records, rec)
	}

	sort.SliceStable(ds.Records, func(i, j int) bool {
		return ChronoRank(ds.Records[i].Key) < ChronoRank(ds.Records[j].Key)
	})
	for _, r := range ds.Records {
		if !sortable(r.Key) {
			log.Printf("series: key %q has no sortable prefix, record order is not chronological", r.Key)
		}
	}
	return ds
}

func coerce(s string) any {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	return s
}

var hhmmRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// ChronoRank maps a key to its chronological sort position:
// minutes-since-midnight for HH:MM keys, the leading integer for day
// labels, zero for anything unparsable.
func ChronoRank(key string) int {
	key = strings.TrimSpace(key)
	if m := hhmmRe.FindStringSubmatch(key); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		return h*60 + min
	}
	i := 0
	for i < len(key) && key[i] >= '0' && key[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	day, err := strconv.Atoi(key[:i])
	if err != nil {
		return 0
	}
	return day
}

// CanonicalKey normalizes a key so chart- and store-derived keys join on
// the same string: HH:MM loses a leading zero hour, all-digit day labels
// lose leading zeros. Anything else passes through trimmed.
func CanonicalKey(key string) string {
	key = strings.TrimSpace(key)
	if m := hhmmRe.FindStringSubmatch(key); m != nil {
		h, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%d:%s", h, m[2])
	}
	if d, err := strconv.Atoi(key); err == nil && d >= 0 {
		return strconv.Itoa(d)
	}
	return key
}

func sortable(key string) bool {
	key = strings.TrimSpace(key)
	if hhmmRe.MatchString(key) {
		return true
	}
	return len(key) > 0 && key[0] >= '0' && key[0] <= '9'
}
