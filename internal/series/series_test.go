package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartaudit/internal/scan"
	"chartaudit/internal/tooltip"
)

func strptr(s string) *string { return &s }

func point(x float64, key string, fields map[string]*string) scan.Point {
	return scan.Point{X: x, Sample: tooltip.Sample{Key: key, Fields: fields}}
}

func TestAssemble_SortsChronologically(t *testing.T) {
	points := map[string]scan.Point{
		"14:30": point(10, "14:30", map[string]*string{"Active": strptr("3.0 kW")}),
		"9:15":  point(20, "9:15", map[string]*string{"Active": strptr("1.0 kW")}),
		"12:00": point(30, "12:00", map[string]*string{"Active": strptr("2.0 kW")}),
	}

	ds := Assemble(points, []string{"Date", "Active"}, Demand)
	require.Len(t, ds.Records, 3)
	assert.Equal(t, []string{"9:15", "12:00", "14:30"}, ds.Keys())

	// Keys must be strictly increasing under the chronological ordering.
	for i := 1; i < len(ds.Records); i++ {
		assert.Less(t, ChronoRank(ds.Records[i-1].Key), ChronoRank(ds.Records[i].Key))
	}
}

func TestAssemble_CoercesNumericValues(t *testing.T) {
	points := map[string]scan.Point{
		"5": point(10, "5", map[string]*string{
			"Active":   strptr("45.2 kW"),
			"Status":   strptr("OK"),
			"Reactive": nil,
		}),
	}

	ds := Assemble(points, []string{"Date", "Active", "Status", "Reactive"}, Energy)
	require.Len(t, ds.Records, 1)
	rec := ds.Records[0]
	assert.Equal(t, 45.2, rec.Values["Active"])
	assert.Equal(t, "OK", rec.Values["Status"])
	v, ok := rec.Values["Reactive"]
	require.True(t, ok, "absent parameter must still be present as nil")
	assert.Nil(t, v)
}

func TestAssemble_DayKeysSortNumerically(t *testing.T) {
	points := map[string]scan.Point{
		"2":  point(1, "2", map[string]*string{"Active": strptr("1")}),
		"10": point(2, "10", map[string]*string{"Active": strptr("2")}),
		"9":  point(3, "9", map[string]*string{"Active": strptr("3")}),
	}
	ds := Assemble(points, []string{"Date", "Active"}, Energy)
	assert.Equal(t, []string{"2", "9", "10"}, ds.Keys())
}

func TestAssemble_UnparsableKeySinksToFront(t *testing.T) {
	points := map[string]scan.Point{
		"???": point(1, "???", map[string]*string{"Active": strptr("1")}),
		"3":   point(2, "3", map[string]*string{"Active": strptr("2")}),
	}
	ds := Assemble(points, []string{"Date", "Active"}, Energy)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, "???", ds.Records[0].Key)
}

func TestChronoRank(t *testing.T) {
	cases := map[string]int{
		"0:00":  0,
		"9:15":  555,
		"23:59": 1439,
		"15":    15,
		"3":     3,
		"junk":  0,
	}
	for key, want := range cases {
		assert.Equal(t, want, ChronoRank(key), "key %q", key)
	}
}

func TestCanonicalKey(t *testing.T) {
	cases := map[string]string{
		"09:30":    "9:30",
		"9:30":     "9:30",
		"05":       "5",
		"15":       "15",
		" 15 ":     "15",
		"15 - Jun": "15 - Jun",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalKey(in), "input %q", in)
	}
}

func TestDatasetRow(t *testing.T) {
	ds := Dataset{Records: []Record{{Key: "4", Values: map[string]any{"Active": 1.0}}}}
	rec, ok := ds.Row("4")
	require.True(t, ok)
	assert.Equal(t, 1.0, rec.Values["Active"])
	_, ok = ds.Row("5")
	assert.False(t, ok)
}
