package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartaudit/internal/config"
	"chartaudit/internal/reconcile"
	"chartaudit/internal/scan"
	"chartaudit/internal/series"
)

type fakeSession struct {
	textAt func(x float64) string
	lastX  float64
}

func (f *fakeSession) MoveMouse(ctx context.Context, x, y float64) error {
	f.lastX = x
	return nil
}

func (f *fakeSession) VisibleText(ctx context.Context, selector string) (string, error) {
	return f.textAt(f.lastX), nil
}

func testCategory() config.Category {
	return config.Category{
		Name:       series.Energy,
		Parameters: []string{"Date", "Active", "Apparent"},
		Columns:    []string{"ActiveEnergy", "ApparentEnergy"},
		Table:      "energy_profile",
		KeyColumn:  "SurveyDate",
	}
}

func testReference() reconcile.Reference {
	ref := reconcile.Reference{
		KeyColumn: "SurveyDate",
		Columns:   []string{"ActiveEnergy", "ApparentEnergy"},
		Rows:      make(map[string]map[string]any),
	}
	for day := 1; day <= 5; day++ {
		key := fmt.Sprint(day)
		ref.Keys = append(ref.Keys, key)
		ref.Rows[key] = map[string]any{
			"ActiveEnergy":   float64(day) + 0.5,
			"ApparentEnergy": float64(day) + 1.5,
		}
	}
	return ref
}

func newRunner(sess scan.Session, fetch func(context.Context) (reconcile.Reference, error), write func(series.Dataset, reconcile.Reference, reconcile.Report) error) *Runner {
	return &Runner{
		Session:  sess,
		Rect:     scan.Rect{X: 0, Y: 0, W: 1000, H: 400},
		Category: testCategory(),
		Name:     series.Energy,
		Density:  50,
		Settle:   time.Nanosecond,
		Fetch:    fetch,
		Write:    write,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	sess := &fakeSession{textAt: func(x float64) string {
		day := int(x/200) + 1
		return fmt.Sprintf("Date: %d - June | Active: %d.5 kW | Apparent: %d.5 kVA", day, day, day+1)
	}}

	var written int
	var wroteRep reconcile.Report
	runner := newRunner(sess,
		func(ctx context.Context) (reconcile.Reference, error) { return testReference(), nil },
		func(chart series.Dataset, ref reconcile.Reference, rep reconcile.Report) error {
			written++
			wroteRep = rep
			return nil
		},
	)

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, written, "a successful run writes exactly one report")
	assert.Equal(t, rep.Mismatches, wroteRep.Mismatches)

	// Every chart value agrees with the reference; Apparent is day+1.5 on
	// the chart but day+1.5 in the store too, so no mismatches.
	assert.Zero(t, rep.Mismatches)
	assert.Zero(t, rep.MissingInChart)
	assert.Zero(t, rep.MissingInReference)
	assert.Len(t, rep.Rows, 10, "5 keys x 2 mapped fields")
}

func TestRun_EmptyScanAbortsWithoutReport(t *testing.T) {
	sess := &fakeSession{textAt: func(x float64) string { return "" }}

	var written int
	runner := newRunner(sess,
		func(ctx context.Context) (reconcile.Reference, error) { return testReference(), nil },
		func(series.Dataset, reconcile.Reference, reconcile.Report) error {
			written++
			return nil
		},
	)

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyScan)
	assert.Zero(t, written, "no report may be produced from an empty scan")
}

func TestRun_FetchFailureAbortsWithoutReport(t *testing.T) {
	sess := &fakeSession{textAt: func(x float64) string {
		return "Date: 1 | Active: 1.5 kW | Apparent: 2.5 kVA"
	}}

	var written int
	fetchErr := errors.New("connection refused")
	runner := newRunner(sess,
		func(ctx context.Context) (reconcile.Reference, error) { return reconcile.Reference{}, fetchErr },
		func(series.Dataset, reconcile.Reference, reconcile.Report) error {
			written++
			return nil
		},
	)

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, fetchErr)
	assert.Zero(t, written, "a failed reference fetch must not produce a partial report")
}

func TestRun_WriteFailureSurfaces(t *testing.T) {
	sess := &fakeSession{textAt: func(x float64) string {
		return "Date: 1 | Active: 1.5 kW | Apparent: 2.5 kVA"
	}}

	writeErr := errors.New("disk full")
	runner := newRunner(sess,
		func(ctx context.Context) (reconcile.Reference, error) { return testReference(), nil },
		func(series.Dataset, reconcile.Reference, reconcile.Report) error { return writeErr },
	)

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, writeErr)
}
