// Package audit orchestrates one extraction-and-reconciliation run:
// discover parameters, scan the chart, assemble the dataset, fetch the
// authoritative rows, reconcile, and persist the comparison. A run either
// produces a complete report or fails with a stated reason; it never writes
// a partial one.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chartaudit/internal/config"
	"chartaudit/internal/notify"
	"chartaudit/internal/reconcile"
	"chartaudit/internal/scan"
	"chartaudit/internal/series"
	"chartaudit/internal/tooltip"
)

// ErrEmptyScan marks a sweep that discovered zero data points. The run
// aborts rather than reporting an empty dataset as success.
var ErrEmptyScan = errors.New("audit: scan discovered no data points")

// Runner holds the collaborators of a single run. Each collaborator is
// injected so tests can substitute fakes; the session and datastore handle
// are owned by the caller, which must release them on every exit path.
type Runner struct {
	Session    scan.Session
	Rect       scan.Rect
	Category   config.Category
	Name       series.Category
	Density    int
	Settle     time.Duration
	TooltipSel string

	// Fetch returns the reference rows for the run's period and entity.
	Fetch func(ctx context.Context) (reconcile.Reference, error)
	// Write persists the finished comparison.
	Write func(chart series.Dataset, ref reconcile.Reference, rep reconcile.Report) error
	// Notifier may be nil; publish failures are logged, never fatal.
	Notifier   *notify.Publisher
	ReportPath string
}

// Run executes the full pipeline. Probes are strictly sequential; the only
// concurrency-relevant rule is that nothing else may touch the session
// while a run is in flight.
func (r *Runner) Run(ctx context.Context) (reconcile.Report, error) {
	scanner := &scan.Scanner{
		Session:    r.Session,
		Rect:       r.Rect,
		Density:    r.Density,
		Settle:     r.Settle,
		TooltipSel: r.TooltipSel,
	}

	params, err := scanner.Discover(ctx, r.Category.Parameters)
	if err != nil {
		// A failed discovery probe is not fatal: fall back to the
		// configured defaults and let the scan decide the run's fate.
		log.Printf("audit: parameter discovery failed (%v), using configured defaults", err)
		params = r.Category.Parameters
	}

	points, err := scanner.Scan(ctx, params)
	if err != nil {
		return reconcile.Report{}, fmt.Errorf("audit: scan failed: %w", err)
	}
	if len(points) == 0 {
		return reconcile.Report{}, ErrEmptyScan
	}

	chart := series.Assemble(points, params, r.Name)

	ref, err := r.Fetch(ctx)
	if err != nil {
		// Both sides must succeed; a comparison against a failed fetch
		// would be a partial report.
		return reconcile.Report{}, fmt.Errorf("audit: reference fetch failed: %w", err)
	}

	mappings, unmapped := reconcile.MapFields(dataFields(params), ref.Columns)
	rep, err := reconcile.Compare(chart, ref, mappings, unmapped)
	if err != nil {
		return reconcile.Report{}, err
	}

	if err := r.Write(chart, ref, rep); err != nil {
		return reconcile.Report{}, fmt.Errorf("audit: write report: %w", err)
	}
	if err := r.Notifier.PublishSummary(rep, r.ReportPath); err != nil {
		log.Printf("audit: summary publish failed: %v", err)
	}
	return rep, nil
}

// dataFields strips the key field from the effective parameter list; the
// key is join identity, not a compared field.
func dataFields(params []string) []string {
	var out []string
	for _, p := range params {
		if tooltip.IsKeyName(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}
