// Package scan discovers which time/day points of a rendered chart carry
// data by sweeping hover probes across its plotting rectangle and parsing
// the tooltip text each probe produces.
package scan

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"chartaudit/internal/tooltip"
)

// Session is the minimal browser surface the scanner needs. A production
// run injects the chromedp-backed session; tests inject a fake.
type Session interface {
	// MoveMouse synthesizes a pointer-move at absolute viewport coordinates.
	MoveMouse(ctx context.Context, x, y float64) error
	// VisibleText returns the currently rendered text of the element the
	// selector addresses, or of the whole document for an empty selector.
	VisibleText(ctx context.Context, selector string) (string, error)
}

// Rect is a chart's plotting rectangle in viewport coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Point is one accepted chart sample: where it was probed and what the
// tooltip said there.
type Point struct {
	X      float64
	Sample tooltip.Sample
}

// Scanner probes one chart. It owns no browser state beyond the injected
// session and must not be shared across concurrent runs: probes are strictly
// sequential because they race over a single hover tooltip.
type Scanner struct {
	Session    Session
	Rect       Rect
	Density    int           // number of horizontal probe positions
	Settle     time.Duration // wait after each pointer move before reading
	TooltipSel string        // selector for the hover tooltip element
}

const (
	// DefaultDensity trades scan latency against finding closely spaced
	// points; doubling it roughly doubles scan time.
	DefaultDensity = 120
	DefaultSettle  = 150 * time.Millisecond

	// edgeInset keeps probes off axis labels at the rectangle boundary.
	edgeInset = 0.015
)

// Discover probes the chart once at its midpoint and harvests whatever
// parameter names the tooltip shows there. The key field is stripped from
// the result. If the single sample yields nothing beyond the key, the
// provided defaults are returned instead. One sample keeps discovery cheap
// but undercounts when that sample happens to miss a series.
func (s *Scanner) Discover(ctx context.Context, defaults []string) ([]string, error) {
	midX := s.Rect.X + s.Rect.W/2
	midY := s.Rect.Y + s.Rect.H/2
	if err := s.Session.MoveMouse(ctx, midX, midY); err != nil {
		return defaults, err
	}
	time.Sleep(s.settle())
	text, err := s.Session.VisibleText(ctx, s.TooltipSel)
	if err != nil {
		return defaults, err
	}

	sample := tooltip.Parse(text, nil)
	var names []string
	for name := range sample.Fields {
		if tooltip.IsKeyName(name) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		log.Printf("scan: discovery found no parameters, using %d configured defaults", len(defaults))
		return defaults, nil
	}
	sort.Strings(names)
	log.Printf("scan: discovered %d parameters: %s", len(names), strings.Join(names, ", "))
	return names, nil
}

// Scan sweeps Density probe positions across the plotting rectangle and
// returns every distinct key the tooltip reported, mapped to the sample
// taken there. An empty map is a valid degenerate result; the caller decides
// whether that fails the run.
//
// A sample is accepted as new when its key differs from the last accepted
// key, or when the same key reappears farther than the spacing threshold
// from the last accepted position (a single visual point can own a wide
// pixel range under the current zoom).
func (s *Scanner) Scan(ctx context.Context, targets []string) (map[string]Point, error) {
	density := s.Density
	if density <= 0 {
		density = DefaultDensity
	}
	if density < 2 {
		density = 2
	}

	inset := s.Rect.W * edgeInset
	startX := s.Rect.X + inset
	span := s.Rect.W - 2*inset
	step := span / float64(density-1)
	midY := s.Rect.Y + s.Rect.H/2
	minSpacing := s.Rect.W / (float64(density) * 0.5)

	points := make(map[string]Point)
	lastKey := ""
	lastX := 0.0

	for i := 0; i < density; i++ {
		x := startX + float64(i)*step
		if err := s.Session.MoveMouse(ctx, x, midY); err != nil {
			// Transient hover flakiness is expected at high density.
			log.Printf("scan: probe %d/%d at x=%.1f failed: %v", i+1, density, x, err)
			continue
		}
		time.Sleep(s.settle())
		text, err := s.Session.VisibleText(ctx, s.TooltipSel)
		if err != nil {
			log.Printf("scan: probe %d/%d read failed: %v", i+1, density, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue // no data at this position
		}

		sample := tooltip.Parse(text, targets)
		if sample.Key == "" {
			continue // tooltip text with no usable key
		}

		if sample.Key == lastKey && x-lastX <= minSpacing {
			continue
		}
		if _, exists := points[sample.Key]; !exists {
			points[sample.Key] = Point{X: x, Sample: sample}
		}
		lastKey = sample.Key
		lastX = x
	}

	log.Printf("scan: %d probes yielded %d distinct keys", density, len(points))
	return points, nil
}

func (s *Scanner) settle() time.Duration {
	if s.Settle > 0 {
		return s.Settle
	}
	return DefaultSettle
}
