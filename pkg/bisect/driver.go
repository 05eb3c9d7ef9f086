// Package bisect implements the binary search over a sorted timeline of
// package publications that locates the single publication which, once
// hidden, turns a broken project working again.
package bisect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pkgbisect/pkgbisect/pkg/timeline"
)

// Prober runs one reinstall-and-test cycle at a cutoff and reports whether
// the project worked. Implemented by a thin adapter over pkg/probe +
// pkg/oracle in pkg/commands; kept as an interface here so the search
// itself is unit-testable without spawning real subprocesses.
type Prober interface {
	Probe(ctx context.Context, cutoff time.Time) (works bool, events []timeline.Event, err error)
}

// Candidate is one publication the search has pinned down as a suspect, or
// (once the search terminates) the culprit.
type Candidate struct {
	Package string
	Version string
	Time    time.Time
}

// Driver runs the bisection state machine described in SPEC_FULL.md §4.4.
type Driver struct {
	Prober Prober
	Filter *Filter

	events          []timeline.Event
	goodBeforeIndex int // last index known to produce a working install
	badAfterIndex   int // first index known to produce a broken install
}

// Init seeds the driver with the known-good and known-bad endpoints. The
// timeline-seeding probe runs at T_good, not T_bad: it must observe the
// dependency closure the resolver walks during the working install, since
// that's the candidate set the search bisects over (SPEC_FULL.md §4.3/§4.4
// step 2). A second probe at T_bad confirms the regression actually
// reproduces before any bisection steps run.
func (d *Driver) Init(ctx context.Context, goodTime, badTime time.Time) error {
	if !goodTime.Before(badTime) {
		return fmt.Errorf("good time %s must be before bad time %s", goodTime, badTime)
	}

	works, events, err := d.Prober.Probe(ctx, goodTime)
	if err != nil {
		return fmt.Errorf("initial probe at good time: %w", err)
	}
	if !works {
		return fmt.Errorf("project does not work at the supplied good time %s; nothing to bisect", goodTime)
	}

	badWorks, _, err := d.Prober.Probe(ctx, badTime)
	if err != nil {
		return fmt.Errorf("confirmation probe at bad time: %w", err)
	}
	if badWorks {
		return fmt.Errorf("project works at the supplied bad time %s; nothing to bisect", badTime)
	}

	filtered := make([]timeline.Event, 0, len(events))
	for _, e := range events {
		if !e.Time.After(goodTime) || e.Time.After(badTime) {
			continue
		}
		if d.Filter.Allows(e.Package, e.Version) {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Time.Before(filtered[j].Time) })

	d.events = filtered
	d.goodBeforeIndex = -1
	d.badAfterIndex = len(d.events)

	if len(d.events) == 0 {
		return fmt.Errorf("no candidate publications found between %s and %s", goodTime, badTime)
	}
	return nil
}

// Done reports whether the search has converged on a single culprit.
func (d *Driver) Done() bool {
	return d.badAfterIndex-d.goodBeforeIndex == 1
}

// RemainingSteps estimates, per SPEC_FULL.md §4.4, the number of probes
// still needed: ceil(log2(remaining candidates)).
func (d *Driver) RemainingSteps() int {
	remaining := d.badAfterIndex - d.goodBeforeIndex - 1
	if remaining <= 1 {
		return remaining
	}
	return int(math.Ceil(math.Log2(float64(remaining))))
}

// Step runs the next probe at the computed midpoint, using half-up rounding
// as spec.md specifies, and updates the search bounds.
func (d *Driver) Step(ctx context.Context) error {
	if d.Done() {
		return fmt.Errorf("bisection already converged")
	}

	span := d.badAfterIndex - d.goodBeforeIndex
	mid := d.goodBeforeIndex + halfUpRound(span)

	cutoff := d.events[mid].Time
	works, _, err := d.Prober.Probe(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("probe at index %d (cutoff %s): %w", mid, cutoff, err)
	}

	if works {
		d.goodBeforeIndex = mid
	} else {
		d.badAfterIndex = mid
	}
	return nil
}

// Culprit returns the converged-upon candidate. Valid only once Done.
func (d *Driver) Culprit() (Candidate, error) {
	if !d.Done() {
		return Candidate{}, fmt.Errorf("bisection has not converged yet")
	}
	e := d.events[d.badAfterIndex]
	return Candidate{Package: e.Package, Version: e.Version, Time: e.Time}, nil
}

// Candidates returns every publication still under suspicion.
func (d *Driver) Candidates() []Candidate {
	out := make([]Candidate, 0, d.badAfterIndex-d.goodBeforeIndex-1)
	for i := d.goodBeforeIndex + 1; i <= d.badAfterIndex && i < len(d.events); i++ {
		e := d.events[i]
		out = append(out, Candidate{Package: e.Package, Version: e.Version, Time: e.Time})
	}
	return out
}

// halfUpRound divides span by two, rounding .5 up, matching spec.md's
// rounding rule for the bisection midpoint.
func halfUpRound(span int) int {
	return (span + 1) / 2
}
