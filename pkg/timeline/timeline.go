// Package timeline records the registry publication events a proxy has
// observed across all probes in a single bisection run, and carries them
// between the proxy process and the driver process over the two transports
// named in the external interface: a JSON file, or a stderr marker line.
package timeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Event is one observed publication: a package name, a version, and the
// time the registry says it was published.
type Event struct {
	Package string    `json:"package"`
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}

// Marker is the line prefix used by the stderr transport. The driver scans
// every line a probe subprocess writes to stderr for this prefix.
const Marker = "NPM_BISECT_COMPUTE_TIMELINE:"

// Timeline accumulates Events observed during one or more probes. Safe for
// concurrent use: pkg/proxy records events from request-handling goroutines
// while the timeline is, separately, only ever read once a probe's
// subprocess has exited.
type Timeline struct {
	mu     sync.Mutex
	events []Event
}

// New returns an empty Timeline.
func New() *Timeline {
	return &Timeline{}
}

// Record appends an event, ignoring a duplicate (same package+version) if
// already present.
func (t *Timeline) Record(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.events {
		if existing.Package == e.Package && existing.Version == e.Version {
			return
		}
	}
	t.events = append(t.events, e)
}

// Events returns a time-sorted copy of every event recorded so far.
func (t *Timeline) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Event, len(t.events))
	copy(out, t.events)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		if out[i].Package != out[j].Package {
			return out[i].Package < out[j].Package
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// WriteJSON writes the accumulated, sorted events to w.
func (t *Timeline) WriteJSON(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(t.Events()); err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	return nil
}

// WriteMarker writes the accumulated events to w as a single stderr marker
// line, per the external interface's wire format.
func (t *Timeline) WriteMarker(w io.Writer) error {
	raw, err := json.Marshal(t.Events())
	if err != nil {
		return fmt.Errorf("marshal timeline for marker: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s%s\n", Marker, raw); err != nil {
		return fmt.Errorf("write timeline marker: %w", err)
	}
	return nil
}

// ReadJSON parses a JSON array of Events written by WriteJSON.
func ReadJSON(r io.Reader) ([]Event, error) {
	var events []Event
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	return events, nil
}

// ScanMarkers reads every line from r, returning the events encoded in any
// line that starts with Marker. Used by the probe runner to recover the
// timeline emitted by a probe subprocess's stderr without requiring a
// shared file.
func ScanMarkers(r io.Reader) ([]Event, error) {
	var all []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, Marker) {
			continue
		}
		payload := line[len(Marker):]
		var events []Event
		if err := json.Unmarshal([]byte(payload), &events); err != nil {
			return nil, fmt.Errorf("decode timeline marker line: %w", err)
		}
		all = append(all, events...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan for timeline markers: %w", err)
	}
	return all, nil
}
