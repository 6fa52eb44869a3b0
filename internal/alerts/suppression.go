package alerts

import (
	"sync"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/models"
)

// maxFlapRecords bounds the per-fingerprint transition history.
const maxFlapRecords = 20

// flapRetention drops transition records older than this.
const flapRetention = time.Hour

// rateLimiter keeps a rolling per-fingerprint event window and drops events
// once the window exceeds the configured maximum.
type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	events  map[string][]time.Time
}

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	return &rateLimiter{
		window: window,
		max:    max,
		events: map[string][]time.Time{},
	}
}

// allow records one event for the key and reports whether it is within the
// rolling window budget.
func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	kept := r.events[key][:0]
	for _, t := range r.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.max {
		r.events[key] = kept
		return false
	}
	r.events[key] = append(kept, now)
	return true
}

// dependencySuppressed reports whether the candidate is a child of an active
// parent alert for the same service/instance. The parent→children map is
// static configuration (e.g. ServiceDown suppresses latency and error-rate
// alerts for that service).
func dependencySuppressed(candidate *models.Alert, active map[string]*models.Alert, deps map[string][]string) bool {
	if len(deps) == 0 {
		return false
	}
	for _, parent := range active {
		children, ok := deps[parent.Name]
		if !ok {
			continue
		}
		if !sameScope(parent, candidate) {
			continue
		}
		for _, child := range children {
			if child == candidate.Name {
				return true
			}
		}
	}
	return false
}

// sameScope matches parent and child on service and instance labels; a label
// absent on either side matches anything.
func sameScope(parent, child *models.Alert) bool {
	for _, label := range []string{"service", "instance"} {
		p, pok := parent.Labels[label]
		c, cok := child.Labels[label]
		if pok && cok && p != c {
			return false
		}
	}
	return true
}

// inMaintenance reports whether now falls inside any window whose scope
// matches the alert.
func inMaintenance(alert *models.Alert, windows []*models.MaintenanceWindow, now time.Time) bool {
	for _, w := range windows {
		if now.Before(w.StartsAt) || !now.Before(w.EndsAt) {
			continue
		}
		if len(w.Services) > 0 && !contains(w.Services, alert.Labels["service"]) {
			continue
		}
		if len(w.Severities) > 0 && !contains(w.Severities, alert.Severity) {
			continue
		}
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// flapTracker records accepted state transitions per fingerprint and flags
// fingerprints that are flapping.
type flapTracker struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	records map[string][]models.FlapRecord
}

func newFlapTracker(window time.Duration, max int) *flapTracker {
	return &flapTracker{
		window:  window,
		max:     max,
		records: map[string][]models.FlapRecord{},
	}
}

// flapping reports whether accepting one more transition now would put the
// fingerprint at or past the transition budget for the window.
func (f *flapTracker) flapping(fingerprint string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := now.Add(-f.window)
	recent := 0
	for _, r := range f.prune(fingerprint, now) {
		if r.OccurredAt.After(cutoff) {
			recent++
		}
	}
	return recent+1 >= f.max
}

// record appends an accepted transition.
func (f *flapTracker) record(fingerprint, status string, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records := append(f.prune(fingerprint, now), models.FlapRecord{Status: status, OccurredAt: now})
	if len(records) > maxFlapRecords {
		records = records[len(records)-maxFlapRecords:]
	}
	f.records[fingerprint] = records
}

// history returns the retained transitions for a fingerprint.
func (f *flapTracker) history(fingerprint string) []models.FlapRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.FlapRecord, len(f.records[fingerprint]))
	copy(out, f.records[fingerprint])
	return out
}

// restore replaces the history for a fingerprint (startup hydration).
func (f *flapTracker) restore(fingerprint string, records []models.FlapRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[fingerprint] = records
}

// prune drops records outside the retention horizon. Caller holds the lock.
func (f *flapTracker) prune(fingerprint string, now time.Time) []models.FlapRecord {
	cutoff := now.Add(-flapRetention)
	kept := f.records[fingerprint][:0]
	for _, r := range f.records[fingerprint] {
		if r.OccurredAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	f.records[fingerprint] = kept
	return kept
}
