package alerts

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/models"
)

// Notifier is the outbound notification collaborator. The manager decides
// when and what to send; delivery is someone else's problem.
type Notifier interface {
	Send(ctx context.Context, n *models.Notification, channel string, escalationLevel int) error
}

// escalationScheduler owns the delayed escalation tasks, one timer per step,
// keyed by fingerprint so resolution or acknowledgement can cancel a whole
// timeline atomically. Cancellation is idempotent and safe after a timer has
// already fired.
type escalationScheduler struct {
	mu     sync.Mutex
	timers map[string][]*time.Timer
}

func newEscalationScheduler() *escalationScheduler {
	return &escalationScheduler{timers: map[string][]*time.Timer{}}
}

// schedule registers one delayed task for the fingerprint.
func (s *escalationScheduler) schedule(fingerprint string, delay time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := time.AfterFunc(delay, fire)
	s.timers[fingerprint] = append(s.timers[fingerprint], timer)
}

// cancel stops every pending task for the fingerprint. Timers that already
// fired are no-ops to stop.
func (s *escalationScheduler) cancel(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers[fingerprint] {
		t.Stop()
	}
	delete(s.timers, fingerprint)
}

// cancelAll stops every pending task (shutdown).
func (s *escalationScheduler) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, timers := range s.timers {
		for _, t := range timers {
			t.Stop()
		}
	}
	s.timers = map[string][]*time.Timer{}
}

// evalStepCondition evaluates the small fixed condition grammar attached to
// escalation steps: `severity=critical`, `duration>10m`, `ack_count=0`.
// Malformed conditions evaluate false so the step is skipped, never fired by
// accident.
func evalStepCondition(cond string, alert *models.Alert, acked bool, now time.Time) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return true
	}

	field, op, value := splitCondition(cond)
	if op == "" {
		return false
	}

	switch field {
	case "severity":
		return op == "=" && alert.Severity == value

	case "duration":
		want, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		return compareDuration(now.Sub(alert.StartsAt), op, want)

	case "ack_count":
		want, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		got := 0
		if acked {
			got = 1
		}
		return compareInt(got, op, want)
	}

	return false
}

func splitCondition(cond string) (field, op, value string) {
	for _, candidate := range []string{">=", "<=", ">", "<", "="} {
		if i := strings.Index(cond, candidate); i > 0 {
			return strings.TrimSpace(cond[:i]), candidate, strings.TrimSpace(cond[i+len(candidate):])
		}
	}
	return "", "", ""
}

func compareDuration(got time.Duration, op string, want time.Duration) bool {
	switch op {
	case ">":
		return got > want
	case "<":
		return got < want
	case ">=":
		return got >= want
	case "<=":
		return got <= want
	case "=":
		return got == want
	}
	return false
}

func compareInt(got int, op string, want int) bool {
	switch op {
	case ">":
		return got > want
	case "<":
		return got < want
	case ">=":
		return got >= want
	case "<=":
		return got <= want
	case "=":
		return got == want
	}
	return false
}
