package remediation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

const historyKeyPrefix = "remediation:history:"

// Reasons a reservation is refused.
const (
	reserveCooldown       = "cooldown"
	reserveBreakerOpen    = "circuit_breaker"
	reserveFailureCeiling = "failure_ceiling"
)

// historyTracker owns the per-action execution history. Entries persist
// across restarts so cooldowns and circuit breakers stay correct.
type historyTracker struct {
	mu      sync.Mutex
	store   cache.ValkeyStore
	logger  logger.Logger
	entries map[string]*models.ExecutionHistory
}

func newHistoryTracker(store cache.ValkeyStore, log logger.Logger) *historyTracker {
	return &historyTracker{
		store:   store,
		logger:  log,
		entries: make(map[string]*models.ExecutionHistory),
	}
}

// get returns a copy of the history for an action; a zero entry when none.
func (h *historyTracker) get(actionID string) models.ExecutionHistory {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[actionID]; ok {
		return *e
	}
	return models.ExecutionHistory{ActionID: actionID}
}

// tryReserve applies the execution gates and, when they all pass, stamps the
// execution time in the same critical section. The stamp lands before the
// action runs, so the cooldown window opens even if the run fails midway and
// a concurrent trigger for the same action is refused with reserveCooldown.
func (h *historyTracker) tryReserve(ctx context.Context, actionID string, now time.Time, cooldown time.Duration, breakerLimit, maxFailures int) (bool, string) {
	h.mu.Lock()
	e := h.entry(actionID)

	switch {
	case cooldown > 0 && !e.LastExecuted.IsZero() && now.Sub(e.LastExecuted) < cooldown:
		h.mu.Unlock()
		return false, reserveCooldown
	case breakerLimit > 0 && e.SuccessCount == 0 && e.FailureCount >= breakerLimit:
		h.mu.Unlock()
		return false, reserveBreakerOpen
	case maxFailures > 0 && e.FailureCount >= maxFailures:
		h.mu.Unlock()
		return false, reserveFailureCeiling
	}

	e.LastExecuted = now
	snapshot := *e
	h.mu.Unlock()
	h.persist(ctx, &snapshot)
	return true, ""
}

// recordSuccess increments the success streak and resets the failure streak.
func (h *historyTracker) recordSuccess(ctx context.Context, actionID string) {
	h.mu.Lock()
	e := h.entry(actionID)
	e.SuccessCount++
	e.FailureCount = 0
	snapshot := *e
	h.mu.Unlock()
	h.persist(ctx, &snapshot)
}

// recordFailure increments the failure streak. The success count is left
// alone: a success resets failures, a failure does not reset successes.
func (h *historyTracker) recordFailure(ctx context.Context, actionID string) {
	h.mu.Lock()
	e := h.entry(actionID)
	e.FailureCount++
	snapshot := *e
	h.mu.Unlock()
	h.persist(ctx, &snapshot)
}

// all returns a copy of every tracked entry.
func (h *historyTracker) all() []models.ExecutionHistory {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.ExecutionHistory, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, *e)
	}
	return out
}

// hydrate restores persisted entries at startup.
func (h *historyTracker) hydrate(ctx context.Context) {
	keys, err := h.store.Keys(ctx, historyKeyPrefix)
	if err != nil {
		h.logger.Error("Failed to list persisted execution history", "error", err)
		return
	}
	restored := 0
	for _, key := range keys {
		data, err := h.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var e models.ExecutionHistory
		if err := json.Unmarshal(data, &e); err != nil {
			h.logger.Warn("Skipping corrupt execution history", "key", key, "error", err)
			continue
		}
		if e.ActionID == "" {
			e.ActionID = strings.TrimPrefix(key, historyKeyPrefix)
		}
		h.mu.Lock()
		h.entries[e.ActionID] = &e
		h.mu.Unlock()
		restored++
	}
	if restored > 0 {
		h.logger.Info("Execution history hydrated from cache", "count", restored)
	}
}

// entry returns the live entry for an action. Caller holds the lock.
func (h *historyTracker) entry(actionID string) *models.ExecutionHistory {
	e, ok := h.entries[actionID]
	if !ok {
		e = &models.ExecutionHistory{ActionID: actionID}
		h.entries[actionID] = e
	}
	return e
}

// persist writes one entry; failures are logged, never surfaced. In-memory
// state stays authoritative.
func (h *historyTracker) persist(ctx context.Context, e *models.ExecutionHistory) {
	if err := h.store.Set(ctx, historyKeyPrefix+e.ActionID, e, 0); err != nil {
		h.logger.Error("Failed to persist execution history", "action", e.ActionID, "error", err)
	}
}
