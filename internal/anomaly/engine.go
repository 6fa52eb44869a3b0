package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/internal/monitoring"
	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

const (
	modelKeyPrefix = "anomaly:model:"

	maxHistoryPerKey = 1000
	historyRetention = 7 * 24 * time.Hour
)

// Engine maintains one online statistical model per metric key and emits
// anomaly events. Updates for a given key are serialized; different keys
// proceed fully concurrently.
type Engine struct {
	cfg    config.AnomalyConfig
	store  cache.ValkeyStore
	logger logger.Logger

	mu   sync.RWMutex
	keys map[string]*keyState
}

// keyState is everything the engine tracks for one metric key. The embedded
// mutex is the per-key critical section.
type keyState struct {
	mu            sync.Mutex
	Model         models.StatisticalModel `json:"model"`
	Buffer        []models.DataPoint      `json:"buffer"`
	Seasonal      *models.SeasonalPattern `json:"seasonal,omitempty"`
	SinceSeasonal int                     `json:"since_seasonal"`

	history []*models.AnomalyEvent
}

func NewEngine(cfg config.AnomalyConfig, store cache.ValkeyStore, log logger.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		logger: log,
		keys:   make(map[string]*keyState),
	}
}

// Ingest folds one sample into the model for its key and returns an anomaly
// event when one triggers, nil otherwise. Malformed (non-finite) samples are
// rejected without touching the model.
func (e *Engine) Ingest(ctx context.Context, sample *models.MetricSample) (*models.AnomalyEvent, error) {
	if sample == nil || sample.Name == "" {
		return nil, fmt.Errorf("metric sample missing name")
	}
	if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
		e.logger.Warn("Rejected non-finite metric sample", "metric", sample.Name, "service", sample.Service)
		return nil, fmt.Errorf("non-finite value for metric %s", sample.Name)
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	key := sample.Key()
	state := e.state(key)

	state.mu.Lock()
	defer state.mu.Unlock()

	retention := time.Duration(e.cfg.RetentionDays) * 24 * time.Hour
	state.Buffer = append(state.Buffer, models.DataPoint{Timestamp: sample.Timestamp, Value: sample.Value})
	state.Buffer = pruneBuffer(state.Buffer, sample.Timestamp, retention, e.cfg.BufferSize)

	updateModel(&state.Model, sample.Value, sample.Timestamp)

	state.SinceSeasonal++
	if len(state.Buffer) >= minSeasonalSamples && state.SinceSeasonal >= seasonalRefreshEvery {
		state.Seasonal = computeSeasonalPattern(state.Buffer, sample.Timestamp)
		state.SinceSeasonal = 0
	}

	event := e.detect(key, state, sample)
	if event != nil {
		state.history = append(state.history, event)
		state.history = pruneHistory(state.history, sample.Timestamp)
	}
	return event, nil
}

// detect runs the statistical test and the business-rule overrides. Caller
// holds the key lock.
func (e *Engine) detect(key string, state *keyState, sample *models.MetricSample) *models.AnomalyEvent {
	var (
		score      float64
		severity   string
		source     string
		expected   = state.Model.Mean
		diagnostic = map[string]interface{}{}
	)

	if state.Model.Count >= int64(e.cfg.MinSamplesRequired) {
		rawZ := zScore(&state.Model, sample.Value)
		score = rawZ
		diagnostic["raw_z"] = rawZ

		if seasonalExpected, ok := seasonalExpectation(state.Seasonal, sample.Timestamp); ok && state.Model.StdDev > 0 {
			seasonalZ := math.Abs(sample.Value-seasonalExpected) / state.Model.StdDev
			diagnostic["seasonal_z"] = seasonalZ
			diagnostic["seasonal_expected"] = seasonalExpected
			// The seasonal adjustment is only allowed to lower the score,
			// never raise it; min() keeps the conservative side.
			if seasonalZ < score {
				score = seasonalZ
				expected = seasonalExpected
			}
		}

		switch {
		case score >= e.cfg.HighThreshold:
			severity = "high"
			source = "statistical"
		case score >= e.cfg.MediumThreshold:
			severity = "medium"
			source = "statistical"
		}
	}

	// Business-rule overrides fire independently of the statistical test.
	if severity == "" {
		if rule, ok := evaluateBusinessRules(sample); ok {
			severity = rule.severity
			source = "business_rule"
			diagnostic["rule"] = rule.reason
		}
	}

	if severity == "" {
		return nil
	}

	diagnostic["mean"] = state.Model.Mean
	diagnostic["std_dev"] = state.Model.StdDev
	diagnostic["count"] = state.Model.Count

	conf := confidence(score)
	if source == "business_rule" {
		// Fixed operational limits carry high confidence regardless of how
		// little the model has learned.
		conf = 0.9
	}

	event := &models.AnomalyEvent{
		ID:            uuid.New().String(),
		MetricKey:     key,
		MetricName:    sample.Name,
		Service:       sample.Service,
		Severity:      severity,
		Confidence:    conf,
		Score:         score,
		ExpectedValue: expected,
		ActualValue:   sample.Value,
		Timestamp:     sample.Timestamp,
		Context:       diagnostic,
	}

	monitoring.RecordAnomaly(sample.Name, severity, source)
	e.logger.Info("Anomaly detected",
		"metric", key, "severity", severity, "score", score,
		"expected", expected, "actual", sample.Value, "source", source)
	return event
}

// History returns the retained anomaly events for a metric key, newest last.
func (e *Engine) History(key string) []*models.AnomalyEvent {
	e.mu.RLock()
	state, ok := e.keys[key]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	out := make([]*models.AnomalyEvent, len(state.history))
	copy(out, state.history)
	return out
}

// Model returns a copy of the current statistical model for a key.
func (e *Engine) Model(key string) (models.StatisticalModel, bool) {
	e.mu.RLock()
	state, ok := e.keys[key]
	e.mu.RUnlock()
	if !ok {
		return models.StatisticalModel{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.Model, true
}

// Flush persists every per-key model and seasonal pattern. Failed writes are
// logged and do not block in-memory processing.
func (e *Engine) Flush(ctx context.Context) {
	e.mu.RLock()
	keys := make([]string, 0, len(e.keys))
	for k := range e.keys {
		keys = append(keys, k)
	}
	e.mu.RUnlock()

	for _, k := range keys {
		state := e.state(k)
		state.mu.Lock()
		snapshot := keyState{
			Model:         state.Model,
			Buffer:        append([]models.DataPoint(nil), state.Buffer...),
			Seasonal:      state.Seasonal,
			SinceSeasonal: state.SinceSeasonal,
		}
		state.mu.Unlock()

		if err := e.store.Set(ctx, modelKeyPrefix+k, &snapshot, 0); err != nil {
			e.logger.Error("Failed to persist statistical model", "metric", k, "error", err)
		}
	}
}

// Hydrate restores models and seasonal patterns persisted by a previous run.
func (e *Engine) Hydrate(ctx context.Context) {
	keys, err := e.store.Keys(ctx, modelKeyPrefix)
	if err != nil {
		e.logger.Error("Failed to list persisted models", "error", err)
		return
	}

	restored := 0
	for _, storeKey := range keys {
		data, err := e.store.Get(ctx, storeKey)
		if err != nil {
			continue
		}
		var snapshot keyState
		if err := json.Unmarshal(data, &snapshot); err != nil {
			e.logger.Warn("Skipping corrupt persisted model", "key", storeKey, "error", err)
			continue
		}
		metricKey := strings.TrimPrefix(storeKey, modelKeyPrefix)

		state := e.state(metricKey)
		state.mu.Lock()
		state.Model = snapshot.Model
		state.Buffer = snapshot.Buffer
		state.Seasonal = snapshot.Seasonal
		state.SinceSeasonal = snapshot.SinceSeasonal
		state.mu.Unlock()
		restored++
	}

	if restored > 0 {
		e.logger.Info("Statistical models hydrated from cache", "count", restored)
	}
}

// state returns the keyState for a metric key, creating it on first use.
func (e *Engine) state(key string) *keyState {
	e.mu.RLock()
	state, ok := e.keys[key]
	e.mu.RUnlock()
	if ok {
		return state
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok = e.keys[key]; ok {
		return state
	}
	state = &keyState{}
	e.keys[key] = state
	return state
}

func confidence(score float64) float64 {
	return math.Min(0.99, score/4.0)
}

func pruneHistory(history []*models.AnomalyEvent, now time.Time) []*models.AnomalyEvent {
	cutoff := now.Add(-historyRetention)
	start := 0
	for start < len(history) && history[start].Timestamp.Before(cutoff) {
		start++
	}
	history = history[start:]
	if len(history) > maxHistoryPerKey {
		history = history[len(history)-maxHistoryPerKey:]
	}
	return history
}
