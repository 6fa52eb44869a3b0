package models

import (
	"fmt"
	"sort"
	"time"
)

// MetricSample is a single raw metric observation fed into the anomaly engine.
type MetricSample struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Key derives the MetricKey identifying the statistical model this sample
// belongs to. Labels are sorted so the key is stable regardless of map order.
func (s *MetricSample) Key() string {
	key := s.Name
	if s.Service != "" {
		key += "|service=" + s.Service
	}
	if len(s.Labels) > 0 {
		names := make([]string, 0, len(s.Labels))
		for k := range s.Labels {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			key += fmt.Sprintf("|%s=%s", k, s.Labels[k])
		}
	}
	return key
}

// StatisticalModel holds the online statistics for one metric key. Mean and
// variance are updated incrementally; percentiles are decayed estimates, not
// exact quantiles.
type StatisticalModel struct {
	Count       int64     `json:"count"`
	Mean        float64   `json:"mean"`
	Variance    float64   `json:"variance"`
	StdDev      float64   `json:"std_dev"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	P50         float64   `json:"p50"`
	P95         float64   `json:"p95"`
	P99         float64   `json:"p99"`
	LastUpdated time.Time `json:"last_updated"`
}

// DataPoint is one entry of the bounded per-key learning buffer.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SeasonalPattern stores historical averages bucketed by hour of day, day of
// week and week of year, recomputed from the learning buffer.
type SeasonalPattern struct {
	Hourly     [24]SeasonalBucket `json:"hourly"`
	Daily      [7]SeasonalBucket  `json:"daily"`
	Weekly     [52]SeasonalBucket `json:"weekly"`
	ComputedAt time.Time          `json:"computed_at"`
}

type SeasonalBucket struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

func (b SeasonalBucket) Average() (float64, bool) {
	if b.Count == 0 {
		return 0, false
	}
	return b.Sum / float64(b.Count), true
}

// AnomalyEvent is emitted when a sample deviates from its model. Immutable
// once created.
type AnomalyEvent struct {
	ID            string                 `json:"id"`
	MetricKey     string                 `json:"metric_key"`
	MetricName    string                 `json:"metric_name"`
	Service       string                 `json:"service,omitempty"`
	Severity      string                 `json:"severity"` // low, medium, high
	Confidence    float64                `json:"confidence"`
	Score         float64                `json:"score"`
	ExpectedValue float64                `json:"expected_value"`
	ActualValue   float64                `json:"actual_value"`
	Timestamp     time.Time              `json:"timestamp"`
	Context       map[string]interface{} `json:"context,omitempty"`
}

// MetricThresholdEvent is handed to the remediation orchestrator when a raw
// sample is worth evaluating against action triggers and autoscaling targets.
type MetricThresholdEvent struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Service   string    `json:"service,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
