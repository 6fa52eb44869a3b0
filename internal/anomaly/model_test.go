package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platformbuilds/mirador-remedy/internal/models"
)

func TestUpdateModelFirstSample(t *testing.T) {
	var m models.StatisticalModel
	now := time.Now()
	updateModel(&m, 42, now)

	assert.Equal(t, int64(1), m.Count)
	assert.Equal(t, 42.0, m.Mean)
	assert.Equal(t, 0.0, m.Variance)
	assert.Equal(t, 42.0, m.Min)
	assert.Equal(t, 42.0, m.Max)
	assert.Equal(t, 42.0, m.P50)
	assert.Equal(t, 42.0, m.P95)
	assert.Equal(t, 42.0, m.P99)
}

func TestUpdateModelVarianceNeverNegative(t *testing.T) {
	var m models.StatisticalModel
	now := time.Now()
	// Identical values can drive the incremental variance slightly negative
	// through float error; it must clamp at zero.
	for i := 0; i < 1000; i++ {
		updateModel(&m, 7.25, now)
	}
	assert.GreaterOrEqual(t, m.Variance, 0.0)
	assert.Equal(t, 0.0, m.StdDev)
}

func TestUpdateModelMinMaxExact(t *testing.T) {
	var m models.StatisticalModel
	now := time.Now()
	for _, v := range []float64{5, -3, 12, 0, 8} {
		updateModel(&m, v, now)
	}
	assert.Equal(t, -3.0, m.Min)
	assert.Equal(t, 12.0, m.Max)
	assert.Equal(t, int64(5), m.Count)
}

func TestNudgePercentileDirection(t *testing.T) {
	// Values above the estimate push it up, values below push it down, with
	// the fixed 0.01 step factor.
	up := nudgePercentile(100, 110, 0.95)
	assert.Greater(t, up, 100.0)

	down := nudgePercentile(100, 90, 0.95)
	assert.Less(t, down, 100.0)

	// Down moves are damped harder for high quantiles.
	assert.Greater(t, up-100, 100-down)
}

func TestZScoreZeroStdDev(t *testing.T) {
	m := models.StatisticalModel{Mean: 50, StdDev: 0}
	assert.Equal(t, 0.0, zScore(&m, 500))
}

func TestPruneBufferCapAndRetention(t *testing.T) {
	now := time.Now()
	var buffer []models.DataPoint
	for i := 0; i < 200; i++ {
		buffer = append(buffer, models.DataPoint{Timestamp: now.Add(time.Duration(i-200) * time.Minute), Value: float64(i)})
	}

	pruned := pruneBuffer(buffer, now, time.Hour, 1000)
	for _, p := range pruned {
		assert.True(t, p.Timestamp.After(now.Add(-time.Hour-time.Second)))
	}

	capped := pruneBuffer(buffer, now, 24*time.Hour, 50)
	assert.Len(t, capped, 50)
	// Oldest entries go first.
	assert.Equal(t, 199.0, capped[len(capped)-1].Value)
}

func TestSeasonalExpectationEmptyPattern(t *testing.T) {
	_, ok := seasonalExpectation(nil, time.Now())
	assert.False(t, ok)

	_, ok = seasonalExpectation(&models.SeasonalPattern{}, time.Now())
	assert.False(t, ok)
}

func TestComputeSeasonalPatternBuckets(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	var buffer []models.DataPoint
	// Two observations in the same hour bucket.
	buffer = append(buffer,
		models.DataPoint{Timestamp: now, Value: 10},
		models.DataPoint{Timestamp: now.Add(10 * time.Minute), Value: 30},
	)

	pattern := computeSeasonalPattern(buffer, now)
	avg, ok := pattern.Hourly[14].Average()
	assert.True(t, ok)
	assert.Equal(t, 20.0, avg)

	_, ok = pattern.Hourly[3].Average()
	assert.False(t, ok)
}
