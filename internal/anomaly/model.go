package anomaly

import (
	"math"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/models"
)

// percentileStep is the fixed nudge rate for the decayed percentile
// estimates. The estimates converge slowly but update in O(1) per sample.
const percentileStep = 0.01

// updateModel folds one sample into the online statistics. The mean is an
// exponential moving average with decay alpha = min(1/count, 0.1); the
// variance follows a Welford-style update using the pre- and post-update
// means so early samples behave like a plain running variance.
func updateModel(m *models.StatisticalModel, value float64, ts time.Time) {
	m.Count++

	if m.Count == 1 {
		m.Mean = value
		m.Variance = 0
		m.StdDev = 0
		m.Min = value
		m.Max = value
		m.P50 = value
		m.P95 = value
		m.P99 = value
		m.LastUpdated = ts
		return
	}

	alpha := math.Min(1.0/float64(m.Count), 0.1)
	oldMean := m.Mean
	m.Mean = oldMean + alpha*(value-oldMean)

	// Welford-style: cross-product of the deviations from the pre- and
	// post-update means.
	n := float64(m.Count)
	m.Variance = ((n-1)*m.Variance + (value-oldMean)*(value-m.Mean)) / n
	if m.Variance < 0 {
		m.Variance = 0
	}
	m.StdDev = math.Sqrt(m.Variance)

	if value < m.Min {
		m.Min = value
	}
	if value > m.Max {
		m.Max = value
	}

	m.P50 = nudgePercentile(m.P50, value, 0.50)
	m.P95 = nudgePercentile(m.P95, value, 0.95)
	m.P99 = nudgePercentile(m.P99, value, 0.99)

	m.LastUpdated = ts
}

// nudgePercentile moves a percentile estimate a small fixed step toward the
// observed value. Over many samples the estimate settles near the target
// quantile q: it steps up with probability proportional to q when the value
// exceeds it, and down weighted by (1-q) otherwise.
func nudgePercentile(current, value, q float64) float64 {
	step := percentileStep * math.Abs(value-current)
	if value > current {
		return current + step*q
	}
	return current - step*(1-q)
}

// zScore grades the statistical distance of value from the model mean.
// Returns 0 when the model has no spread yet.
func zScore(m *models.StatisticalModel, value float64) float64 {
	if m.StdDev == 0 {
		return 0
	}
	return math.Abs(value-m.Mean) / m.StdDev
}

// pruneBuffer drops learning-buffer points older than the retention horizon
// and enforces the size cap, oldest first.
func pruneBuffer(buffer []models.DataPoint, now time.Time, retention time.Duration, cap int) []models.DataPoint {
	cutoff := now.Add(-retention)
	start := 0
	for start < len(buffer) && buffer[start].Timestamp.Before(cutoff) {
		start++
	}
	buffer = buffer[start:]
	if len(buffer) > cap {
		buffer = buffer[len(buffer)-cap:]
	}
	return buffer
}
