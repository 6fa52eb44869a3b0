package anomaly

import (
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/models"
)

// minSeasonalSamples is the minimum buffer population before a seasonal
// pattern is worth computing (one week of hourly data).
const minSeasonalSamples = 168

// seasonalRefreshEvery triggers a pattern recompute every N new samples once
// the minimum population exists.
const seasonalRefreshEvery = 100

// Blend weights for the seasonal expectation. Renormalized over the buckets
// that actually have data for the sample's position in time.
const (
	hourlyWeight = 0.4
	dailyWeight  = 0.4
	weeklyWeight = 0.2
)

// computeSeasonalPattern rebuilds the bucketed averages from the learning
// buffer.
func computeSeasonalPattern(buffer []models.DataPoint, now time.Time) *models.SeasonalPattern {
	p := &models.SeasonalPattern{ComputedAt: now}
	for _, dp := range buffer {
		hour := dp.Timestamp.Hour()
		day := int(dp.Timestamp.Weekday())
		_, week := dp.Timestamp.ISOWeek()
		weekIdx := (week - 1) % 52

		p.Hourly[hour].Sum += dp.Value
		p.Hourly[hour].Count++
		p.Daily[day].Sum += dp.Value
		p.Daily[day].Count++
		p.Weekly[weekIdx].Sum += dp.Value
		p.Weekly[weekIdx].Count++
	}
	return p
}

// seasonalExpectation blends the hourly/daily/weekly bucket averages for the
// sample's timestamp. Returns false when no bucket has data.
func seasonalExpectation(p *models.SeasonalPattern, ts time.Time) (float64, bool) {
	if p == nil {
		return 0, false
	}

	hour := ts.Hour()
	day := int(ts.Weekday())
	_, week := ts.ISOWeek()
	weekIdx := (week - 1) % 52

	var sum, weight float64
	if avg, ok := p.Hourly[hour].Average(); ok {
		sum += hourlyWeight * avg
		weight += hourlyWeight
	}
	if avg, ok := p.Daily[day].Average(); ok {
		sum += dailyWeight * avg
		weight += dailyWeight
	}
	if avg, ok := p.Weekly[weekIdx].Average(); ok {
		sum += weeklyWeight * avg
		weight += weeklyWeight
	}

	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}
