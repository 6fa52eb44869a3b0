package alerts

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/platformbuilds/mirador-remedy/internal/models"
)

// Fingerprint derives the stable dedup key for an alert from its name and
// label set. The caller-supplied ID is deliberately not part of the hash:
// two producers reporting the same logical condition must collapse onto one
// active alert.
func Fingerprint(name string, labels map[string]string) string {
	h := fnv.New64a()
	h.Write([]byte(name))

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(labels[k]))
	}

	return fmt.Sprintf("%016x", h.Sum64())
}

// WrapAnomaly converts an anomaly event into an alert candidate for the
// lifecycle pipeline.
func WrapAnomaly(ev *models.AnomalyEvent) *models.Alert {
	severity := models.AlertSeverityInfo
	switch ev.Severity {
	case "high":
		severity = models.AlertSeverityCritical
	case "medium":
		severity = models.AlertSeverityWarning
	}

	labels := map[string]string{"metric": ev.MetricName}
	if ev.Service != "" {
		labels["service"] = ev.Service
	}

	return &models.Alert{
		ID:       ev.ID,
		Name:     "AnomalyDetected:" + ev.MetricName,
		Severity: severity,
		Status:   models.AlertStatusFiring,
		Description: fmt.Sprintf("anomaly on %s: expected %.3f, observed %.3f (score %.2f)",
			ev.MetricKey, ev.ExpectedValue, ev.ActualValue, ev.Score),
		Labels: labels,
		Annotations: map[string]string{
			"anomaly_score":      fmt.Sprintf("%.3f", ev.Score),
			"anomaly_confidence": fmt.Sprintf("%.2f", ev.Confidence),
		},
		StartsAt: ev.Timestamp,
	}
}
