package anomaly

import "github.com/platformbuilds/mirador-remedy/internal/models"

// businessRule is a fixed override keyed by a well-known metric name. These
// fire regardless of what the statistical test says; a platform metric past
// its operational limit is an anomaly even inside its historical spread.
type businessRule struct {
	exceeds   bool // true: value > threshold triggers; false: value < threshold
	threshold float64
	severity  string
	reason    string
}

var businessRules = map[string]businessRule{
	"response_time_ms":     {exceeds: true, threshold: 2000, severity: "high", reason: "response latency above 2s"},
	"success_rate":         {exceeds: false, threshold: 0.95, severity: "high", reason: "success rate below 95%"},
	"cpu_usage_percent":    {exceeds: true, threshold: 90, severity: "medium", reason: "CPU above 90%"},
	"memory_usage_percent": {exceeds: true, threshold: 90, severity: "medium", reason: "memory above 90%"},
	"error_rate":           {exceeds: true, threshold: 0.05, severity: "high", reason: "error rate above 5%"},
	"queue_depth":          {exceeds: true, threshold: 10000, severity: "medium", reason: "queue depth above 10k"},
}

// evaluateBusinessRules checks the fixed overrides for a sample. Returns the
// matched rule, or ok=false when the metric has no override or is within
// limits.
func evaluateBusinessRules(sample *models.MetricSample) (businessRule, bool) {
	rule, ok := businessRules[sample.Name]
	if !ok {
		return businessRule{}, false
	}
	if rule.exceeds && sample.Value > rule.threshold {
		return rule, true
	}
	if !rule.exceeds && sample.Value < rule.threshold {
		return rule, true
	}
	return businessRule{}, false
}
