package remediation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolateDottedPaths(t *testing.T) {
	ctx := map[string]interface{}{
		"alert": map[string]interface{}{
			"name":     "HighErrorRate",
			"severity": "critical",
		},
		"labels": map[string]string{
			"service": "checkout",
		},
		"metric": map[string]interface{}{
			"value": 42.0,
		},
	}

	out := interpolateString("restart ${labels.service} for ${alert.name} (${metric.value})", ctx)
	assert.Equal(t, "restart checkout for HighErrorRate (42)", out)
}

func TestInterpolateUnresolvedLeftVerbatim(t *testing.T) {
	ctx := map[string]interface{}{"alert": map[string]interface{}{"name": "X"}}

	out := interpolateString("value is ${alert.missing} and ${nope.at.all}", ctx)
	assert.Equal(t, "value is ${alert.missing} and ${nope.at.all}", out)
}

func TestInterpolateRecursesIntoConfig(t *testing.T) {
	ctx := map[string]interface{}{
		"labels": map[string]string{"service": "checkout"},
	}
	cfg := map[string]interface{}{
		"service": "${labels.service}",
		"args":    []interface{}{"--target", "${labels.service}"},
		"nested": map[string]interface{}{
			"url": "http://ops/${labels.service}/restart",
		},
	}

	out := interpolate(cfg, ctx).(map[string]interface{})
	assert.Equal(t, "checkout", out["service"])
	assert.Equal(t, []interface{}{"--target", "checkout"}, out["args"])
	assert.Equal(t, "http://ops/checkout/restart", out["nested"].(map[string]interface{})["url"])

	// The original config is untouched.
	assert.Equal(t, "${labels.service}", cfg["service"])
}

func TestStringifyTrimsIntegralFloats(t *testing.T) {
	assert.Equal(t, "3", stringify(3.0))
	assert.Equal(t, "3.5", stringify(3.5))
	assert.Equal(t, "x", stringify("x"))
	assert.Equal(t, "true", stringify(true))
}

func TestSanitizeMasksSecrets(t *testing.T) {
	payload := map[string]interface{}{
		"url":     "http://ops/restart",
		"token":   "abc123",
		"ApiKey":  "k",
		"api_key": "k2",
		"headers": map[string]interface{}{
			"Authorization-Token": "deep",
			"X-Trace":             "keep",
		},
		"db_password": "hunter2",
	}

	out := sanitize(payload)
	assert.Equal(t, "http://ops/restart", out["url"])
	assert.Equal(t, "***", out["token"])
	assert.Equal(t, "***", out["ApiKey"])
	assert.Equal(t, "***", out["api_key"])
	assert.Equal(t, "***", out["db_password"])

	headers := out["headers"].(map[string]interface{})
	assert.Equal(t, "***", headers["Authorization-Token"])
	assert.Equal(t, "keep", headers["X-Trace"])

	// Source payload keeps its secrets; sanitize copies.
	assert.Equal(t, "abc123", payload["token"])
}
