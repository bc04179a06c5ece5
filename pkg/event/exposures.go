package event

import (
	"fmt"
	"strings"
)

// Internal event names, namespaced to keep them apart from application events.
const (
	GateExposureName         = "flare::gate_exposure"
	ConfigExposureName       = "flare::config_exposure"
	LayerExposureName        = "flare::layer_exposure"
	DefaultValueFallbackName = "flare::default_value_fallback"
	DeliveryFailureName      = "flare::delivery_failure"
)

// keySep joins dedup key components. ASCII unit separator, which cannot
// plausibly appear in a gate name, rule id or reason.
const keySep = "\x1f"

// NewGateExposure builds a gate exposure event and its dedup key.
func NewGateExposure(user *User, gate string, value bool, ruleID string, secondary []map[string]string, details EvalDetails, manual bool) (Event, string) {
	md := map[string]interface{}{
		"gate":      gate,
		"gateValue": fmt.Sprintf("%t", value),
		"ruleID":    ruleID,
		"reason":    details.Reason,
	}
	markManual(md, manual)
	ev := New(GateExposureName, user, nil, md)
	ev.SecondaryExposures = secondary
	key := strings.Join([]string{gate, fmt.Sprintf("%t", value), ruleID, details.Reason}, keySep)
	return ev, key
}

// NewConfigExposure builds a dynamic-config exposure event and its dedup key.
func NewConfigExposure(user *User, config string, ruleID string, secondary []map[string]string, details EvalDetails, manual bool) (Event, string) {
	md := map[string]interface{}{
		"config": config,
		"ruleID": ruleID,
		"reason": details.Reason,
	}
	markManual(md, manual)
	ev := New(ConfigExposureName, user, nil, md)
	ev.SecondaryExposures = secondary
	key := strings.Join([]string{config, ruleID, details.Reason}, keySep)
	return ev, key
}

// NewLayerExposure builds a layer-parameter exposure event and its dedup key.
// The key includes the parameter and allocation so reading a second parameter
// from the same layer still logs.
func NewLayerExposure(user *User, layer, ruleID, allocatedExperiment, parameter string, isExplicit bool, secondary []map[string]string, details EvalDetails, manual bool) (Event, string) {
	md := map[string]interface{}{
		"config":              layer,
		"ruleID":              ruleID,
		"allocatedExperiment": allocatedExperiment,
		"parameterName":       parameter,
		"isExplicitParameter": fmt.Sprintf("%t", isExplicit),
		"reason":              details.Reason,
	}
	markManual(md, manual)
	ev := New(LayerExposureName, user, nil, md)
	ev.SecondaryExposures = secondary
	key := strings.Join([]string{
		layer, ruleID, allocatedExperiment, parameter,
		fmt.Sprintf("%t", isExplicit), details.Reason,
	}, keySep)
	return ev, key
}

// NewDefaultValueFallback builds the diagnostic event emitted when an
// application falls back to a default value.
func NewDefaultValueFallback(user *User, message string, metadata map[string]interface{}) Event {
	md := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["message"] = message
	return New(DefaultValueFallbackName, user, nil, md)
}

func markManual(md map[string]interface{}, manual bool) {
	if manual {
		md["isManualExposure"] = "true"
	}
}
