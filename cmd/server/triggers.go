package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// parseTriggers accepts "30,90,180" from the environment, "[30.000000,90.000000]" from
// a pflag slice value, or an already decoded list.
func parseTriggers(raw any) ([]float64, error) {
	var parts []string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []float64:
		return v, nil
	case string:
		v = strings.Trim(strings.TrimSpace(v), "[]")
		if v == "" {
			return nil, nil
		}
		parts = strings.Split(v, ",")
	default:
		items, err := cast.ToSliceE(v)
		if err != nil {
			return nil, fmt.Errorf("invalid vote triggers %v: %w", raw, err)
		}
		for _, item := range items {
			parts = append(parts, cast.ToString(item))
		}
	}

	triggers := make([]float64, 0, len(parts))
	for _, p := range parts {
		t, err := cast.ToFloat64E(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid vote trigger %q: %w", p, err)
		}
		triggers = append(triggers, t)
	}

	return triggers, nil
}
