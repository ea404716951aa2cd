// Package notify renders cron policy output into notification payloads and
// delivers them to the configured sinks.
package notify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Render substitutes `{policy.name}` and `{output.<field>}` placeholders in
// template. Referencing an undefined field is an error so typos surface
// instead of silently rendering the placeholder.
func Render(template, policyName string, output map[string]any) (string, error) {
	var renderErr error
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		val, err := resolve(key, policyName, output)
		if err != nil && renderErr == nil {
			renderErr = err
		}
		return val
	})
	if renderErr != nil {
		return "", renderErr
	}
	return rendered, nil
}

func resolve(key, policyName string, output map[string]any) (string, error) {
	if key == "policy.name" {
		return policyName, nil
	}
	field, ok := strings.CutPrefix(key, "output.")
	if !ok {
		return "", fmt.Errorf("unknown placeholder {%s}", key)
	}
	val, ok := output[field]
	if !ok {
		return "", fmt.Errorf("output has no field %q referenced by {%s}", field, key)
	}
	switch v := val.(type) {
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to render output field %q: %w", field, err)
		}
		return string(b), nil
	}
}
