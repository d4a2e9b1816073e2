package toolrunner

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseLabels reads a TOOL_CONTAINER_LABELS value. Both list form
// (["team=docs", 'logging']) and mapping form ({'team': 'docs'}) are
// accepted, with single or double quotes. List entries without "=" become
// labels with an empty value.
func ParseLabels(raw string) (map[string]string, error) {
	labels := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return labels, nil
	}

	var node any
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}

	switch v := node.(type) {
	case nil:
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parse labels: entry %v is not a string", item)
			}
			key, value, _ := strings.Cut(s, "=")
			if key == "" {
				return nil, fmt.Errorf("parse labels: empty key in %q", s)
			}
			labels[key] = value
		}
	case map[string]any:
		for key, value := range v {
			if value == nil {
				labels[key] = ""
				continue
			}
			labels[key] = fmt.Sprint(value)
		}
	default:
		return nil, fmt.Errorf("parse labels: expected list or mapping, got %T", node)
	}
	return labels, nil
}
