package synthesizer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseReport converts raw model output into a candidate object, trying
// progressively harder: clean, parse; structural repair, parse; first
// complete object, parse.
func parseReport(raw string) (map[string]interface{}, error) {
	cleaned := CleanResponse(raw)

	var report map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &report); err == nil {
		return report, nil
	}

	repaired := RepairStructure(cleaned)
	if err := json.Unmarshal([]byte(repaired), &report); err == nil {
		return report, nil
	}

	if extracted := ExtractFirstObject(repaired); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), &report); err == nil {
			return report, nil
		}
	}

	return nil, fmt.Errorf("response is not parseable JSON after repair")
}

// listFields and their expected shapes. Missing fields are tolerated
// (normalization defaults them); present fields must have the right
// type.
var listFields = []string{"executive_summary", "key_points", "insights", "risks", "opportunities", "sources"}

// validateReport checks field shapes on the parsed object. A summary
// that is itself JSON-looking text is rejected: it means the model
// nested the real report inside a string.
func validateReport(report map[string]interface{}) error {
	if report == nil {
		return fmt.Errorf("report is empty")
	}

	if raw, ok := report["summary"]; ok {
		summary, ok := raw.(string)
		if !ok {
			return fmt.Errorf("summary must be a string")
		}
		if looksLikeJSON(summary) {
			return fmt.Errorf("summary contains JSON instead of narrative text")
		}
	}

	for _, field := range listFields {
		raw, ok := report[field]
		if !ok || raw == nil {
			continue
		}
		if _, ok := raw.([]interface{}); !ok {
			return fmt.Errorf("%s must be a list", field)
		}
	}

	if raw, ok := report["structured_data"]; ok && raw != nil {
		if _, ok := raw.(map[string]interface{}); !ok {
			return fmt.Errorf("structured_data must be an object")
		}
	}

	if raw, ok := report["confidence_score"]; ok && raw != nil {
		if _, ok := raw.(float64); !ok {
			return fmt.Errorf("confidence_score must be a number")
		}
	}

	return nil
}

// looksLikeJSON reports whether a string is probably a serialized JSON
// object or array.
func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}
	if (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) {
		var v interface{}
		return json.Unmarshal([]byte(s), &v) == nil
	}
	return false
}
