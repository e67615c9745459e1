package synthesizer

import (
	"strings"

	"github.com/ternarybob/speculor/internal/models"
)

// maxSanePrice bounds model-estimated prices; anything above it (or
// negative) is treated as aberrant.
const maxSanePrice = 100_000_000

// executiveSummaryLen is how many key points or sentences seed a
// missing executive summary.
const executiveSummaryLen = 3

// minListEntries is the floor for insights, risks and opportunities in
// every persisted result.
const minListEntries = 3

// Generic domain defaults used when neither the model output nor the
// structured sections yield enough entries.
var (
	defaultInsights = []string{
		"Market direction remains data-dependent in the near term.",
		"Cross-asset signals are mixed; no single theme dominates.",
		"Liquidity conditions continue to drive short-term moves.",
	}
	defaultRisks = []string{
		"Unexpected macroeconomic data could trigger sharp repricing.",
		"Geopolitical developments remain an unquantified tail risk.",
		"Concentrated positioning raises the cost of crowded exits.",
	}
	defaultOpportunities = []string{
		"Volatility dislocations may offer attractive entry points.",
		"Defensive sectors provide relative value if momentum fades.",
		"Quality assets repriced in broad selloffs merit watching.",
	}
)

// normalizeReport converts a validated candidate object into the final
// task result, applying defaults and deterministic backfills so the
// persisted record is always complete.
func normalizeReport(report map[string]interface{}) *models.TaskResult {
	result := &models.TaskResult{
		Summary:          stringField(report, "summary"),
		ExecutiveSummary: stringList(report["executive_summary"]),
		KeyPoints:        stringList(report["key_points"]),
		Insights:         stringList(report["insights"]),
		Risks:            stringList(report["risks"]),
		Opportunities:    stringList(report["opportunities"]),
		Sources:          stringList(report["sources"]),
		StructuredData:   objectField(report, "structured_data"),
		Confidence:       clampConfidence(numberField(report, "confidence_score")),
	}

	if len(result.ExecutiveSummary) == 0 {
		result.ExecutiveSummary = deriveExecutiveSummary(result.KeyPoints, result.Summary)
	}

	result.Insights = backfill(result.Insights, result.StructuredData, "insights", defaultInsights)
	result.Risks = backfill(result.Risks, result.StructuredData, "risks", defaultRisks)
	result.Opportunities = backfill(result.Opportunities, result.StructuredData, "opportunities", defaultOpportunities)

	applyPriceSanity(report, result)

	return result
}

// deriveExecutiveSummary seeds the summary from the first key points,
// falling back to the narrative's leading sentences.
func deriveExecutiveSummary(keyPoints []string, summary string) []string {
	if len(keyPoints) > 0 {
		n := len(keyPoints)
		if n > executiveSummaryLen {
			n = executiveSummaryLen
		}
		return append([]string(nil), keyPoints[:n]...)
	}

	sentences := splitSentences(summary)
	if len(sentences) > executiveSummaryLen {
		sentences = sentences[:executiveSummaryLen]
	}
	return sentences
}

// backfill tops a list up to the minimum entry count: first from the
// matching nested structured section, then from the generic defaults.
func backfill(list []string, structured map[string]interface{}, section string, defaults []string) []string {
	if len(list) >= minListEntries {
		return list
	}

	for _, candidate := range nestedStrings(structured, section) {
		if len(list) >= minListEntries {
			return list
		}
		if !contains(list, candidate) {
			list = append(list, candidate)
		}
	}

	for _, candidate := range defaults {
		if len(list) >= minListEntries {
			return list
		}
		if !contains(list, candidate) {
			list = append(list, candidate)
		}
	}
	return list
}

// applyPriceSanity replaces an out-of-bound estimated price with an
// explicit zero-value, zero-confidence aberrant result.
func applyPriceSanity(report map[string]interface{}, result *models.TaskResult) {
	price, found := priceField(report)
	if !found {
		return
	}

	if price < 0 || price > maxSanePrice {
		result.EstimatedPrice = 0
		result.Confidence = 0
		result.Aberrant = true
		return
	}
	result.EstimatedPrice = price
}

func priceField(report map[string]interface{}) (float64, bool) {
	for _, key := range []string{"estimated_price", "price"} {
		if raw, ok := report[key]; ok {
			if v, ok := raw.(float64); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// nestedStrings collects string values from a named section of the
// structured data, one level deep.
func nestedStrings(structured map[string]interface{}, section string) []string {
	if structured == nil {
		return nil
	}
	raw, ok := structured[section]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []interface{}:
		return stringList(v)
	case map[string]interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringField(report map[string]interface{}, key string) string {
	if v, ok := report[key].(string); ok {
		return v
	}
	return ""
}

func numberField(report map[string]interface{}, key string) float64 {
	if v, ok := report[key].(float64); ok {
		return v
	}
	return 0
}

func objectField(report map[string]interface{}, key string) map[string]interface{} {
	if v, ok := report[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

func stringList(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// clampConfidence maps the score into [0,1]; values that look like
// percentages are scaled down.
func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 && v <= 100 {
		return v / 100
	}
	if v > 100 {
		return 1
	}
	return v
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
