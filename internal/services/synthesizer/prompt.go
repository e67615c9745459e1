// Package synthesizer turns corpus + snapshot + task prompt into a
// validated structured report. The model's output is untrusted text; a
// repair/validate/normalize pipeline converts it into a record that is
// always safe to persist.
package synthesizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

const reportInstructions = `You are a financial market analyst. Produce one report as a single JSON object and nothing else: no prose before or after, no code fences.

The object must have exactly these fields:
  "executive_summary": list of strings
  "summary": string (narrative text, never JSON)
  "key_points": list of strings
  "structured_data": object
  "insights": list of at least 3 strings
  "risks": list of at least 3 strings
  "opportunities": list of at least 3 strings
  "sources": list of strings (URLs used)
  "confidence_score": number between 0 and 1

Base the report only on the provided market snapshot and articles.`

const correctiveInstruction = `Your previous response was not a valid JSON object matching the required schema. Respond again with ONLY the JSON object: all required fields present, "summary" as plain narrative text, and no code fences.`

// buildRequest assembles one model request. shrink < 1.0 reduces the
// excerpt ceilings and output size after a rate-limit error.
func buildRequest(task *models.AnalysisTask, corpus []*models.ScrapedDocument, snapshot *models.MarketSnapshot,
	maxCorpusChars, maxSnapshotChars, maxOutputTokens int, effort string, shrink float64, corrective bool) interfaces.GenerateRequest {

	corpusLimit := scale(maxCorpusChars, shrink)
	snapshotLimit := scale(maxSnapshotChars, shrink)
	outputTokens := scale(maxOutputTokens, shrink)

	var b strings.Builder
	b.WriteString("## Task\n")
	b.WriteString(task.Prompt)
	b.WriteString("\n\n## Market snapshot\n")
	b.WriteString(snapshot.Render(snapshotLimit))
	b.WriteString("\n\n## Recent articles\n")
	b.WriteString(renderCorpus(corpus, corpusLimit))

	instructions := reportInstructions
	if corrective {
		instructions = instructions + "\n\n" + correctiveInstruction
	}

	return interfaces.GenerateRequest{
		Instructions:    instructions,
		Input:           b.String(),
		MaxOutputTokens: outputTokens,
		ReasoningEffort: effort,
	}
}

// renderCorpus lays the documents out newest first under a shared
// character ceiling (0 = unlimited).
func renderCorpus(corpus []*models.ScrapedDocument, maxChars int) string {
	var b strings.Builder
	for i, doc := range corpus {
		entry := fmt.Sprintf("### [%d] %s (%s, %s)\n%s\n\n",
			i+1, doc.Title, doc.Source,
			doc.PublishedOrRetrieved().UTC().Format("2006-01-02 15:04"),
			doc.Text)

		if maxChars > 0 && b.Len()+len(entry) > maxChars {
			if remaining := maxChars - b.Len(); remaining > 0 {
				b.WriteString(truncateToRuneBoundary(entry, remaining))
			}
			b.WriteString("\n... [truncated]")
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

// truncateToRuneBoundary cuts s to at most max bytes without splitting
// a UTF-8 sequence.
func truncateToRuneBoundary(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func scale(value int, factor float64) int {
	if factor >= 1.0 || value <= 0 {
		return value
	}
	scaled := int(float64(value) * factor)
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}
