package synthesizer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanResponseStripsFencesAndTrailingCommas(t *testing.T) {
	raw := "```json\n{\"summary\": \"ok\", \"key_points\": [\"a\", \"b\",],}\n```"

	cleaned := CleanResponse(raw)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(cleaned), &parsed))
	assert.Equal(t, "ok", parsed["summary"])
	assert.Len(t, parsed["key_points"], 2)
}

func TestCleanResponseNormalizesTypographicQuotes(t *testing.T) {
	raw := "{“summary”: “ok”}"

	cleaned := CleanResponse(raw)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(cleaned), &parsed))
	assert.Equal(t, "ok", parsed["summary"])
}

// Cleaning a fenced object with trailing commas yields the same logical
// object as cleaning plain JSON.
func TestCleanResponseParsingIdempotence(t *testing.T) {
	plain := `{"summary":"ok","key_points":["a","b"]}`
	fenced := "```json\n{\"summary\":\"ok\",\"key_points\":[\"a\",\"b\",]}\n```"

	var fromPlain, fromFenced map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(CleanResponse(plain)), &fromPlain))
	require.NoError(t, json.Unmarshal([]byte(CleanResponse(fenced)), &fromFenced))
	assert.Equal(t, fromPlain, fromFenced)

	// Cleaning already-clean text is a no-op
	assert.Equal(t, CleanResponse(plain), CleanResponse(CleanResponse(plain)))
}

// A well-formed response whose narrative contains comma-before-closer
// sequences or typographic quotes keeps its exact string content.
func TestCleanResponsePreservesStringContent(t *testing.T) {
	raw := `{"summary": "Watch the range [3,900, 4,100, ] carefully", "note": "the “soft landing” view, {for now,}"}`

	cleaned := CleanResponse(raw)
	assert.Equal(t, raw, cleaned)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(cleaned), &parsed))
	assert.Equal(t, "Watch the range [3,900, 4,100, ] carefully", parsed["summary"])
	assert.Equal(t, "the “soft landing” view, {for now,}", parsed["note"])
}

// Escaped quotes do not end a string early; the characters after them
// are still treated as string content.
func TestCleanResponseHandlesEscapedQuotes(t *testing.T) {
	raw := `{"summary": "he said \"sell, ]\" and left"}`

	cleaned := CleanResponse(raw)
	assert.Equal(t, raw, cleaned)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(cleaned), &parsed))
	assert.Equal(t, `he said "sell, ]" and left`, parsed["summary"])
}

func TestRepairStructureBalances(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated object", `{"summary": "ok", "key_points": ["a"`},
		{"unterminated string", `{"summary": "cut off`},
		{"nested arrays", `{"a": [[1, 2], [3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repaired := RepairStructure(tt.input)
			var parsed map[string]interface{}
			assert.NoError(t, json.Unmarshal([]byte(repaired), &parsed), "repaired: %s", repaired)
		})
	}
}

// Repairing an already-balanced string returns it unchanged.
func TestRepairStructureIdempotence(t *testing.T) {
	balanced := `{"summary": "ok", "nested": {"list": [1, 2, 3]}}`
	assert.Equal(t, balanced, RepairStructure(balanced))

	once := RepairStructure(`{"broken": [`)
	assert.Equal(t, once, RepairStructure(once))
}

func TestExtractFirstObject(t *testing.T) {
	text := `Here is the report: {"summary": "ok", "n": {"x": 1}} and some trailing words {"other": true}`
	extracted := ExtractFirstObject(text)
	assert.Equal(t, `{"summary": "ok", "n": {"x": 1}}`, extracted)

	assert.Equal(t, "", ExtractFirstObject("no object here"))
	assert.Equal(t, "", ExtractFirstObject(`{"never closed": [`))
}

func TestExtractFirstObjectIgnoresBracesInStrings(t *testing.T) {
	text := `{"summary": "uses { and } inside", "ok": true}`
	assert.Equal(t, text, ExtractFirstObject(text))
}
