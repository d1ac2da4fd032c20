package modeljson

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDetectionResult(t *testing.T) {
	raw := "```json\n" + `{
  // two findings
  "findings": [
    {"label": "caries", "confidence": 0.91, "box": {"x": 0.1, "y": 0.2, "w": 0.3, "h": 0.4}},
    {"label": "crown", "confidence": 0.55, "box": {"x": 0.5, "y": 0.5, "w": 0.1, "h": 0.1},
     "polygon": [{"x": 0.5, "y": 0.5}, {"x": 0.6, "y": 0.5}, {"x": 0.55, "y": 0.6},]},
  ],
  "description": "two findings", /* trailing */
}` + "\n```"

	result := ParseDetectionResult(raw)
	require.Equal(t, "two findings", result.Description)
	require.Len(t, result.Findings, 2)
	require.Equal(t, "caries", result.Findings[0].Label)
	require.InDelta(t, 0.91, result.Findings[0].Confidence, 1e-9)
	require.InDelta(t, 0.3, result.Findings[0].Box.W, 1e-9)
	require.Len(t, result.Findings[1].Polygon, 3)
}

func TestParseDetectionResultKeepsSlashesInStrings(t *testing.T) {
	raw := `{"findings": [{"label": "caries", "confidence": 0.9, "box": {"x": 0.1, "y": 0.1, "w": 0.2, "h": 0.2}}],
  "description": "see https://example.org/a//b, /* not a comment */ done"} // model note`

	result := ParseDetectionResult(raw)
	require.Len(t, result.Findings, 1)
	require.Equal(t, "caries", result.Findings[0].Label)
	require.Equal(t, "see https://example.org/a//b, /* not a comment */ done", result.Description)
}

func TestParseDetectionResultFallbacks(t *testing.T) {
	result := ParseDetectionResult("I see a panoramic x-ray of teeth.")
	require.Empty(t, result.Findings)
	require.Equal(t, "model returned non-JSON response", result.Description)

	result = ParseDetectionResult(`{"findings": [{"label": 3}]}`)
	require.Empty(t, result.Findings)
	require.Equal(t, "failed to parse model response", result.Description)

	result = ParseDetectionResult(`{"description": "nothing found"}`)
	require.NotNil(t, result.Findings)
	require.Empty(t, result.Findings)
}

func TestSanitize(t *testing.T) {
	require.Equal(t, `{"a": 1}`, Sanitize("prefix {\"a\": 1,} suffix"))
	require.Equal(t, `{"a": [1, 2]}`, Sanitize("```\n{\"a\": [1, 2,]}\n```"))
	require.Equal(t, `{"a": "x,]", "b": "\"//\""}`, Sanitize(`{"a": "x,]", "b": "\"//\""}`))
	require.Equal(t, "{\"a\": 1 \n}", Sanitize("{\"a\": 1, // one\n}"))
}
