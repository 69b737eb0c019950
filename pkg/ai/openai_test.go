package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEvaluationResponse(t *testing.T) {
	content := `{
		"score": 7,
		"coverage": [
			{"topic": "etiology", "status": "full"},
			{"topic": "treatment", "status": "partial"}
		],
		"missed_points": ["differential diagnosis"],
		"summary": "Solid answer with gaps in treatment."
	}`

	result, err := parseEvaluationResponse(content)
	require.NoError(t, err)
	require.Equal(t, 7, result.Score)
	require.Len(t, result.Coverage, 2)
	require.Equal(t, CoverageFull, result.Coverage[0].Status)
	require.Equal(t, []string{"differential diagnosis"}, result.MissedPoints)
}

func TestParseEvaluationResponseClampsScore(t *testing.T) {
	result, err := parseEvaluationResponse(`{"score": 14, "coverage": [], "missed_points": [], "summary": "x"}`)
	require.NoError(t, err)
	require.Equal(t, 10, result.Score)

	result, err = parseEvaluationResponse(`{"score": -3, "coverage": [], "missed_points": [], "summary": "x"}`)
	require.NoError(t, err)
	require.Equal(t, 0, result.Score)
}

func TestParseEvaluationResponseRejectsMalformedPayload(t *testing.T) {
	_, err := parseEvaluationResponse(`not json`)
	require.Error(t, err)

	// Schema violation: missing required fields.
	_, err = parseEvaluationResponse(`{"score": 5}`)
	require.Error(t, err)

	// Schema violation: unknown coverage status.
	_, err = parseEvaluationResponse(`{"score": 5, "coverage": [{"topic": "x", "status": "unknown"}], "missed_points": [], "summary": "x"}`)
	require.Error(t, err)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	require.Error(t, err)
}
