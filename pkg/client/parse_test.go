package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/pkg/types"
)

func TestParseAnalysisResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "plain json",
			raw:  `{"primary":{"label":"face","confidence":0.9,"box":{"x":0.1,"y":0.2,"w":0.3,"h":0.4}},"description":"a person","tags":["portrait"]}`,
		},
		{
			name: "fenced with comments and trailing commas",
			raw: "```json\n{\n  // the face\n  \"primary\": {\"label\": \"face\", \"confidence\": 0.9, \"box\": {\"x\": 0.1, \"y\": 0.2, \"w\": 0.3, \"h\": 0.4,},},\n  /* extra */ \"description\": \"a person\",\n  \"tags\": [\"portrait\",],\n}\n```",
		},
		{
			name: "double slash inside description",
			raw:  `{"primary":{"label":"face","confidence":0.9,"box":{"x":0.1,"y":0.2,"w":0.3,"h":0.4}},"description":"photo from https://example.com//photo","tags":["portrait"]}`,
		},
		{
			name: "comments outside strings with url inside",
			raw:  "{\n  // located face\n  \"primary\": {\"label\": \"face\", \"confidence\": 0.9, \"box\": {\"x\": 0.1, \"y\": 0.2, \"w\": 0.3, \"h\": 0.4}},\n  \"description\": \"see http://a.b/*c*/ d, }\",\n  \"tags\": [\"portrait\"],\n}",
		},
		{
			name: "prose around object",
			raw:  `Sure! Here it is: {"primary":{"label":"face","confidence":0.9,"box":{"x":0.1,"y":0.2,"w":0.3,"h":0.4}},"description":"a person","tags":["portrait"]} Hope that helps.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysisResult(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, "face", got.Primary.Label)
			require.NotNil(t, got.Primary.Box)
			assert.InDelta(t, 0.3, got.Primary.Box.W, 1e-9)
			assert.Equal(t, []string{"portrait"}, got.Tags)
		})
	}
}

func TestParseAnalysisResultKeepsStrings(t *testing.T) {
	got, err := ParseAnalysisResult("{\"primary\":{\"label\":\"face\",\"confidence\":0.9,\"box\":{\"x\":0.1,\"y\":0.2,\"w\":0.3,\"h\":0.4,},},\"description\":\"a // b /* c */ d, ]\",\"tags\":[],}")
	require.NoError(t, err)
	assert.Equal(t, "a // b /* c */ d, ]", got.Description)
}

func TestParseAnalysisResultRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"I cannot see a face in this picture.",
		`{"primary": {"label": "face", "box": {"x": "left"}}}`,
		"",
	} {
		_, err := ParseAnalysisResult(raw)
		assert.ErrorIs(t, err, types.ErrInvalidDetection, "raw %q", raw)
	}
}

func TestParseAnalysisResultMissingBox(t *testing.T) {
	got, err := ParseAnalysisResult(`{"primary":{"label":"face","confidence":0.8}}`)
	require.NoError(t, err)
	assert.Nil(t, got.Primary.Box)
}
