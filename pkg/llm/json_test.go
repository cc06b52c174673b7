package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[\"x\"]\n```", `["x"]`},
		{"```{\"a\":1}```", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestDecodeJSONSkipsProse(t *testing.T) {
	var keywords []string
	require.NoError(t, DecodeJSON(`Here are the keywords: ["alpha", "beta"] hope this helps`, &keywords))
	assert.Equal(t, []string{"alpha", "beta"}, keywords)

	assert.Error(t, DecodeJSON("no json here", &keywords))
}
