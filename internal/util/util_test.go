package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Agent {{.Name | upper}} <{{default \"none\" .Missing}}>\n{{bullets .Items}}", map[string]any{
		"Name":  "sales",
		"Items": []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Agent SALES <none>\n- a\n- b", out)

	plain, err := RenderTemplate("no markers & <raw>", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers & <raw>", plain)

	_, err = RenderTemplate("{{.Broken", nil)
	assert.Error(t, err)
}

func TestDecodeLenient(t *testing.T) {
	var out struct{ Summary string }

	require.NoError(t, DecodeLenient(` {"summary":"direct"} `, &out))
	assert.Equal(t, "direct", out.Summary)

	text := "Here you go:\n```json\n{\"summary\": \"fenced\"}\n```\nThanks"
	require.NoError(t, DecodeLenient(text, &out))
	assert.Equal(t, "fenced", out.Summary)

	assert.ErrorIs(t, DecodeLenient("just prose", &out), ErrNoJSONObject)
	assert.Error(t, DecodeObject("{not json", &out))
}

func TestSchemaValidation(t *testing.T) {
	type settings struct {
		Mode  string `json:"mode,omitempty" enum:"fast,slow"`
		Limit int    `json:"limit"`
		On    bool   `json:"on,omitempty"`
	}
	schema := CreateSchema(settings{})
	assert.Equal(t, []string{"limit"}, schema["required"])

	tests := []struct {
		name   string
		params map[string]any
		field  string
	}{
		{"valid", map[string]any{"limit": 3, "mode": "Fast", "on": true, "extra": "x"}, ""},
		{"json float integer", map[string]any{"limit": float64(2)}, ""},
		{"missing required", map[string]any{"mode": "fast"}, "limit"},
		{"wrong type", map[string]any{"limit": "3"}, "limit"},
		{"fractional integer", map[string]any{"limit": 2.5}, "limit"},
		{"enum", map[string]any{"limit": 1, "mode": "medium"}, "mode"},
		{"bool", map[string]any{"limit": 1, "on": "yes"}, "on"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, schema)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
