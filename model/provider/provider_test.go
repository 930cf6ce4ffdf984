package provider

import (
	"testing"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(core.ExecutionOptions{Provider: OpenAI})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNew_SelectsProvider(t *testing.T) {
	m, err := New(core.ExecutionOptions{Provider: "OpenAI", APIKey: "sk-test", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, model.Info{Name: "gpt-4o", Provider: "openai"}, m.Info())

	m, err = New(core.ExecutionOptions{Provider: Anthropic, APIKey: "sk-ant"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)

	_, err = New(core.ExecutionOptions{Provider: "llama", APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestStatic(t *testing.T) {
	mock := model.NewMockModel("{}")
	f := Static(mock)

	_, err := f(core.ExecutionOptions{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	m, err := f(core.ExecutionOptions{APIKey: "k"})
	require.NoError(t, err)
	assert.Same(t, mock, m)
}
