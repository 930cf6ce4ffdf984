package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgent_ConfigurationAccessors(t *testing.T) {
	a := &Agent{ID: "a1", Kind: KindCollaborative}
	assert.Equal(t, ModeSequential, a.ExecutionMode())
	assert.True(t, a.SynthesizeResults())
	assert.Equal(t, 0, a.MaxCollaborators())

	a.Configuration = map[string]any{
		ConfigExecutionMode:     "Parallel",
		ConfigSynthesizeResults: false,
		ConfigMaxCollaborators:  float64(3),
	}
	assert.Equal(t, ModeParallel, a.ExecutionMode())
	assert.False(t, a.SynthesizeResults())
	assert.Equal(t, 3, a.MaxCollaborators())

	a.Configuration[ConfigMaxCollaborators] = "2"
	a.Configuration[ConfigSynthesizeResults] = "true"
	assert.Equal(t, 2, a.MaxCollaborators())
	assert.True(t, a.SynthesizeResults())
}

func TestAgent_IsComposite(t *testing.T) {
	assert.False(t, (&Agent{Kind: KindCollaborative}).IsComposite(), "no collaborators declared")
	assert.True(t, (&Agent{Kind: KindPipeline, CollaboratorIDs: []string{"x"}}).IsComposite())
	assert.False(t, (&Agent{Kind: KindAnalyzer, CollaboratorIDs: []string{"x"}}).IsComposite())
	assert.False(t, (&Agent{Kind: KindCollaborative, CollaboratorIDs: []string{"", ""}}).IsComposite(), "blank ids only")
}

func TestAgent_Collaborators(t *testing.T) {
	a := &Agent{Kind: KindCollaborative, CollaboratorIDs: []string{"b", "", "a", "b"}}
	assert.Equal(t, []string{"b", "a"}, a.Collaborators())
	assert.Empty(t, (&Agent{}).Collaborators())
}

func TestAgent_Validate(t *testing.T) {
	var nilAgent *Agent
	err := nilAgent.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentRequired))

	err = (&Agent{ID: "a", Kind: "bogus"}).Validate()
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	assert.NoError(t, (&Agent{ID: "a", Kind: KindSummarizer}).Validate())
}

func TestAgentStatus_Transitions(t *testing.T) {
	assert.True(t, StatusIdle.CanTransition(StatusRunning))
	assert.False(t, StatusIdle.CanTransition(StatusCompleted))
	assert.True(t, StatusRunning.CanTransition(StatusCompleted))
	assert.True(t, StatusRunning.CanTransition(StatusError))
	assert.False(t, StatusRunning.CanTransition(StatusRunning))
	assert.True(t, StatusError.CanTransition(StatusRunning))
}

func TestAgent_CloneIsIndependent(t *testing.T) {
	a := &Agent{ID: "a", Kind: KindPipeline, CollaboratorIDs: []string{"x"}, Configuration: map[string]any{"k": 1}}
	c := a.Clone()
	c.CollaboratorIDs[0] = "y"
	c.Configuration["k"] = 2
	assert.Equal(t, "x", a.CollaboratorIDs[0])
	assert.Equal(t, 1, a.Configuration["k"])
}

func TestExecutionRequest_Validate(t *testing.T) {
	err := ExecutionRequest{}.Validate()
	assert.ErrorIs(t, err, ErrAgentRequired)

	err = ExecutionRequest{Agent: &Agent{ID: "a", Kind: KindAnalyzer}}.Validate()
	assert.ErrorIs(t, err, ErrDataSourceRequired)

	ds := NewDataSource("d", "D", nil, []Row{{"b": 1, "a": "x"}})
	assert.NoError(t, ExecutionRequest{Agent: &Agent{ID: "a", Kind: KindAnalyzer}, DataSource: ds}.Validate())
	assert.Equal(t, []string{"a", "b"}, ds.Columns)
	assert.Equal(t, DataSourceMetadata{RowCount: 1, ColumnCount: 2}, ds.Metadata)
}
