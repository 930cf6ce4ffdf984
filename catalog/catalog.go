// Package catalog loads agent and data source definitions from YAML or JSON
// files.
//
// A catalog file looks like:
//
//	agents:
//	  - id: analyst
//	    name: Revenue Analyst
//	    kind: analyzer
//	  - id: team
//	    kind: collaborative
//	    collaboratorIds: [analyst]
//	    configuration:
//	      executionMode: parallel
//	dataSources:
//	  - id: sales
//	    name: Sales
//	    rows:
//	      - {region: North, revenue: 100}
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/util"
)

// ErrInvalid is wrapped by every catalog validation failure.
var ErrInvalid = errors.New("invalid catalog")

// agentConfiguration lists the recognized agent configuration keys.
type agentConfiguration struct {
	ExecutionMode     string `json:"executionMode,omitempty" enum:"sequential,parallel"`
	SynthesizeResults bool   `json:"synthesizeResults,omitempty"`
	MaxCollaborators  int    `json:"maxCollaborators,omitempty"`
}

var configurationSchema = util.CreateSchema(agentConfiguration{})

// Catalog is a set of agents and data sources.
type Catalog struct {
	Agents      []*core.Agent      `yaml:"agents" json:"agents"`
	DataSources []*core.DataSource `yaml:"dataSources" json:"dataSources"`
}

// Registrar accepts agent registrations.
type Registrar interface {
	Register(a *core.Agent) error
}

// LoadFile reads a catalog, detecting the format from the file extension.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	format := detectFormat(path)
	if format == "" {
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}

	return LoadBytes(data, format)
}

// LoadBytes parses raw bytes in the given format ("yaml" or "json") and
// validates the result.
func LoadBytes(data []byte, format string) (*Catalog, error) {
	var c Catalog

	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q, use \"yaml\" or \"json\"", format)
	}

	for _, ds := range c.DataSources {
		if ds != nil {
			ds.Normalize()
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks id uniqueness, agent kinds, configuration value types and
// collaborator references.
// Composite agents may only reference agents defined in the same catalog.
func (c *Catalog) Validate() error {
	agents := make(map[string]*core.Agent, len(c.Agents))
	for i, a := range c.Agents {
		if a == nil {
			return fmt.Errorf("%w: agent #%d is empty", ErrInvalid, i+1)
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if err := util.ValidateParameters(a.Configuration, configurationSchema); err != nil {
			return fmt.Errorf("%w: agent %q: %w", ErrInvalid, a.ID, err)
		}
		if _, dup := agents[a.ID]; dup {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalid, a.ID)
		}
		agents[a.ID] = a
	}
	for _, a := range c.Agents {
		var missing []string
		for _, id := range a.CollaboratorIDs {
			if _, ok := agents[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: agent %q references unknown collaborators %s", ErrInvalid, a.ID, strings.Join(missing, ", "))
		}
	}

	seen := make(map[string]bool, len(c.DataSources))
	for i, ds := range c.DataSources {
		if ds == nil || ds.ID == "" {
			return fmt.Errorf("%w: data source #%d has no id", ErrInvalid, i+1)
		}
		if seen[ds.ID] {
			return fmt.Errorf("%w: duplicate data source id %q", ErrInvalid, ds.ID)
		}
		seen[ds.ID] = true
	}
	return nil
}

// Agent returns the agent with id.
func (c *Catalog) Agent(id string) (*core.Agent, bool) {
	i := slices.IndexFunc(c.Agents, func(a *core.Agent) bool { return a.ID == id })
	if i < 0 {
		return nil, false
	}
	return c.Agents[i], true
}

// DataSource returns the data source with id.
func (c *Catalog) DataSource(id string) (*core.DataSource, bool) {
	i := slices.IndexFunc(c.DataSources, func(ds *core.DataSource) bool { return ds.ID == id })
	if i < 0 {
		return nil, false
	}
	return c.DataSources[i], true
}

// RegisterAll registers every agent with r, stopping at the first error.
func (c *Catalog) RegisterAll(r Registrar) error {
	for _, a := range c.Agents {
		if err := r.Register(a); err != nil {
			return fmt.Errorf("register agent %s: %w", a.ID, err)
		}
	}
	return nil
}

// detectFormat returns "yaml" or "json" based on file extension, or "" if unknown.
func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}
