// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config  string           `short:"c" help:"Config file path (defaults to ./insightmesh.toml when present)" type:"path"`
	Run     RunCmd           `cmd:"" help:"Run an agent against a data source"`
	Agents  AgentsCmd        `cmd:"" help:"List the agents of a catalog"`
	Reports ReportsCmd       `cmd:"" help:"Inspect stored reports"`
	Version kong.VersionFlag `help:"Show version information"`
}

// RunCmd executes an agent from a catalog.
type RunCmd struct {
	Catalog    string `short:"f" default:"catalog.yaml" help:"Catalog file (YAML or JSON)" type:"existingfile"`
	Agent      string `arg:"" help:"Agent id"`
	DataSource string `arg:"" help:"Data source id"`
	Mode       string `enum:",sequential,parallel" default:"" help:"Override the collaborator execution mode"`
	NoSynth    bool   `help:"Merge collaborator results mechanically"`
	JSON       bool   `help:"Print the result as JSON"`
	Quiet      bool   `short:"q" help:"Suppress progress and run logs"`
}

// AgentsCmd lists catalog agents.
type AgentsCmd struct {
	Catalog string `short:"f" default:"catalog.yaml" help:"Catalog file (YAML or JSON)" type:"existingfile"`
}

// ReportsCmd groups report subcommands.
type ReportsCmd struct {
	List   ReportsListCmd   `cmd:"" default:"1" help:"List stored reports"`
	Show   ReportsShowCmd   `cmd:"" help:"Show a stored report"`
	Delete ReportsDeleteCmd `cmd:"" help:"Delete a stored report"`
}

// ReportsListCmd lists reports newest first.
type ReportsListCmd struct{}

// ReportsShowCmd prints one report.
type ReportsShowCmd struct {
	ID   string `arg:"" help:"Report id"`
	JSON bool   `help:"Print the report as JSON"`
}

// ReportsDeleteCmd removes one report.
type ReportsDeleteCmd struct {
	ID string `arg:"" help:"Report id"`
}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version + " (" + commit + ")",
	}
}
