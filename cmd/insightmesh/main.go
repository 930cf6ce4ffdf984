// Package main is the entry point for the insightmesh CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/hupe1980/insightmesh"
	"github.com/hupe1980/insightmesh/catalog"
	"github.com/hupe1980/insightmesh/config"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/engine"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

// appContext is bound into every command's Run method.
type appContext struct {
	ctx    context.Context
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func main() {
	// .env supplies provider keys for local use
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("insightmesh"),
		kong.Description("Run analysis agents against tabular data."),
		kong.UsageOnError(),
		kongVars(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cli.Config)
	kctx.FatalIfErrorf(err)

	err = kctx.Run(&appContext{ctx: ctx, cfg: cfg, stdout: os.Stdout, stderr: os.Stderr})
	kctx.FatalIfErrorf(err)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.LoadFile(path)
}

// Run executes the agent and prints its result.
func (c *RunCmd) Run(app *appContext) error {
	mesh, err := insightmesh.FromConfig(app.cfg)
	if err != nil {
		return err
	}
	defer mesh.Close()

	if addr := app.cfg.Metrics.Listen; addr != "" && mesh.Metrics() != nil {
		_, stop, err := serveMetrics(addr, mesh.MetricsHandler())
		if err != nil {
			return err
		}
		defer stop()
	}

	cat, err := mesh.LoadCatalog(c.Catalog)
	if err != nil {
		return err
	}
	ds, ok := cat.DataSource(c.DataSource)
	if !ok {
		return fmt.Errorf("data source %q not found in %s", c.DataSource, c.Catalog)
	}

	agent, ok := mesh.Engine().Agent(c.Agent)
	if !ok {
		return core.NewConfigurationError(core.ErrUnknownAgent, c.Agent)
	}
	opts := app.cfg.ExecutionOptions()
	if c.Mode != "" {
		opts.ExecutionMode = core.ExecutionMode(c.Mode)
	}
	if c.NoSynth {
		off := false
		opts.Synthesize = &off
	}

	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(app.stderr, format, args...)
	}
	res, err := mesh.Engine().Execute(app.ctx, core.ExecutionRequest{Agent: agent, DataSource: ds, Options: opts},
		func(o *engine.RunOptions) {
			if c.Quiet {
				return
			}
			o.OnProgress = func(ev core.ProgressEvent) { printf("[%3d%%] %s\n", ev.Progress, ev.Stage) }
			o.OnLog = func(msg string) { printf("       %s\n", msg) }
		})
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(app.stdout, res)
	}
	printResult(app.stdout, res)
	return nil
}

// Run lists the catalog agents.
func (c *AgentsCmd) Run(app *appContext) error {
	cat, err := catalog.LoadFile(c.Catalog)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(app.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tCOLLABORATORS")
	for _, a := range cat.Agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.DisplayName(), a.Kind, strings.Join(a.CollaboratorIDs, ","))
	}
	return w.Flush()
}

// Run lists stored reports.
func (c *ReportsListCmd) Run(app *appContext) error {
	return withReports(app, func(store core.ReportStore) error {
		reports, err := store.List(app.ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(app.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMETHOD\tGENERATED")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.ExecutionMethod, r.GeneratedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	})
}

// Run prints one report.
func (c *ReportsShowCmd) Run(app *appContext) error {
	return withReports(app, func(store core.ReportStore) error {
		r, err := store.Get(app.ctx, c.ID)
		if err != nil {
			return err
		}
		if c.JSON {
			return printJSON(app.stdout, r)
		}
		fmt.Fprintf(app.stdout, "%s (%s, %s)\n\n", r.Name, r.ExecutionMethod, r.GeneratedAt.Format("2006-01-02 15:04:05"))
		printResult(app.stdout, r.Result())
		return nil
	})
}

// Run deletes one report.
func (c *ReportsDeleteCmd) Run(app *appContext) error {
	return withReports(app, func(store core.ReportStore) error {
		return store.Delete(app.ctx, c.ID)
	})
}

// serveMetrics exposes h at /metrics on addr until stop is called.
func serveMetrics(addr string, h http.Handler) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return ln.Addr().String(), stop, nil
}

func withReports(app *appContext, fn func(store core.ReportStore) error) error {
	if app.cfg.Storage.Driver != config.StorageSQLite {
		return fmt.Errorf("reports are only persisted with the sqlite storage driver")
	}
	mesh, err := insightmesh.FromConfig(app.cfg)
	if err != nil {
		return err
	}
	defer mesh.Close()
	return fn(mesh.Reports())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, res *core.ExecutionResult) {
	fmt.Fprintln(w, res.Summary)
	if len(res.Insights) > 0 {
		fmt.Fprintln(w, "\nInsights:")
		for _, in := range res.Insights {
			fmt.Fprintf(w, "  - %s\n", in)
		}
	}
	if len(res.Visualizations) > 0 {
		fmt.Fprintln(w, "\nVisualizations:")
		for _, v := range res.Visualizations {
			fmt.Fprintf(w, "  - [%s] %s\n", v.Kind, v.Title)
		}
	}
	if res.SynthesisError != "" {
		fmt.Fprintf(w, "\nSynthesis fell back to mechanical merge: %s\n", res.SynthesisError)
	}
	fmt.Fprintf(w, "\nMethod: %s\n", res.Method)
}
