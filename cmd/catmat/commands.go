package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/catmat"
	"github.com/poiesic/catmat/catalog"
	"github.com/poiesic/catmat/config"
	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/export"
	"github.com/poiesic/catmat/search"
	"github.com/poiesic/catmat/server"
)

// serviceOptions are appended to every Open call. Tests use it to swap in
// a mock provider.
var serviceOptions []catmat.Option

func openService(c *cli.Context, opts ...catmat.Option) (*catmat.Service, *config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	opts = append([]catmat.Option{catmat.WithEmbedProgress(c.App.ErrWriter)}, opts...)
	svc, err := catmat.Open(c.Context, cfg, append(opts, serviceOptions...)...)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func indexCommand(c *cli.Context) error {
	svc, _, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if c.Bool("force") {
		if err := svc.Rebuild(c.Context); err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}
	}

	info := svc.Info()
	out := c.App.Writer
	fmt.Fprintf(out, "Fingerprint: %s\n", info.Fingerprint)
	fmt.Fprintf(out, "Items:       %d\n", info.Items)
	fmt.Fprintf(out, "Model:       %s (dimension %d)\n", info.Model, info.Dimension)
	fmt.Fprintf(out, "HNSW:        m=%d ef_construction=%d ef_search=%d\n",
		info.Params.M, info.Params.EfConstruction, info.Params.EfSearch)
	fmt.Fprintf(out, "Cache hit:   %t\n", info.CacheHit)

	rec, err := svc.LastBuild(c.Context)
	if err != nil {
		return err
	}
	if rec != nil && rec.Fingerprint == info.Fingerprint {
		fmt.Fprintf(out, "Built:       %s (embed %s, index %s)\n",
			rec.BuiltAt.Format("2006-01-02 15:04:05"), rec.EmbedTime, rec.IndexTime)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	svc, cfg, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	topK := c.Int("top-k")
	if !c.IsSet("top-k") {
		topK = cfg.DefaultTopK
	}
	var monitor search.SearchMonitor = quietMonitor{}
	if c.Bool("verbose") {
		monitor = newPrintMonitor(c.App.ErrWriter)
	}

	var (
		results []core.SearchResult
		rec     *core.Recommendation
	)
	if c.Bool("ai") {
		results, rec, err = svc.SearchWithAIMonitor(c.Context, query, topK, monitor)
	} else {
		results, err = svc.SearchWithMonitor(c.Context, query, topK, monitor)
	}
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return export.WriteJSON(c.App.Writer, []core.BatchResult{{
			Job:            core.BatchJob{Query: query, TopK: topK, UseAI: c.Bool("ai")},
			Results:        results,
			Recommendation: rec,
		}})
	}
	printResults(c.App.Writer, results, rec)
	return nil
}

func printResults(w io.Writer, results []core.SearchResult, rec *core.Recommendation) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t[%0.3f]\t%s\n", r.Rank, r.Item.ID, r.Score, r.Item.Description)
	}
	tw.Flush()

	switch {
	case rec == nil:
	case rec.HasText():
		fmt.Fprintf(w, "\nRecommended: %s %s\n  %s\n", rec.Pick.Item.ID, rec.Pick.Item.Description, rec.Text)
		for _, alt := range rec.Alternatives {
			fmt.Fprintf(w, "Alternative: %s %s\n  %s\n", alt.Item.ID, alt.Item.Description, alt.Reason)
		}
	default:
		fmt.Fprintf(w, "\nNo recommendation (%s)\n", rec.FallbackReason)
	}
}

func batchCommand(c *cli.Context) error {
	output := c.String("output")
	format, err := resolveFormat(c.String("format"), output)
	if err != nil {
		return err
	}
	queries, err := catalog.ReadQueries(c.String("input"))
	if err != nil {
		return fmt.Errorf("read queries: %w", err)
	}
	if len(queries) == 0 {
		return fmt.Errorf("no queries in %s", c.String("input"))
	}

	progress := newBatchProgress(c.App.ErrWriter)
	svc, cfg, err := openService(c, catmat.WithBatchProgress(progress.update))
	if err != nil {
		return err
	}
	defer svc.Close()

	topK := c.Int("top-k")
	if !c.IsSet("top-k") {
		topK = cfg.BatchTopK
	}
	run, err := svc.ProcessQueries(c.Context, queries, topK, c.Bool("ai"))
	if err != nil {
		return err
	}
	progress.finish()

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, run.Results); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", format, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	s := run.Summary
	fmt.Fprintf(c.App.Writer, "Run %s: %d queries, %d ok, %d degraded, %d failed in %s\n",
		run.ID, s.Total, s.Succeeded, s.Degraded, s.Failed, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(c.App.Writer, "Average top score: %.4f\n", s.AvgTopScore)
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", output)
	return nil
}

func resolveFormat(name, output string) (export.Format, error) {
	if name != "" {
		return export.ParseFormat(name)
	}
	return export.FormatFromPath(output)
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cfg, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv, err := server.New(svc,
		server.WithDefaultTopK(cfg.DefaultTopK),
		server.WithBatchTopK(cfg.BatchTopK),
		server.WithMetricsHandler(svc.Metrics().Handler()))
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, c.String("addr"))
}
