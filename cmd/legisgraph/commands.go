package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/legisgraph/internal/app"
	"github.com/yungbote/legisgraph/internal/domain"
	"github.com/yungbote/legisgraph/internal/ingest"
	"github.com/yungbote/legisgraph/internal/source"
)

func ingestCmd(root *rootFlags) *cobra.Command {
	var (
		input     string
		batchSize int
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest JSON-lines records from a file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, app.Options{BatchSize: batchSize, DryRun: dryRun, EnvFiles: root.envFiles})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			r, name, closeInput, err := openInput(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeInput()

			var stats ingest.RunStats
			err = runWithMetrics(ctx, a, func(ctx context.Context) error {
				var runErr error
				stats, runErr = a.NewRouter().Run(ctx, source.NewJSONLines(r, name))
				return runErr
			})
			printStats(cmd.OutOrStdout(), stats)
			return err
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON-lines file to read, - for stdin")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per buffered transaction (default INGEST_BATCH_SIZE)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write to an in-memory graph instead of Neo4j")
	return cmd
}

func consumeCmd(root *rootFlags) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume records from the AMQP queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, app.Options{BatchSize: batchSize, EnvFiles: root.envFiles, DurableSpool: true})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			src, err := source.DialAMQP(a.Log, a.Cfg.AMQP)
			if err != nil {
				return err
			}
			defer src.Close()

			var stats ingest.RunStats
			err = runWithMetrics(ctx, a, func(ctx context.Context) error {
				var runErr error
				stats, runErr = a.NewRouter().Run(ctx, src)
				return runErr
			})
			printStats(cmd.OutOrStdout(), stats)
			return err
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per buffered transaction (default INGEST_BATCH_SIZE)")
	return cmd
}

func spoolCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: "Inspect and re-drive failed batches",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "replay",
		Short: "Write every spooled batch again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, app.Options{EnvFiles: root.envFiles, DurableSpool: true})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			res, err := ingest.Replay(ctx, a.Log, a.Engine, a.Store, a.Spool)
			fmt.Fprintf(cmd.OutOrStdout(), "replayed batches=%d records=%d failed=%d\n", res.Batches, res.Records, res.Failed)
			return err
		},
	})
	return cmd
}

func schemaCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create uniqueness constraints for every node identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, app.Options{EnvFiles: root.envFiles})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))
			return a.Neo4j.EnsureSchema(ctx)
		},
	}
}

func pagesCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "List pages the crawler should visit next",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "periods",
		Short: "List member list pages of every legislative period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, app.Options{EnvFiles: root.envFiles})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			pages, err := a.Neo4j.PeriodDetailPages(ctx)
			if err != nil {
				return err
			}
			for _, p := range pages {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Number, p.URL)
			}
			return nil
		},
	})

	var skip, limit int
	politicians := &cobra.Command{
		Use:   "politicians",
		Short: "List politician detail pages, paged in url order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, app.Options{EnvFiles: root.envFiles})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			urls, err := a.Neo4j.PoliticianDetailPages(ctx, skip, limit)
			if err != nil {
				return err
			}
			for _, u := range urls {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
	politicians.Flags().IntVar(&skip, "skip", 0, "pages to skip")
	politicians.Flags().IntVar(&limit, "limit", 100, "pages to return")
	cmd.AddCommand(politicians)
	return cmd
}

// runWithMetrics runs fn next to the metrics server and stops the server once fn returns.
func runWithMetrics(ctx context.Context, a *app.App, fn func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	g.Go(func() error {
		return a.Metrics.Serve(serveCtx, a.Log, a.Cfg.MetricsAddr)
	})
	g.Go(func() error {
		defer stopServe()
		return fn(gctx)
	})
	return g.Wait()
}

func openInput(path string, stdin io.Reader) (io.Reader, string, func(), error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return stdin, "stdin", func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open input: %w", err)
	}
	return f, path, func() { _ = f.Close() }, nil
}

func printStats(w io.Writer, stats ingest.RunStats) {
	if stats.RunID == "" {
		return
	}
	fmt.Fprintf(w, "run %s\n", stats.RunID)
	kinds := make([]string, 0, len(stats.Kinds))
	for k := range stats.Kinds {
		if k != "" {
			kinds = append(kinds, string(k))
		}
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		s := stats.Kinds[domain.Kind(k)]
		fmt.Fprintf(w, "  %-20s routed=%d written=%d buffered=%d skipped=%d rejected=%d failed=%d\n",
			k, s.Routed, s.Written, s.Buffered, s.Skipped, s.Rejected, s.Failed)
	}
	if stats.Undecodable > 0 {
		fmt.Fprintf(w, "  %-20s %d\n", "undecodable", stats.Undecodable)
	}
}
