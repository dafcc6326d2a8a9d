package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "legisgraph",
		Short: "Load crawled legislator records into a Neo4j graph",
		Long: `legisgraph turns the records emitted by the parliament crawler (domains,
pages, legislative periods, politicians and page sections) into an
idempotent property graph in Neo4j.

Records are read as JSON lines from a file or stdin, or consumed from an
AMQP queue. Page, politician and content records are written in batches;
failed batches are spooled and can be replayed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")

	rootCmd.AddCommand(ingestCmd(flags))
	rootCmd.AddCommand(consumeCmd(flags))
	rootCmd.AddCommand(spoolCmd(flags))
	rootCmd.AddCommand(schemaCmd(flags))
	rootCmd.AddCommand(pagesCmd(flags))
	return rootCmd
}
