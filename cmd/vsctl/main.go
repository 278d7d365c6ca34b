// Package main implements vsctl, a CLI that runs vector store operations
// in-process against the configured storage backends.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vectorstored/internal/app"
	"github.com/fyrsmithlabs/vectorstored/internal/config"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries flags shared by every command.
type cli struct {
	configPath string
	verbose    bool
	// appOptions are passed to app.New; tests inject a model here.
	appOptions []app.Option
}

func newRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{appOptions: opts}
	root := &cobra.Command{
		Use:   "vsctl",
		Short: "Manage vector stores without a running daemon",
		Long: `vsctl creates vector stores, ingests documents and runs similarity
searches directly against the backends configured for vectorstored.

Configuration comes from --config and VECTORSTORED_* environment variables,
exactly as for the daemon. Do not point vsctl at an embedded database that
a running daemon holds open.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("VECTORSTORED_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		c.storesCmd(),
		c.ingestCmd(),
		c.searchCmd(),
		c.filesCmd(),
		versionCmd(),
	)
	return root
}

// withApp builds the engine, runs fn and closes the engine.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) (err error) {
	cfg, err := config.LoadWithFile(c.configPath)
	if err != nil {
		return err
	}
	cfg.Ingest.Synchronous = true
	cfg.Telemetry.Enabled = false

	opts := c.appOptions
	if !c.verbose {
		opts = append([]app.Option{app.WithLogger(logging.Nop())}, opts...)
	}
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vsctl %s (%s)\n", version, gitCommit)
		},
	}
}
