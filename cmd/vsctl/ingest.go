package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vectorstored/internal/app"
	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/ignore"
	"github.com/fyrsmithlabs/vectorstored/internal/loader"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/service"
)

type strategyFlags struct {
	kind     string
	max      int
	overlap  int
	language string
}

// strategy returns nil when no flag was set, selecting the configured
// default.
func (f strategyFlags) strategy() *chunking.Strategy {
	if f.kind == "" && f.max == 0 && f.overlap == 0 && f.language == "" {
		return nil
	}
	s := chunking.Strategy{
		Type:         chunking.Kind(f.kind),
		MaxChunkSize: f.max,
		ChunkOverlap: f.overlap,
		Language:     f.language,
	}
	if s.Type == "" {
		s.Type = chunking.KindSentence
	}
	return &s
}

func (c *cli) ingestCmd() *cobra.Command {
	var sf strategyFlags
	cmd := &cobra.Command{
		Use:   "ingest STORE PATH...",
		Short: "Chunk, embed and store documents in a vector store",
		Long: `Ingest one or more documents into a vector store and wait for each to
finish. The file format is chosen by extension. Directories are walked
recursively, skipping files matched by their .gitignore or .vectorignore
and files of unsupported formats. Each file is recorded even when it
fails; the command exits non-zero if any file did not complete.

Examples:
  vsctl ingest vs_abc handbook.pdf notes.md
  vsctl ingest vs_abc ./docs
  vsctl ingest vs_abc --strategy sentence --max 4 --overlap 1 faq.txt`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeID := args[0]
			paths, err := expandPaths(args[1:])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				var failed []error
				for _, p := range paths {
					data, err := os.ReadFile(p)
					if err != nil {
						return fmt.Errorf("reading %s: %w", p, err)
					}
					f, err := a.Service.Ingest(cmd.Context(), storeID, service.Artifact{
						Filename: filepath.Base(p),
						Data:     data,
					}, sf.strategy())
					if f == nil {
						return err
					}
					if perr := printJSON(cmd.OutOrStdout(), f); perr != nil {
						return perr
					}
					if f.Status != metadata.FileCompleted {
						failed = append(failed, fmt.Errorf("%s: %s: %w", p, f.Status, err))
					}
				}
				return errors.Join(failed...)
			})
		},
	}
	cmd.Flags().StringVar(&sf.kind, "strategy", "", "chunking strategy: sentence, static or auto")
	cmd.Flags().IntVar(&sf.max, "max", 0, "max sentences (sentence) or tokens (static) per chunk")
	cmd.Flags().IntVar(&sf.overlap, "overlap", 0, "overlap between consecutive chunks")
	cmd.Flags().StringVar(&sf.language, "lang", "", "sentence detection language")
	return cmd
}

// expandPaths replaces each directory with the supported files beneath it.
// Files named explicitly are kept whatever their format.
func expandPaths(args []string) ([]string, error) {
	var out []string
	supported := func(p string) bool {
		_, err := loader.Detect(p, "")
		return err == nil
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		m, err := ignore.Load(arg, ignore.DefaultFiles, ignore.DefaultPatterns)
		if err != nil {
			return nil, fmt.Errorf("reading ignore files in %s: %w", arg, err)
		}
		err = m.Walk(arg, supported, func(p string) error {
			out = append(out, p)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
