package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vectorstored/internal/app"
)

func (c *cli) searchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search STORE QUERY...",
		Short: "Find the chunks nearest to a query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args[1:], " ")
			return c.withApp(cmd.Context(), func(a *app.App) error {
				results, err := a.Service.Search(cmd.Context(), args[0], query, topK)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default from config)")
	return cmd
}
