package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vectorstored/internal/app"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
)

func (c *cli) filesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Inspect and remove files of a vector store",
	}

	var (
		params metadata.ListParams
		status string
	)
	list := &cobra.Command{
		Use:   "list STORE",
		Short: "List a vector store's files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				page, err := a.Service.ListFiles(cmd.Context(), args[0], params, metadata.FileStatus(status))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), page)
			})
		},
	}
	addListFlags(list, &params)
	list.Flags().StringVar(&status, "status", "", "only files in this status")

	get := &cobra.Command{
		Use:   "get STORE FILE_ID",
		Short: "Show a vector store file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				f, err := a.Service.GetFile(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), f)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete STORE FILE_ID",
		Short: "Remove a file and its chunks from a vector store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Service.DeleteFile(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": args[1], "deleted": true})
			})
		},
	}

	cmd.AddCommand(list, get, del)
	return cmd
}
