package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vectorstored/internal/app"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/service"
)

func (c *cli) storesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stores",
		Short: "Create, inspect and delete vector stores",
	}

	var expiresDays int
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.CreateVectorStoreRequest{Name: args[0]}
			if expiresDays > 0 {
				req.ExpiresAfter = &metadata.ExpiresAfter{Anchor: metadata.AnchorLastActiveAt, Days: expiresDays}
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				vs, err := a.Service.CreateVectorStore(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), vs)
			})
		},
	}
	create.Flags().IntVar(&expiresDays, "expires-days", 0, "expire after this many days without activity")

	var params metadata.ListParams
	list := &cobra.Command{
		Use:   "list",
		Short: "List vector stores, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				page, err := a.Service.ListVectorStores(cmd.Context(), params)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), page)
			})
		},
	}
	addListFlags(list, &params)

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show a vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				vs, err := a.Service.GetVectorStore(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), vs)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a vector store with its files and chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Service.DeleteVectorStore(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "deleted": true})
			})
		},
	}

	expire := &cobra.Command{
		Use:   "expire",
		Short: "Mark vector stores past their expiry as expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Service.ExpireDue(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"expired": n})
			})
		},
	}

	cmd.AddCommand(create, list, get, del, expire)
	return cmd
}

func addListFlags(cmd *cobra.Command, p *metadata.ListParams) {
	cmd.Flags().IntVar(&p.Limit, "limit", 0, "page size, 1 to 100 (default 20)")
	cmd.Flags().StringVar(&p.After, "after", "", "return objects after this id")
	cmd.Flags().StringVar(&p.Before, "before", "", "return objects before this id")
	cmd.Flags().StringVar(&p.Order, "order", "", "asc or desc by creation time (default desc)")
}
