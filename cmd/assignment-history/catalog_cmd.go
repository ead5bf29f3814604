package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type catalogOutput struct {
	Command string    `json:"command"`
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
}

func newCatalogCmd(flags *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the entities and owners assignments refer to",
	}
	cmd.AddCommand(newCatalogAddCmd(flags, "add-entity", "Create or rename an entity", func(a *app, ctx context.Context, id uuid.UUID, name string) error {
		return a.catalog.UpsertEntity(ctx, id, name)
	}))
	cmd.AddCommand(newCatalogAddCmd(flags, "add-owner", "Create or rename an owner", func(a *app, ctx context.Context, id uuid.UUID, name string) error {
		return a.catalog.UpsertOwner(ctx, id, name)
	}))
	return cmd
}

func newCatalogAddCmd(flags *rootOptions, use, short string, upsert func(a *app, ctx context.Context, id uuid.UUID, name string) error) *cobra.Command {
	var rawID, name string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.New()
			if rawID != "" {
				parsed, err := parseID("id", rawID)
				if err != nil {
					return err
				}
				id = parsed
			}
			if name == "" {
				return invalidInput(map[string]string{"name": "required"})
			}
			return runWithApp(cmd.Context(), flags, func(a *app) error {
				if err := upsert(a, a.ctx, id, name); err != nil {
					return withCode(exitDB, err)
				}
				return writeJSON(cmd.OutOrStdout(), catalogOutput{Command: "catalog " + use, ID: id, Name: name})
			})
		},
	}
	cmd.Flags().StringVar(&rawID, "id", "", "UUID (generated when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
