package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/core"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/format"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

func newCatalogCmd() *cobra.Command {
	flags := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and edit the organization catalog",
	}
	addSessionFlags(cmd, flags)

	cmd.AddCommand(newCatalogListCmd(flags))
	cmd.AddCommand(newCatalogAddCmd(flags))
	cmd.AddCommand(newCatalogRenameCmd(flags))
	cmd.AddCommand(newCatalogDeleteCmd(flags))
	return cmd
}

func newCatalogListCmd(flags *sessionFlags) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List catalog entities of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := schema.ParseEntityKind(args[0])
			if err != nil {
				return err
			}
			app, _, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			if err := waitCatalog(cmd.Context(), app, kind); err != nil {
				return err
			}
			entities := app.Catalog.State(kind).Data
			if kind.Parent() != "" && parent != "" {
				entities = app.Catalog.Options(kind, schema.Selection{}.With(kind.Parent(), schema.EntityID(parent)))
			}
			renderer := format.NewPlainRenderer()
			out := cmd.OutOrStdout()
			for _, entity := range entities {
				if err := format.WriteLines(out, renderer.FormatEntity(entity)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "only list children of this parent id")
	return cmd
}

func newCatalogAddCmd(flags *sessionFlags) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "add <kind> <name>",
		Short: "Create a catalog entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := schema.ParseEntityKind(args[0])
			if err != nil {
				return err
			}
			app, _, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			if parentKind := kind.Parent(); parentKind != "" {
				if err := waitCatalog(cmd.Context(), app, parentKind); err != nil {
					return err
				}
			}
			entity, err := app.Catalog.Create(cmd.Context(), kind, args[1], schema.EntityID(parent))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", entity.ID, entity.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent entity id")
	return cmd
}

func newCatalogRenameCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <kind> <id> <name>",
		Short: "Rename a catalog entity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := schema.ParseEntityKind(args[0])
			if err != nil {
				return err
			}
			app, _, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			if err := waitCatalog(cmd.Context(), app, kind); err != nil {
				return err
			}
			id := schema.EntityID(args[1])
			entity, ok := app.Catalog.Lookup(kind, id)
			if !ok {
				return fmt.Errorf("%w: %s %s", schema.ErrEntityNotFound, kind, id)
			}
			if err := app.Editor.Begin(kind, id, entity.Name); err != nil {
				return err
			}
			app.Editor.SetDraft(args[2])
			if err := app.Editor.Key(cmd.Context(), core.KeyConfirm); err != nil {
				app.Editor.Cancel()
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "renamed %s %s\n", kind, id)
			return nil
		},
	}
}

func newCatalogDeleteCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete a catalog entity without children",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := schema.ParseEntityKind(args[0])
			if err != nil {
				return err
			}
			app, _, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			kinds := []schema.EntityKind{kind}
			if child := kind.Child(); child != "" {
				kinds = append(kinds, child)
			}
			if err := waitCatalog(cmd.Context(), app, kinds...); err != nil {
				return err
			}
			if err := app.Catalog.Delete(cmd.Context(), kind, schema.EntityID(args[1])); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", kind, args[1])
			return nil
		},
	}
}
