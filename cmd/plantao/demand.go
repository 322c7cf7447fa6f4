package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	plantao "github.com/miguelbarbosa0221/automatizacao-plantao-sub000"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/core"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/format"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

func newDemandCmd() *cobra.Command {
	flags := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "demand",
		Short: "Edit the demand draft and commit it",
	}
	addSessionFlags(cmd, flags)

	cmd.AddCommand(newDemandAddCmd(flags))
	cmd.AddCommand(newDemandListCmd(flags))
	cmd.AddCommand(newDemandSetCmd(flags))
	cmd.AddCommand(newDemandSelectCmd(flags))
	cmd.AddCommand(newDemandRemoveCmd(flags))
	cmd.AddCommand(newDemandEnrichCmd(flags))
	cmd.AddCommand(newDemandCommitCmd(flags))
	cmd.AddCommand(newDemandHistoryCmd(flags))
	return cmd
}

func printRows(w io.Writer, renderer *format.PlainRenderer, rows []schema.DemandRow) {
	for _, row := range rows {
		_ = format.WriteLines(w, renderer.FormatRow(row))
	}
}

func newDemandAddCmd(flags *sessionFlags) *cobra.Command {
	var enrichRow bool
	cmd := &cobra.Command{
		Use:   "add <text>...",
		Short: "Append a draft row",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []plantao.AppOption
			if enrichRow {
				opts = append(opts, plantao.WithEnrichment())
			}
			app, _, err := openSession(cmd, flags, opts...)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			row, err := app.Drafts.AddRow(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if enrichRow {
				if enriched, err := app.Drafts.Enrich(cmd.Context(), row.ID); err == nil {
					row = enriched
				} else if !errors.Is(err, schema.ErrEnrichmentUnavailable) {
					return err
				}
			}
			printRows(cmd.OutOrStdout(), format.NewPlainRenderer(), []schema.DemandRow{row})
			return nil
		},
	}
	cmd.Flags().BoolVar(&enrichRow, "enrich", false, "fill title, description and resolution from the text")
	return cmd
}

func newDemandListCmd(flags *sessionFlags) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List draft rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			printRows(cmd.OutOrStdout(), &format.PlainRenderer{Verbose: verbose}, app.Drafts.Rows())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include description and resolution")
	return cmd
}

func newDemandSetCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <row> <field> <value>",
		Short: "Set freeText, title, description or resolution of a row",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			return app.Drafts.SetField(schema.RowID(args[0]), core.DraftField(args[1]), args[2])
		},
	}
}

func newDemandSelectCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select <row> <kind> <id>",
		Short: "Classify a row; descendants of the kind are cleared",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := schema.ParseEntityKind(args[1])
			if err != nil {
				return err
			}
			app, _, err := openSession(cmd, flags, plantao.WithDraftReconcile())
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			if err := waitCatalog(cmd.Context(), app, kind); err != nil {
				return err
			}
			row, ok := app.Drafts.Row(schema.RowID(args[0]))
			if !ok {
				return fmt.Errorf("%w: %s", schema.ErrRowNotFound, args[0])
			}
			id := schema.EntityID(args[2])
			options := app.Catalog.Options(kind, row.Selection)
			if !containsEntity(options, id) {
				return fmt.Errorf("%w: %s %s is not selectable here", schema.ErrInvariantViolation, kind, id)
			}
			if err := app.Drafts.Select(row.ID, kind, id); err != nil {
				return err
			}
			updated, _ := app.Drafts.Row(row.ID)
			printRows(cmd.OutOrStdout(), format.NewPlainRenderer(), []schema.DemandRow{updated})
			return nil
		},
	}
}

func containsEntity(entities []schema.CatalogEntity, id schema.EntityID) bool {
	for _, entity := range entities {
		if entity.ID == id {
			return true
		}
	}
	return false
}

func newDemandRemoveCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <row>",
		Short: "Remove a draft row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			return app.Drafts.RemoveRow(schema.RowID(args[0]))
		},
	}
}

func newDemandEnrichCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <row>",
		Short: "Fill a row from its free text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := openSession(cmd, flags, plantao.WithEnrichment())
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			row, err := app.Drafts.Enrich(cmd.Context(), schema.RowID(args[0]))
			if err != nil {
				return err
			}
			printRows(cmd.OutOrStdout(), format.NewPlainRenderer(), []schema.DemandRow{row})
			return nil
		},
	}
}

func newDemandCommitCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Write every draft row as a demand",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			demands, err := app.Drafts.Commit(cmd.Context())
			if err != nil {
				return err
			}
			for _, demand := range demands {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%q\n", demand.ID, demand.Title)
			}
			return nil
		},
	}
}

func newDemandHistoryCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List committed demands of the active organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, state, err := openSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()
			slot := core.Observe(app.Manager, decodeDemand)
			defer slot.Close()
			slot.Bind(app.Refs.Demands(state.Identity.ID, state.Profile.ActiveOrganizationID))
			ctx, cancel := context.WithTimeout(cmd.Context(), signInTimeout)
			defer cancel()
			loaded, err := slot.WaitLoaded(ctx)
			if err != nil {
				return err
			}
			if loaded.Err != nil {
				return loaded.Err
			}
			renderer := format.NewPlainRenderer()
			for _, demand := range loaded.Data {
				_ = format.WriteLines(cmd.OutOrStdout(), renderer.FormatDemand(demand))
			}
			return nil
		},
	}
}

var decodeDemand core.Decoder[schema.Demand] = func(doc docstore.Document) (schema.Demand, error) {
	return schema.DecodeDemand(doc.ID, doc.Data)
}
