package main

import (
	"io"
	"sync"

	"github.com/spf13/cobra"

	plantao "github.com/miguelbarbosa0221/automatizacao-plantao-sub000"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/core"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/eventbus"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/format"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

func newWatchCmd() *cobra.Command {
	flags := &sessionFlags{}
	var once bool
	cmd := &cobra.Command{
		Use:   "watch [kind...]",
		Short: "Follow live catalog snapshots and sync errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := schema.EntityKinds
			if len(args) > 0 {
				kinds = kinds[:0:0]
				for _, arg := range args {
					kind, err := schema.ParseEntityKind(arg)
					if err != nil {
						return err
					}
					kinds = append(kinds, kind)
				}
			}
			app, _, err := openSession(cmd, flags, plantao.WithErrorLog())
			if err != nil {
				return err
			}
			defer func() { _ = app.Stop() }()

			errs, cancelErrs := app.Bus.SubscribeChan(eventbus.TopicPermissionError)
			defer cancelErrs()
			notices, cancelNotices := app.Bus.SubscribeChan(eventbus.TopicNotice)
			defer cancelNotices()

			renderer := format.NewPlainRenderer()
			out := &lockedWriter{w: cmd.OutOrStdout()}
			for _, kind := range kinds {
				cancel := app.Catalog.Slot(kind).OnChange(func(state core.State[schema.CatalogEntity]) {
					out.write(format.Snapshot(kind, state))
				})
				defer cancel()
				out.write(format.Snapshot(kind, app.Catalog.State(kind)))
			}
			if once {
				return waitCatalog(cmd.Context(), app, kinds...)
			}

			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-errs:
					if !ok {
						return nil
					}
					out.write(renderer.FormatSyncError(event.Error))
				case event, ok := <-notices:
					if !ok {
						return nil
					}
					if event.Notice != nil {
						out.write(renderer.FormatNotice(*event.Notice))
					}
				}
			}
		},
	}
	addSessionFlags(cmd, flags)
	cmd.Flags().BoolVar(&once, "once", false, "exit after every collection has loaded")
	return cmd
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(lines []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = format.WriteLines(l.w, lines)
}
