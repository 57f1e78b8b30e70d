package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-hub/internal/engine"
	"github.com/Zuo-Peng/ai-session-hub/internal/pubsub"
	"github.com/Zuo-Peng/ai-session-hub/internal/render"
	"github.com/Zuo-Peng/ai-session-hub/internal/watch"
)

func watchCmd() *cobra.Command {
	var hintToday bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index fresh and stream updates as sessions change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.close()

			sources, err := app.cfg.Sources()
			if err != nil {
				return err
			}
			roots := make([]string, 0, len(sources))
			for _, src := range sources {
				roots = append(roots, src.Root)
			}

			w, err := watch.New(roots, app.cfg.Watch.Debounce(watch.DefaultDebounce), func(root string) {
				app.eng.NotifyDirChanged(root)
			})
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()

			if hintToday {
				// steady-state watching means "files touched today";
				// narrow the reconciliation accordingly
				app.eng.SetHint(engine.HintUpdatedToday, "", 0)
			}

			if err := app.refreshAll(2 * time.Minute); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "watching; Ctrl-C to stop")

			ctx := cmd.Context()
			sub := app.eng.Subscribe(ctx)
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			for {
				select {
				case ev, ok := <-sub:
					if !ok {
						return nil
					}
					printEvent(ev)
				case <-sig:
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVar(&hintToday, "hint-today", true, "Answer file changes with a sessions-updated-today query instead of a full rescan")
	return cmd
}

func printEvent(ev pubsub.Event[engine.Update]) {
	switch ev.Type {
	case pubsub.SectionsPublished:
		fmt.Printf("%s updated\n", ev.Timestamp.Format("15:04:05"))
		fmt.Print(render.Sections(ev.Payload.Sections, termWidth()))
	case pubsub.RefreshFailed:
		fmt.Fprintf(os.Stderr, "%s refresh failed: %v\n", ev.Timestamp.Format("15:04:05"), ev.Payload.Err)
	}
}
