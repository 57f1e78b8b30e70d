package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func indexCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Refresh the session index from every configured source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.close()

			fmt.Fprintf(os.Stderr, "Refreshing sources...\n")
			fmt.Fprintf(os.Stderr, "  Claude: %s\n", app.cfg.ClaudeRoot)
			fmt.Fprintf(os.Stderr, "  Codex:  %s\n", app.cfg.CodexRoot)
			for _, r := range app.cfg.Remotes {
				fmt.Fprintf(os.Stderr, "  %s@%s: %s\n", r.Kind, r.Host, r.Root)
			}

			if err := app.refreshAll(timeout); err != nil {
				return err
			}

			n, err := app.store.RecordCount()
			if err != nil {
				return fmt.Errorf("count records: %w", err)
			}
			sessions := 0
			for _, sec := range app.eng.VisibleSections() {
				sessions += len(sec.Sessions)
			}
			fmt.Fprintf(os.Stderr, "Done. %d sessions indexed, %d cached.\n", sessions, n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	return cmd
}
