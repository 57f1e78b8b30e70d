package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-hub/internal/render"
)

func projectsCmd() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Show per-project session counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.close()

			if !cached {
				if err := app.refreshAll(2 * time.Minute); err != nil {
					return err
				}
			}

			reg, err := app.cfg.Registry()
			if err != nil {
				return err
			}
			names := make(map[string]string)
			for _, p := range reg.All() {
				names[p.ID] = p.Name
			}

			agg := app.eng.CurrentAggregates()
			fmt.Print(render.Projects(agg.Projects, names))
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Serve from the record cache without refreshing")
	return cmd
}
