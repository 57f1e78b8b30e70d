package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-hub/internal/filter"
	"github.com/Zuo-Peng/ai-session-hub/internal/render"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

func calendarCmd() *cobra.Command {
	var (
		month     string
		dimension string
		dir       string
		cached    bool
	)

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show a month activity heat-map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			monthStart := session.MonthStart(time.Now())
			if month != "" {
				t, err := time.ParseInLocation("2006-01", month, time.Local)
				if err != nil {
					return fmt.Errorf("parse --month: %w", err)
				}
				monthStart = t
			}

			dim := session.ByUpdated
			if dimension == "created" {
				dim = session.ByCreated
			} else if dimension != "" && dimension != "updated" {
				return fmt.Errorf("unknown dimension %q", dimension)
			}

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

			// anchoring the selection on the month's first day points
			// the histogram (and the coverage scan behind it) at the
			// right month
			sub := app.eng.Subscribe(context.Background())
			app.eng.RequestFilterChange(filter.Selection{
				Day:        monthStart,
				Dimension:  dim,
				PathPrefix: dir,
			})
			awaitPublish(sub)
			if dim == session.ByUpdated {
				// the coverage scan runs in the background; wait for
				// one more publish round so the heat-map reflects it
				awaitPublish(sub)
			}

			agg := app.eng.CurrentAggregates()
			fmt.Println(render.Calendar(monthStart, agg.Histogram))
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Month to show (YYYY-MM, default current)")
	cmd.Flags().StringVar(&dimension, "dimension", "updated", "Calendar dimension: created or updated")
	cmd.Flags().StringVar(&dir, "dir", "", "Restrict to sessions under a directory")
	cmd.Flags().BoolVar(&cached, "cached", false, "Serve from the record cache without refreshing")

	return cmd
}
