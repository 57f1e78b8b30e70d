package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/ai-session-hub/internal/filter"
	"github.com/Zuo-Peng/ai-session-hub/internal/render"
	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

func listCmd() *cobra.Command {
	var (
		projectID string
		dir       string
		day       string
		dimension string
		query     string
		sortBy    string
		cached    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the filtered session list grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := buildSelection(projectID, dir, day, dimension, query, sortBy)
			if err != nil {
				return err
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
			applySelection(app, sel)

			fmt.Print(render.Sections(app.eng.VisibleSections(), termWidth()))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Filter to a project and its descendants")
	cmd.Flags().StringVar(&dir, "dir", "", "Filter to sessions under a directory")
	cmd.Flags().StringVar(&day, "day", "", "Filter to one day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dimension, "dimension", "updated", "Calendar dimension: created or updated")
	cmd.Flags().StringVar(&query, "query", "", "Quick-search over titles and comments")
	cmd.Flags().StringVar(&sortBy, "sort", "recency", "Sort order: recency, duration, activity, name, size")
	cmd.Flags().BoolVar(&cached, "cached", false, "Serve from the record cache without refreshing")

	return cmd
}

func buildSelection(projectID, dir, day, dimension, query, sortBy string) (filter.Selection, error) {
	sel := filter.Selection{
		PathPrefix: dir,
		Query:      query,
	}
	if projectID == "unassigned" {
		sel.Unassigned = true
	} else {
		sel.ProjectID = projectID
	}

	switch dimension {
	case "created":
		sel.Dimension = session.ByCreated
	case "updated", "":
		sel.Dimension = session.ByUpdated
	default:
		return sel, fmt.Errorf("unknown dimension %q", dimension)
	}

	if day != "" {
		t, err := time.ParseInLocation("2006-01-02", day, time.Local)
		if err != nil {
			return sel, fmt.Errorf("parse --day: %w", err)
		}
		sel.Day = t
	}

	switch sortBy {
	case "recency", "":
		sel.Sort = filter.SortRecency
	case "duration":
		sel.Sort = filter.SortDuration
	case "activity":
		sel.Sort = filter.SortActivity
	case "name":
		sel.Sort = filter.SortName
	case "size":
		sel.Sort = filter.SortSize
	default:
		return sel, fmt.Errorf("unknown sort order %q", sortBy)
	}
	return sel, nil
}

// applySelection pushes the selection and waits for the recompute to
// publish. A selection identical to the published state publishes
// nothing, so a short settle covers that case.
func applySelection(app *app, sel filter.Selection) {
	sub := app.eng.Subscribe(context.Background())
	app.eng.RequestFilterChange(sel)
	awaitPublish(sub)
}

func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 0
}
