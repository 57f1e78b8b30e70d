package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-hub/internal/config"
	"github.com/Zuo-Peng/ai-session-hub/internal/recordcache"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify roots, config, and record cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			var err error
			if flagConfig != "" {
				cfg, err = config.LoadFile(flagConfig)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			fmt.Println("=== Roots ===")
			checkDir("Claude", cfg.ClaudeRoot)
			checkDir("Codex", cfg.CodexRoot)
			for _, r := range cfg.Remotes {
				checkDir(fmt.Sprintf("%s@%s", r.Kind, r.Host), r.Root)
			}

			fmt.Println("\n=== Projects ===")
			reg, err := cfg.Registry()
			if err != nil {
				fmt.Printf("  error: %v\n", err)
			} else {
				for _, p := range reg.All() {
					fmt.Printf("  %s (%s)", p.ID, p.Dir)
					if p.Parent != "" {
						fmt.Printf(" parent=%s", p.Parent)
					}
					fmt.Println()
				}
				if len(reg.All()) == 0 {
					fmt.Println("  none declared")
				}
			}

			fmt.Println("\n=== Record cache ===")
			fmt.Printf("  Path: %s\n", cfg.DBPath)
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'aish index' first)")
				return nil
			}

			store, err := recordcache.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open record cache: %w", err)
			}
			defer store.Close()

			n, err := store.RecordCount()
			if err != nil {
				return fmt.Errorf("count records: %w", err)
			}
			fmt.Printf("  Records: %d\n", n)

			overlays, err := store.Overlays()
			if err != nil {
				return fmt.Errorf("load overlays: %w", err)
			}
			fmt.Printf("  Overlays: %d\n", len(overlays))

			pruned, err := store.PruneCoverage()
			if err != nil {
				fmt.Printf("  Coverage: prune error: %v\n", err)
			} else if pruned > 0 {
				fmt.Printf("  Coverage: pruned %d orphaned rows\n", pruned)
			} else {
				fmt.Println("  Coverage: OK")
			}

			if info, err := os.Stat(cfg.DBPath); err == nil {
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", float64(info.Size())/1024/1024)
			}
			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
