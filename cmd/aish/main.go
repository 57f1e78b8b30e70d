package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/ai-session-hub/internal/log"
)

var version = "dev"

var (
	flagConfig string
	flagDebug  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "aish",
		Short:   "AI Session Hub - one live index over Claude Code and Codex session logs",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				log.SetEnabled(true)
				log.SetMinLevel(log.LevelDebug)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default ~/.config/aish/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging to stderr")

	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(doctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
