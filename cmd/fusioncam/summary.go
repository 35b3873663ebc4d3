package main

import (
	"github.com/spf13/cobra"

	"fusioncam/internal/eventlog"
)

var (
	summaryLog    string
	summaryWindow int
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the most recent entries of a saved detection log",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := summaryLog
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Paths.LogPath
		}

		entries, err := eventlog.ReadFile(path)
		if err != nil {
			return err
		}
		eventlog.PrintSummary(eventlog.Summarize(eventlog.Tail(entries, summaryWindow)), len(entries))
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryLog, "log", "", "Detection log JSON file (default from config)")
	summaryCmd.Flags().IntVarP(&summaryWindow, "window", "w", 20, "Number of recent entries to summarize")
	rootCmd.AddCommand(summaryCmd)
}
