package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/overdriver/internal/platform/tui"
	"github.com/vovakirdan/overdriver/internal/storage"
)

var (
	flagHistorySong  string
	flagHistoryLimit int
	flagHistoryClear bool
	flagHistoryTUI   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs and timing drift",
	Long: `Display recent runs with their outcome, and the mean and worst drift
between chart offsets and actual key presses.

Examples:
  overdriver history
  overdriver history --song "Blinding Lights"
  overdriver history --interactive
  overdriver history --clear`,
	Run: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&flagHistorySong, "song", "", "Only show runs of this song")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 10, "Number of runs to show")
	historyCmd.Flags().BoolVar(&flagHistoryClear, "clear", false, "Delete all recorded runs")
	historyCmd.Flags().BoolVar(&flagHistoryTUI, "interactive", false, "Browse runs in a table")
}

func runHistory(_ *cobra.Command, _ []string) {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	settings, err := loadSettings(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Open run history
	store, err := storage.Open(settings.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening run history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if flagHistoryClear {
		if err := store.ClearHistory(); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing history: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Run history cleared.")
		return
	}

	if flagHistoryTUI {
		width, height := terminalSize()
		if err := tui.RunHistory(store, width, height); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runs, err := store.RecentRuns(flagHistorySong, flagHistoryLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving runs: %v\n", err)
		os.Exit(1)
	}

	title := "All songs"
	if flagHistorySong != "" {
		title = flagHistorySong
	}
	fmt.Printf("Run History - %s\n", title)
	fmt.Println()

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		fmt.Println()
		fmt.Println("Run 'overdriver run <song>' to record the first one!")
		return
	}

	// Print header
	fmt.Printf("  %-16s  %-24s  %-18s  %-10s  %s\n", "Date", "Song", "Part", "Result", "Fired")
	fmt.Printf("  %-16s  %-24s  %-18s  %-10s  %s\n", "----", "----", "----", "------", "-----")

	// Print runs
	for _, r := range runs {
		dateStr := r.StartedAt.Format("2006-01-02 15:04")
		part := fmt.Sprintf("%s/%s", r.Instrument, r.Difficulty)
		fmt.Printf("  %-16s  %-24s  %-18s  %-10s  %d/%d\n", dateStr, r.Song, part, r.Outcome, r.Fired, len(r.Offsets))
	}

	// Show drift
	stats, err := store.GetDriftStats(flagHistorySong)
	if err == nil && stats.Fires > 0 {
		fmt.Println()
		fmt.Printf("Presses: %d  Mean drift: %+.1f ms  Worst: %d ms\n", stats.Fires, stats.MeanDrift, stats.MaxDrift)
	}
}
