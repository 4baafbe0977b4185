package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/overdriver/internal/chart"
)

var flagSongsLimit int

var songsCmd = &cobra.Command{
	Use:   "songs [query]",
	Short: "List or search the song catalog",
	Long: `Without a query, lists every song in the catalog.
With a query, shows the best fuzzy matches.

Examples:
  overdriver songs
  overdriver songs blinding
  overdriver songs "bad g" --limit 3`,
	Run: runSongs,
}

func init() {
	songsCmd.Flags().IntVar(&flagSongsLimit, "limit", chart.DefaultSearchLimit, "Maximum number of search results")
}

func runSongs(_ *cobra.Command, args []string) {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	catalog, err := catalogFromSettings(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	titles := catalog.Titles()
	if len(args) > 0 {
		titles = catalog.Search(strings.Join(args, " "), flagSongsLimit)
	}

	if len(titles) == 0 {
		fmt.Println("No songs found.")
		return
	}

	// Calculate column widths
	maxTitleLen := 5 // "Title" header
	for _, t := range titles {
		if len(t) > maxTitleLen {
			maxTitleLen = len(t)
		}
	}

	// Print header
	fmt.Printf("  %-*s  %-6s  %s\n", maxTitleLen, "Title", "Length", "Artist")
	fmt.Printf("  %-*s  %-6s  %s\n", maxTitleLen, "-----", "------", "------")

	// Print songs
	for _, t := range titles {
		song, err := catalog.Song(t)
		if err != nil {
			continue
		}
		fmt.Printf("  %-*s  %-6s  %s\n", maxTitleLen, t, song.Length(), song.ArtistName)
	}

	fmt.Println()
	fmt.Println("Run 'overdriver run <title>' to arm a song.")
}

// catalogFromSettings loads just the catalog, without opening a session.
func catalogFromSettings(logger *log.Logger) (*chart.Catalog, error) {
	settings, err := loadSettings(logger)
	if err != nil {
		return nil, err
	}
	return loadCatalog(settings)
}
