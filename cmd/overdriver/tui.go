package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/overdriver/internal/platform/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the interactive control panel",
	Long: `Open the control panel: search songs, pick an instrument and
difficulty, arm the run and start it with a lane key.

The panel only sees keys while its terminal is focused. Logs go to
~/.overdriver/overdriver.log.

Controls:
  Type        - Fuzzy search songs
  Up/Down     - Move through results
  Enter       - Select song / arm
  Tab         - Next instrument (Shift+Tab previous)
  Left/Right  - Difficulty
  Lane keys   - Start the armed run
  Ctrl+S      - Start now
  Esc         - Cancel run / clear search
  Ctrl+R      - Run history
  F1          - Help
  Ctrl+C      - Quit`,
	Run: runTUI,
}

func runTUI(_ *cobra.Command, _ []string) {
	logFile := openLogFile()
	defer logFile.Close()

	logger, err := newLogger(logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sess, err := openSession(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	width, height := terminalSize()
	runErr := tui.Run(sess, width, height)

	if !sess.Shutdown(sess.Settings().Grace()) {
		logger.Warn("key presses still in flight at exit")
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error running control panel: %v\n", runErr)
		os.Exit(1)
	}
}
