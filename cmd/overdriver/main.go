// overdriver fires the overdrive key of a rhythm game on chart timings.
//
// Usage:
//
//	overdriver run <song>        - Arm a song and start on a lane key
//	overdriver tui               - Interactive control panel
//	overdriver songs [query]     - List or search the song catalog
//	overdriver history           - Show recorded runs and drift
//	overdriver serve             - Serve the control panel over SSH
//	overdriver config            - Show or write settings
//
// Global flags:
//
//	--settings <path>  - Settings file (default: search ~/.overdriver, then ./)
//	--chart <path>     - Song catalog, overrides chart_file
//	--db <path>        - Run history database, overrides db_path
//	--actuator <name>  - Key backend, overrides actuator
//	--trigger <source> - Lane key source (hook or terminal), overrides trigger
//	--log-level <lvl>  - debug, info, warn or error
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	flagSettings string
	flagChart    string
	flagDBPath   string
	flagActuator string
	flagTrigger  string
	flagLogLevel string
	flagNoDB     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "overdriver",
	Short: "Overdriver - timed overdrive key presses for rhythm games",
	Long: `Overdriver presses the overdrive key of a rhythm game at the offsets
listed in a song chart. Arm a song, press any lane key when the song starts,
and every overdrive fires on time.

Available commands:
  run      - Arm a song from the command line
  tui      - Interactive control panel with fuzzy song search
  songs    - List or search the song catalog
  history  - View recorded runs and timing drift
  serve    - Start SSH server for remote control
  config   - Show or write settings

Examples:
  overdriver songs blinding
  overdriver run "Blinding Lights" --instrument "Pro Lead" --difficulty hard
  overdriver tui
  overdriver history --song "Blinding Lights"`,
	SilenceUsage: true,
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&flagSettings, "settings", "", "Path to settings file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&flagChart, "chart", "", "Path to song catalog (overrides chart_file)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to run history database (overrides db_path)")
	rootCmd.PersistentFlags().StringVar(&flagActuator, "actuator", "", "Key backend: keybd or dry-run (overrides actuator)")
	rootCmd.PersistentFlags().StringVar(&flagTrigger, "trigger", "", "Lane key source: hook or terminal (overrides trigger)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagNoDB, "no-history", false, "Do not record runs")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(songsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}
