package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/platform/console"
	"github.com/vovakirdan/overdriver/internal/session"
)

var (
	flagInstrument string
	flagDifficulty string
	flagNow        bool
)

var runCmd = &cobra.Command{
	Use:   "run <song>",
	Short: "Arm a song and fire its overdrives",
	Long: `Arm the overdrive timings of a song and wait for a lane key.

The song may be an exact title or a fuzzy query; the best match is used.
Once a lane key is pressed the overdrive key fires at every chart offset.

Controls while armed:
  Lane keys   - Start the run
  Esc/Ctrl+C  - Cancel

Instruments: Vocals, Bass, Lead, Drums, "Pro Bass", "Pro Lead"
Difficulties: Easy, Medium, Hard, Expert

Examples:
  overdriver run "Blinding Lights"
  overdriver run blinding --instrument "Pro Lead" --difficulty hard
  overdriver run "Bad Guy" --now --actuator dry-run`,
	Args: cobra.MinimumNArgs(1),
	Run:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&flagInstrument, "instrument", "i", "", "Instrument (default: settings instrument)")
	runCmd.Flags().StringVarP(&flagDifficulty, "difficulty", "d", "", "Difficulty (default: settings difficulty)")
	runCmd.Flags().BoolVar(&flagNow, "now", false, "Start immediately instead of waiting for a lane key")
}

func runRun(cmd *cobra.Command, args []string) {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sess, err := openSession(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	settings := sess.Settings()

	query := strings.Join(args, " ")
	song, err := sess.Catalog().Resolve(query)
	if err != nil {
		sess.Shutdown(settings.Grace())
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'overdriver songs' to see available songs.")
		os.Exit(1)
	}

	inst, diff, err := parseSelection(flagInstrument, flagDifficulty, settings.DefaultInst, settings.DefaultDiff)
	if err != nil {
		sess.Shutdown(settings.Grace())
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sel, err := sess.Prepare(song.DisplayTitle, diff, inst)
	if err != nil {
		sess.Shutdown(settings.Grace())
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s - %s (%s)\n", song.DisplayTitle, song.ArtistName, song.Length())
	fmt.Println(chart.Label(inst, diff))
	fmt.Println(session.TimingCount(len(sel.Offsets)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	state, runErr := console.New(sess, os.Stdin, os.Stdout, logger).Run(ctx, flagNow)
	stop()

	if !sess.Shutdown(settings.Grace()) {
		logger.Warn("key presses still in flight at exit")
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
	if state == engine.StateCancelled {
		os.Exit(130)
	}
}

// parseSelection resolves instrument and difficulty flags, falling back to
// the settings defaults.
func parseSelection(instFlag, diffFlag, defInst, defDiff string) (chart.Instrument, chart.Difficulty, error) {
	if instFlag == "" {
		instFlag = defInst
	}
	if diffFlag == "" {
		diffFlag = defDiff
	}
	inst, err := chart.ParseInstrument(instFlag)
	if err != nil {
		return "", "", err
	}
	diff, err := chart.ParseDifficulty(diffFlag)
	if err != nil {
		return "", "", err
	}
	return inst, diff, nil
}
