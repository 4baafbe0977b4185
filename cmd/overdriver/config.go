package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/overdriver/internal/actuator"
	"github.com/vovakirdan/overdriver/internal/config"
)

var (
	flagConfigForce     bool
	flagConfigEffective bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective settings",
	Long: `Print the settings overdriver would use, and where they came from.

Settings are searched in this order:
  1. --settings <path>
  2. ~/.overdriver/settings.yaml
  3. ./settings.yaml
  4. ./settings.json
  5. built-in defaults

Examples:
  overdriver config
  overdriver config init
  overdriver config backends`,
	Args: cobra.NoArgs,
	Run:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default settings file",
	Long: `Write the default settings to ~/.overdriver/settings.yaml,
or to the given path. With --effective, writes the settings currently in
use (including --chart, --db and --actuator overrides) instead.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runConfigInit,
}

var configBackendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List key actuator backends",
	Args:  cobra.NoArgs,
	Run:   runConfigBackends,
}

func init() {
	configInitCmd.Flags().BoolVar(&flagConfigForce, "force", false, "Overwrite an existing file")
	configInitCmd.Flags().BoolVar(&flagConfigEffective, "effective", false, "Write the effective settings instead of the defaults")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configBackendsCmd)
}

func runConfigShow(_ *cobra.Command, _ []string) {
	settings, source, err := config.Load(osFs, flagSettings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("# source: %s\n", source)
	fmt.Print(string(data))

	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "\nWarning: %v\n", err)
	}
}

func runConfigInit(_ *cobra.Command, args []string) {
	path := filepath.Join(config.UserDir(), "settings.yaml")
	if len(args) > 0 {
		path = args[0]
	} else if config.UserDir() == "" {
		fmt.Fprintln(os.Stderr, "Error: cannot find home directory, pass a path")
		os.Exit(1)
	}

	if !flagConfigEffective {
		if err := writeDefaults(osFs, path, flagConfigForce); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default settings to %s\n", path)
		return
	}

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
	if err := refuseOverwrite(osFs, path, flagConfigForce); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Write(osFs, path, settings); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote effective settings to %s\n", path)
}

// refuseOverwrite fails if path exists and force is not set.
func refuseOverwrite(fs afero.Fs, path string, force bool) error {
	if force {
		return nil
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return err
	}
	if exists {
		return errors.New(path + " already exists, use --force to overwrite")
	}
	return nil
}

// writeDefaults writes the commented default settings file.
func writeDefaults(fs afero.Fs, path string, force bool) error {
	if err := refuseOverwrite(fs, path, force); err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create directory for %s: %w", path, err)
	}
	return afero.WriteFile(fs, path, config.DefaultYAML(), 0o644)
}

func runConfigBackends(_ *cobra.Command, _ []string) {
	backends := actuator.List()

	// Calculate column widths
	maxNameLen := 4 // "Name" header
	for _, b := range backends {
		if len(b.Name) > maxNameLen {
			maxNameLen = len(b.Name)
		}
	}

	fmt.Printf("  %-*s  %s\n", maxNameLen, "Name", "Description")
	fmt.Printf("  %-*s  %s\n", maxNameLen, "----", "-----------")
	for _, b := range backends {
		fmt.Printf("  %-*s  %s\n", maxNameLen, b.Name, b.Description)
	}
}
