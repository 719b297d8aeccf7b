// midicc maps a MIDI control-change stream onto the system volume. The
// daemon ("midicc serve") supervises the worker and serves the control API
// that the other subcommands talk to.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/leandrodaf/midicc/internal/config"
	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	listenAddr string
	verbose    bool

	cfg *config.Config
	log contracts.Logger
)

// exitError carries a process exit code through cobra without printing usage.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "midicc",
	Short: "Drive the system volume from a MIDI controller",
	Long: `midicc reads a MIDI control-change stream and maps it onto the
system output volume.

Run "midicc serve" to start the daemon. The other commands talk to it over
its local control API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Listen = listenAddr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config %s: %w", configPath, err)
		}

		log = logger.NewDevelopmentLogger()
		level := cfg.LogLevel()
		if verbose {
			level = contracts.DebugLevel
		}
		log.SetLevel(level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if z, ok := log.(*logger.ZapLogger); ok {
			_ = z.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "control API address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(Execute())
}
