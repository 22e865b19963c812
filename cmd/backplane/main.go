// backplane is the orchestration core CLI: submit work orders to
// interchangeable agent backends and get sealed, tamper-evident receipts
// back.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"backplane/internal/config"
	"backplane/internal/logging"
	"backplane/internal/runtime"
	"backplane/internal/sidecar"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "backplane",
	Short: "backplane - agent backend orchestration core",
	Long: `backplane submits work orders to interchangeable agent backends and
returns tamper-evident receipts.

Backends are either in-process (mock) or external sidecar processes
speaking line-delimited JSON over stdin/stdout. Every run is recorded as
a sealed receipt whose SHA-256 hash covers the full canonical document.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.NewVerbose(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads the config file named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRuntime wires a runtime with every configured backend registered.
func buildRuntime(cfg *config.Config) (*runtime.Runtime, error) {
	rt := runtime.New(logger)
	for name, bc := range cfg.Backends {
		switch bc.Kind {
		case "mock":
			rt.Registry().Register(name, runtime.NewMockBackend(logger))
		case "sidecar":
			timeout, err := bc.Timeout()
			if err != nil {
				return nil, err
			}
			rt.Registry().Register(name, runtime.NewSidecarBackend(name, sidecar.Spec{
				Command:    bc.Command,
				Args:       bc.Args,
				Env:        bc.Env,
				Dir:        bc.Dir,
				RunTimeout: timeout,
			}, logger))
		}
	}
	return rt, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "backplane.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(hashCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
