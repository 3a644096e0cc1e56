// Command clawverse runs the town simulation server and its wiki maintenance tools.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clawverse.ai/internal/logging"
)

var (
	verbose   bool
	devLog    bool
	dataDir   string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "clawverse",
	Short: "Autonomous agents in a 2D town with a shared wiki",
	Long: `clawverse runs a small town where autonomous agents wander, talk and
write to a shared wiki, driven by an LLM or a local fallback policy.

Storage is selected with CV_STORE_BACKEND (memory, sqlite, badger).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev-log", false, "human-readable console logs")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "./data", "runtime data directory")
	rootCmd.PersistentFlags().StringVar(&configDir, "configs", "./configs", "config directory")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(botCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Development: devLog})
}

func seedPath() string { return filepath.Join(configDir, "seed.yaml") }
