package cmd

import (
	"fmt"
	"os"

	"github.com/krishanu7/battleship-engine/config"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "battleship",
		Short: "Battleship game server",
		Long: `Battleship runs the game API, the matchmaker and maintenance jobs.
All game state lives in Redis, so any number of processes can share it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Logging.Level = logLevel
			}
			level, err := log.ParseLogLevel(loaded.Logging.Level)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			cfg = loaded
			return nil
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMatchmakerCommand())
	rootCmd.AddCommand(newCleanupCommand())
	return rootCmd
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
