package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inferloop/tabsynth/cmd/cli/commands"
	"github.com/inferloop/tabsynth/cmd/cli/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd(viper.New())

	// Execute
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	app := commands.NewApp(v)

	rootCmd := &cobra.Command{
		Use:   "tabsynth",
		Short: "Privacy-safe synthetic tabular data CLI",
		Long: `A command-line interface for training synthesizers on tabular data,
generating privacy-safe synthetic rows, profiling datasets and scoring
synthetic data against the original.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.ConfigFile, "config", "", fmt.Sprintf("config file (default is %s)", config.GetDefaultConfigPath()))
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("query", "", "SQL query for postgres, mysql and sqlite sources")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.Int64("seed", 0, "random seed for sampling (0 seeds from the clock)")

	bindings := map[string]string{
		"log.level":        "log-level",
		"log.format":       "log-format",
		"source.query":     "query",
		"metrics.textfile": "metrics-file",
		"generate.seed":    "seed",
	}
	for key, flag := range bindings {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(flag)))
	}

	// Add commands
	commands.AddCommands(rootCmd, app)

	return rootCmd
}
