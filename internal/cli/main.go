package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/arpan404/img/internal/config"
	"github.com/arpan404/img/internal/logger"
)

// globals are the persistent flags shared by every command.
type globals struct {
	envFile   string
	logLevel  string
	logFormat string

	log *slog.Logger
}

func Main() {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRoot() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "img",
		Short:        "Assemble short vertical narrated videos from stories and background footage",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = config.LoadEnv(g.envFile) // best-effort: load .env if present
			level := g.logLevel
			if !cmd.Flags().Changed("log-level") {
				level = config.GetEnv("LOG_LEVEL", level)
			}
			format := g.logFormat
			if !cmd.Flags().Changed("log-format") {
				format = config.GetEnv("LOG_FORMAT", format)
			}
			g.log = logger.NewWithWriter(cmd.ErrOrStderr(), level, format)
			return nil
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Env file to load before reading settings")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(newRunCmd(g), newListCmd(), newScheduleCmd(g))
	return root
}
