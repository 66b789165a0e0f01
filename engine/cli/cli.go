// Package cli provides a base struct for creating CLI applications using Cobra. It contains common
// functionality for creating CLI applications, such as providing a logger, adding commands and
// running the root command.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ans-sigalas/simplestorage/pkg/logger"
)

// Base is a base struct for creating CLI applications using Cobra. This should be embedded into
// a struct that contains the specific commands for the CLI application.
type Base struct {
	Log logger.Logger

	rootCmd *cobra.Command
}

// NewBase creates a new Base instance.
func NewBase(log logger.Logger, rootCmd *cobra.Command) *Base {
	return &Base{
		Log:     log,
		rootCmd: rootCmd,
	}
}

// AddCommand adds one or more commands to the root command of the CLI application.
func (base *Base) AddCommand(cmds ...*cobra.Command) {
	base.rootCmd.AddCommand(cmds...)
}

// Run executes the root command of the CLI application. The context is handed to every command
// through cmd.Context().
func (base *Base) Run(ctx context.Context) error {
	return base.rootCmd.ExecuteContext(ctx)
}

// RootCmd returns the root command of the CLI application.
func (base *Base) RootCmd() *cobra.Command {
	return base.rootCmd
}

// NewLogger creates the logger handed to `NewBase`. Output is human readable unless LOG_FORMAT
// is set to json.
func NewLogger(level zapcore.Level) (logger.Logger, error) {
	if os.Getenv("LOG_FORMAT") == "json" {
		return logger.NewWith(func(config *zap.Config) {
			config.Level.SetLevel(level)
		})
	}

	return logger.NewCLI(level)
}

// ParseLevel converts a level name such as "debug" or "warn" into a zapcore.Level. An empty
// string selects info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}

	return zapcore.ParseLevel(s)
}
