// The shaderwarm command harvests shader variant upload logs into a warm-up
// list and a strip list, and answers strip decisions for shader builds.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agleyzer/shaderwarm/internal/processor"
)

const (
	version = "1.0.0"

	defaultSettingsPath = "ShaderVariants/settings.yaml"
)

type options struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "shaderwarm",
		Short:        "Shader variant warm-up and strip list builder",
		Version:      version,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultSettingsPath, "Path to the settings file")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	root.AddCommand(
		newProcessCmd(opts),
		newParseCmd(opts),
		newCheckCmd(opts),
		newServeCmd(opts),
		newWatchCmd(opts),
		newCollectCmd(opts),
		newAddGlobalsCmd(opts),
	)
	return root
}

// newLogger creates the command's logger, writing to the command's error stream.
func newLogger(cmd *cobra.Command, opts *options) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.verbose {
		logLevel = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
}

func newProcessor(cmd *cobra.Command, opts *options) (*processor.Processor, *slog.Logger) {
	logger := newLogger(cmd, opts)
	return processor.New(opts.configPath, logger), logger
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
