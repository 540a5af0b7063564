// Package main provides the entry point for the watch-module command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/watchmodule/internal/config"
	"github.com/listenupapp/watchmodule/internal/console"
	"github.com/listenupapp/watchmodule/internal/di"
	"github.com/listenupapp/watchmodule/internal/di/providers"
	"github.com/listenupapp/watchmodule/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var errNoModules = errors.New("you must specify a module's path")

func main() {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "watch-module: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(version string) *cobra.Command {
	var (
		flags       config.Flags
		showVersion bool
	)

	cmd := &cobra.Command{
		Use:   "watch-module [flags] <module-path>...",
		Short: "Rebuild local modules on change and swap them into node_modules",
		Long: `Watch one or more library modules, rebuild them when their sources change,
and replace the consumer's node_modules/<name> with the fresh build.

Original packages are backed up before the first swap and restored on exit.
More module paths can be added while running by typing them on stdin,
one per line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "watch-module %s\n", version)
				return err
			}
			if len(args) == 0 {
				return errNoModules
			}
			return run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), flags, args)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&flags.Verbose, "verbose", "v", false, "Report every step, including command output of successful builds")
	f.BoolVarP(&showVersion, "version", "V", false, "Print the version and exit")
	f.StringVar(&flags.Debounce, "debounce", "", "Quiet window before a batch of changes is built (default 200ms)")
	f.StringVar(&flags.GlobalConfig, "config", "", "Path of the global config file")
	f.StringVar(&flags.ConsumerDir, "consumer", "", "Consumer project owning node_modules (default: working directory)")
	f.StringVar(&flags.OutputLimit, "output-limit", "", "Maximum captured output per command, e.g. 500KiB")
	f.StringVar(&flags.RestoreConcurrency, "restore-concurrency", "", "Number of modules restored in parallel on exit")
	f.StringVar(&flags.LogLevel, "log-level", "", "Diagnostics log level: debug, info, warn or error")
	f.StringVar(&flags.EnvFile, "env-file", "", "Environment file to load (default .env)")

	return cmd
}

func run(ctx context.Context, in io.Reader, out io.Writer, flags config.Flags, paths []string) error {
	// Installed before anything can swap, so an interrupt always restores.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := di.NewContainer(flags)

	if err := di.Bootstrap(injector); err != nil {
		injector.Shutdown()
		return err
	}

	log := do.MustInvoke[*logger.Logger](injector)
	feedHandle := do.MustInvoke[*providers.FeedHandle](injector)
	sessionHandle := do.MustInvoke[*providers.SessionHandle](injector)

	lines, unsubscribe := feedHandle.Subscribe()
	defer unsubscribe()

	con := console.New(out, console.Options{Color: colorEnabled(out)})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		if err := con.Run(context.Background(), lines); err != nil {
			log.Error("console stopped", "error", err)
		}
	}()

	// Failures are reported on the feed; the remaining modules still run.
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		_, _ = sessionHandle.AddModule(path)
	}

	go func() {
		_ = console.ReadPaths(ctx, in, func(path string) error {
			_, err := sessionHandle.AddModule(path)
			return err
		})
	}()

	<-ctx.Done()
	log.Debug("shutting down")

	// Restores every swapped module, then closes the feed.
	report := injector.Shutdown()
	<-drained

	if report != nil && !report.Succeed {
		return report
	}
	return nil
}

func colorEnabled(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
