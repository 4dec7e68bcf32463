package main

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/internal/version"
	"github.com/depscan/depscan/pkg/depscan"
	"github.com/urfave/cli/v3"
)

var (
	commit = "n/a"
	date   = "n/a"
)

// errInvalidConfig is returned after the config problem has been logged.
var errInvalidConfig = errors.New("invalid config")

type commandBuilder = func(stdout, stderr io.Writer) *cli.Command

func run(args []string, stdout, stderr io.Writer) int {
	return runCommands(context.Background(), args, stdout, stderr, []commandBuilder{scanCommand})
}

func runCommands(ctx context.Context, args []string, stdout, stderr io.Writer, commands []commandBuilder) int {
	logHandler := cmdlogger.New(stdout, stderr)
	slog.SetDefault(slog.New(logHandler))

	cli.VersionPrinter = func(cmd *cli.Command) {
		cmdlogger.Infof("depscan version: %s", cmd.Version)
		cmdlogger.Infof("commit: %s", commit)
		cmdlogger.Infof("built at: %s", date)
	}

	cmds := make([]*cli.Command, 0, len(commands))
	for _, cmd := range commands {
		cmds = append(cmds, cmd(stdout, stderr))
	}

	app := &cli.Command{
		Name:           "depscan",
		Version:        version.Version,
		Usage:          "scans dependency manifests and lockfiles for known vulnerabilities",
		Suggest:        true,
		Writer:         stdout,
		ErrWriter:      stderr,
		DefaultCommand: "scan",
		Commands:       cmds,
	}

	// errors are mapped to exit codes below, so nothing should exit early
	app.ExitErrHandler = func(_ context.Context, _ *cli.Command, _ error) {}

	err := app.Run(ctx, args)

	// if the config is invalid, it's possible that is why any other errors
	// happened so that exit code takes priority
	if logHandler.HasErroredBecauseInvalidConfig() || errors.Is(err, errInvalidConfig) {
		return 130
	}

	if err != nil {
		switch {
		case errors.Is(err, depscan.ErrVulnerabilitiesFound):
			return 1
		case errors.Is(err, depscan.ErrInvalidScanRequest):
			cmdlogger.Errorf("No package sources found, --help for usage information.")
			return 128
		}
		cmdlogger.Errorf("%v", err)
	}

	// if we've been told to print an error, and not already exited with
	// a specific error code, then exit with a generic non-zero code
	if logHandler.HasErrored() {
		return 127
	}

	return 0
}
