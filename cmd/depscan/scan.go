package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/internal/config"
	"github.com/depscan/depscan/internal/metrics"
	"github.com/depscan/depscan/internal/report"
	"github.com/depscan/depscan/pkg/depscan"
	"github.com/depscan/depscan/pkg/lockfile"
	"github.com/depscan/depscan/pkg/models"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

var formats = []string{"table", "json"}

func scanCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "scan",
		Usage:       "scans manifests and lockfiles for dependencies with known vulnerabilities",
		Description: "scans the given files, or the known manifests and lockfiles directly inside the given directories, against the OSV database.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:      "config",
				Usage:     "set/override config file",
				TakesFile: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "sets the output format; value can be: " + strings.Join(formats, ", "),
				Value:   "table",
				Action: func(_ context.Context, _ *cli.Command, s string) error {
					if !slices.Contains(formats, s) {
						return fmt.Errorf("unsupported output format \"%s\" - must be one of: %s", s, strings.Join(formats, ", "))
					}
					if s == "json" {
						cmdlogger.SendEverythingToStderr()
					}

					return nil
				},
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "specify the level of information that should be provided during runtime; value can be: " + strings.Join(cmdlogger.Levels(), ", "),
				Value: "info",
				Action: func(_ context.Context, _ *cli.Command, s string) error {
					lvl, err := cmdlogger.ParseLevel(s)
					if err != nil {
						return err
					}

					cmdlogger.SetLevel(lvl)

					return nil
				},
			},
			&cli.BoolFlag{
				Name:  "include-dev",
				Usage: "include development dependencies in the report",
			},
			&cli.StringSliceFlag{
				Name:  "ignore-severity",
				Usage: "suppress vulnerabilities of this severity; may be given more than once",
			},
			&cli.BoolFlag{
				Name:  "no-resolve",
				Usage: "do not resolve manifest version ranges or transitive dependencies through package registries",
			},
			&cli.StringFlag{
				Name:      "metrics-file",
				Usage:     "write prometheus metrics for the scan to this file",
				TakesFile: true,
			},
		},
		ArgsUsage: "[file or directory...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return scanAction(ctx, cmd, stdout, stderr)
		},
	}
}

func scanAction(ctx context.Context, cmd *cli.Command, stdout, _ io.Writer) error {
	targets := cmd.Args().Slice()
	if len(targets) == 0 {
		return depscan.ErrInvalidScanRequest
	}

	cfg, err := loadConfig(cmd.String("config"), targets)
	if err != nil {
		cmdlogger.Errorf("Invalid config file: %v", err)
		return errInvalidConfig
	}

	opts, err := scanOptions(cmd, cfg, time.Now())
	if err != nil {
		return err
	}
	if !opts.ResolveTransitive {
		cfg.Resolution.Enabled = false
	}

	sources, err := readSources(targets)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cmd.String("metrics-file") != "" {
		m = metrics.New()
	}

	scanner, err := depscan.New(cfg, m)
	if err != nil {
		return err
	}
	defer scanner.Close()

	r, scanErr := scanner.Scan(ctx, sources, opts, func(phase depscan.Phase, percent int, message string) {
		cmdlogger.Debugf("[%s %3d%%] %s", phase, percent, message)
	})
	if errors.Is(scanErr, depscan.ErrInvalidScanRequest) {
		return scanErr
	}

	for _, w := range r.Warnings {
		cmdlogger.Warnf("%s", w)
	}

	if err := printReport(r, cmd.String("format"), stdout); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if path := cmd.String("metrics-file"); path != "" {
		if err := m.WriteTextfile(path); err != nil {
			cmdlogger.Errorf("Failed to write metrics to %s: %v", path, err)
		}
	}

	if scanErr != nil {
		return scanErr
	}

	if r.VulnerableCount > 0 {
		return depscan.ErrVulnerabilitiesFound
	}

	return nil
}

func loadConfig(override string, targets []string) (config.Config, error) {
	if override != "" {
		cfg, err := config.Load(override)
		if err != nil {
			return config.Config{}, err
		}
		cmdlogger.Infof("Loaded config from: %s", cfg.LoadPath)

		return cfg, nil
	}

	return config.Discover(targets[0])
}

func scanOptions(cmd *cli.Command, cfg config.Config, now time.Time) (models.ScanOptions, error) {
	sevs, err := cfg.Scan.Severities()
	if err != nil {
		return models.ScanOptions{}, err
	}

	for _, text := range cmd.StringSlice("ignore-severity") {
		sev, err := models.ParseSeverity(text)
		if err != nil {
			return models.ScanOptions{}, err
		}
		if !slices.Contains(sevs, sev) {
			sevs = append(sevs, sev)
		}
	}

	return models.ScanOptions{
		IncludeDevDependencies: cmd.Bool("include-dev") || cfg.Scan.IncludeDev,
		IgnoreSeverities:       sevs,
		ResolveTransitive:      !cmd.Bool("no-resolve") && cfg.Resolution.Enabled,
		IgnoreVulnerabilities:  cfg.ActiveIgnores(now),
	}, nil
}

// readSources reads each file target, and every file directly inside a
// directory target whose name a registered parser recognizes.
func readSources(targets []string) ([]models.ManifestSource, error) {
	var sources []models.ManifestSource

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			source, err := readSource(target)
			if err != nil {
				return nil, err
			}
			sources = append(sources, source)

			continue
		}

		entries, err := os.ReadDir(target)
		if err != nil {
			return nil, err
		}
		found := 0
		for _, entry := range entries {
			if entry.IsDir() || !knownFilename(entry.Name()) {
				continue
			}
			source, err := readSource(filepath.Join(target, entry.Name()))
			if err != nil {
				return nil, err
			}
			sources = append(sources, source)
			found++
		}
		cmdlogger.Infof("Found %d %s in %s", found, pluralFiles(found), target)
	}

	return sources, nil
}

func readSource(path string) (models.ManifestSource, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.ManifestSource{}, err
	}

	return models.ManifestSource{Filename: path, Content: content}, nil
}

func knownFilename(name string) bool {
	return slices.ContainsFunc(lockfile.List(), func(p lockfile.Parser) bool {
		return p.MatchesFilename(name)
	})
}

func pluralFiles(n int) string {
	if n == 1 {
		return "file"
	}

	return "files"
}

func printReport(r models.Report, format string, stdout io.Writer) error {
	var termWidth int
	var isTerminal bool
	if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		isTerminal = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			termWidth = w
		}
	}

	switch format {
	case "json":
		return report.PrintJSON(r, stdout, isTerminal)
	default:
		report.PrintTable(r, stdout, termWidth)
		return nil
	}
}
