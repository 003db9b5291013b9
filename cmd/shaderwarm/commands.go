package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agleyzer/shaderwarm/internal/collector"
	"github.com/agleyzer/shaderwarm/internal/parser"
	"github.com/agleyzer/shaderwarm/internal/server"
	"github.com/agleyzer/shaderwarm/internal/watch"
)

func newProcessCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Normalize the upload log and rebuild the warm-up and strip lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, logger := newProcessor(cmd, opts)
			ctx, cancel := signalContext(cmd.Context(), logger)
			defer cancel()

			res, err := proc.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:       %s\n", res.RunID)
			fmt.Fprintf(out, "lines:     %d\n", res.Lines)
			fmt.Fprintf(out, "variants:  %d (malformed %d, missing shaders %d)\n", len(res.Catalog), res.Malformed, res.MissingShaders)
			fmt.Fprintf(out, "warm-up:   %d (skipped %d)\n", len(res.Warmup.Variants), len(res.Warmup.Skipped))
			if res.Strip != nil {
				fmt.Fprintf(out, "strip:     %d entries (kept %d, removed %d)\n", len(res.Strip.Entries), len(res.Strip.Kept), len(res.Strip.Removed))
			} else {
				fmt.Fprintln(out, "strip:     disabled")
			}
			return nil
		},
	}
}

func newParseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [line...]",
		Short: "Parse upload log lines and print the variants they describe",
		Long:  "Parses the given lines, or lines read from standard input when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, _ := newProcessor(cmd, opts)
			prs, err := proc.Parser()
			if err != nil {
				return err
			}

			lines := args
			if len(lines) == 0 {
				if lines, err = readLines(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, line := range lines {
				if !strings.Contains(line, prs.LineBeginning()) {
					continue
				}
				rec, err := prs.Parse(line)
				if err != nil {
					failed++
					fmt.Fprintf(out, "ERROR %v\n", err)
					continue
				}
				fmt.Fprintf(out, "OK    %s time=%gms\n", rec.Key(), rec.UploadTimeMs)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d lines failed to parse", failed, len(lines))
			}
			return nil
		},
	}
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <shader> [keyword...]",
		Short: "Report whether a variant would be stripped",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, _ := newProcessor(cmd, opts)
			st, _, err := proc.Stripper()
			if err != nil {
				return err
			}

			shader := args[0]
			var raw []string
			for _, a := range args[1:] {
				raw = append(raw, parser.SplitKeywords(a)...)
			}
			local := st.LocalKeywords(raw)

			decision := "keep"
			if st.ShouldStrip(shader, local) {
				decision = "strip"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s [%s]\n", decision, shader, strings.Join(local, " "))
			return nil
		},
	}
}

func newServeCmd(opts *options) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve strip decisions and processing over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePort(port); err != nil {
				return err
			}

			proc, logger := newProcessor(cmd, opts)
			ctx, cancel := signalContext(cmd.Context(), logger)
			defer cancel()

			logger.Info("strip decision service ready",
				"strip", fmt.Sprintf("http://localhost:%d/strip", port),
				"health", fmt.Sprintf("http://localhost:%d/health", port),
			)

			// Start server (blocks until shutdown)
			return server.New(proc, port, logger).Start(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	return cmd
}

func newWatchCmd(opts *options) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process the upload log whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, logger := newProcessor(cmd, opts)
			ctx, cancel := signalContext(cmd.Context(), logger)
			defer cancel()

			if _, err := proc.Run(ctx); err != nil {
				return err
			}
			settings, err := proc.Settings()
			if err != nil {
				return err
			}

			w, err := watch.New(settings.LogFilePath, debounce, func(ctx context.Context) error {
				_, err := proc.Run(ctx)
				return err
			}, logger)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a change is processed")
	return cmd
}

func newCollectCmd(opts *options) *cobra.Command {
	var (
		interval time.Duration
		manifest string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Sample keywords from a live session until it ends",
		Long:  "Re-reads the shader manifest every interval and stores the collected keywords when interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, logger := newProcessor(cmd, opts)

			if manifest == "" {
				settings, err := proc.Settings()
				if err != nil {
					return err
				}
				manifest = settings.ManifestPath
			}
			if manifest == "" {
				return errors.New("a shader manifest is required: set manifest_path or pass --manifest")
			}

			c, err := collector.New(collector.ManifestSampler(manifest), interval, proc.RecordSession, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context(), logger)
			defer cancel()
			return c.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Sampling interval")
	cmd.Flags().StringVar(&manifest, "manifest", "", "Shader manifest to sample (defaults to manifest_path)")
	return cmd
}

func newAddGlobalsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add-globals",
		Short: "Add the currently enabled global keywords to the settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, _ := newProcessor(cmd, opts)
			added, err := proc.AddEnabledGlobalKeywords()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d global keywords\n", added)
			return nil
		},
	}
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return lines, nil
}
