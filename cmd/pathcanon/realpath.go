package main

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pathcanon/pathcanon/internal/fault"
	"github.com/pathcanon/pathcanon/internal/logging"
	"github.com/pathcanon/pathcanon/internal/normalize"
	"github.com/pathcanon/pathcanon/internal/pathtext"
	"github.com/pathcanon/pathcanon/internal/realpath"
	"github.com/pathcanon/pathcanon/internal/resolve"
)

type realpathOutcome struct {
	input string
	res   *realpath.Result
	err   error
}

func newRealpathCmd(opts *globalOptions) *cobra.Command {
	var grammarName string
	var jobs int
	var tracePath string
	var showStats bool
	var noExpandHome bool

	cmd := &cobra.Command{
		Use:   "realpath paths...",
		Short: "Canonicalize paths against the filesystem, following every symlink",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := normalize.ParseGrammar(grammarName)
			if err != nil {
				return err
			}
			if jobs <= 0 {
				return errors.New("jobs must be > 0")
			}
			log, err := opts.logger(cmd)
			if err != nil {
				return err
			}

			var traces *logging.TraceLogger
			if tracePath != "" {
				logger, closer, err := logging.OpenTraceLog(tracePath)
				if err != nil {
					return err
				}
				defer func() { _ = closer() }()
				traces = logger
			}

			walker := realpath.New(resolve.New(g, resolve.OSEnv{}), realpath.OSFS{})
			walker.Log = log

			outcomes := make([]realpathOutcome, len(args))
			var group errgroup.Group
			group.SetLimit(jobs)
			for i, arg := range args {
				group.Go(func() error {
					outcomes[i] = canonicalize(walker, g, arg, !noExpandHome, traces)
					return nil
				})
			}
			_ = group.Wait()

			return printOutcomes(cmd.OutOrStdout(), cmd.ErrOrStderr(), outcomes, showStats)
		},
	}

	cmd.Flags().StringVar(&grammarName, "grammar", normalize.GrammarNative, "Path grammar: posix|win32|native")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "Number of paths canonicalized in parallel")
	cmd.Flags().StringVar(&tracePath, "trace", "", "Append a JSONL trace per path to this file")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print filesystem call and cache counters")
	cmd.Flags().BoolVar(&noExpandHome, "no-expand-home", false, "Do not expand a leading ~")

	return cmd
}

func canonicalize(walker *realpath.Walker, g normalize.Grammar, input string, expandHome bool, traces *logging.TraceLogger) realpathOutcome {
	start := time.Now()
	out := realpathOutcome{input: input}

	trace := logging.Trace{
		Timestamp: start.UTC(),
		Op:        logging.OpRealpath,
		Grammar:   g.Name,
		Inputs:    []string{input},
	}
	defer func() {
		trace.DurationUS = time.Since(start).Microseconds()
		if out.err != nil {
			trace.Code = fault.Code(out.err)
			trace.Error = out.err.Error()
		}
		_ = traces.Write(trace)
	}()

	inputs, err := prepareInputs([]string{input}, expandHome)
	if err != nil {
		out.err = err
		return out
	}
	res, err := walker.Walk(inputs[0])
	if err != nil {
		out.err = err
		return out
	}
	if res.Path, err = pathtext.Decode(res.Path); err != nil {
		out.err = err
		return out
	}

	out.res = res
	trace.Result = res.Path
	trace.Stats = &res.Stats
	trace.Splices = res.Links
	return out
}

func printOutcomes(stdout, stderr io.Writer, outcomes []realpathOutcome, showStats bool) error {
	label := color.New(color.FgCyan)
	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", color.RedString(fault.Code(o.err)), o.err)
			continue
		}
		fmt.Fprintln(stdout, o.res.Path)
		if showStats {
			s := o.res.Stats
			label.Fprint(stdout, "  calls ")
			fmt.Fprintf(stdout, "lstat=%d access=%d readlink=%d\n", s.Lstats, s.Accesses, s.Readlinks)
			label.Fprint(stdout, "  cache ")
			fmt.Fprintf(stdout, "known_hard=%d/%d link=%d/%d\n", s.KnownHardHits, s.KnownHard, s.LinkCacheHits, s.CachedLinks)
			label.Fprint(stdout, "  links ")
			fmt.Fprintf(stdout, "%d\n", s.Splices)
			for _, link := range o.res.Links {
				cached := ""
				if link.Cached {
					cached = color.GreenString(" (cached)")
				}
				fmt.Fprintf(stdout, "    %s -> %s%s\n", link.Path, link.Target, cached)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d paths failed", failed, len(outcomes))
	}
	return nil
}
