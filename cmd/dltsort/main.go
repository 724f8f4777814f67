// Command dltsort reconstructs per-ECU power-on lifecycles from one or
// more DLT trace files, clusters them into overall lifecycles by
// wall-clock overlap, and emits a time-ordered merge.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mbehr1/dlt-sort/internal/config"
	"github.com/mbehr1/dlt-sort/internal/diag"
	"github.com/mbehr1/dlt-sort/internal/lifecycle"
	"github.com/mbehr1/dlt-sort/internal/manifest"
	"github.com/mbehr1/dlt-sort/internal/report"
	"github.com/mbehr1/dlt-sort/internal/sortpipe"
)

var (
	version = "dev"
)

func usage() {
	fmt.Fprintf(os.Stderr, `dlt-sort %s

Usage: dlt-sort [options] input-file [input-file ...]

Options:
  -s, --split                write one output file per overall lifecycle
                              instead of a single merged file
  -f, --file <path>          output file name/template (default dlt_sorted.dlt)
  -t, --timestamps           rewrite each message's storage-header timestamp
                              to its reconstructed absolute time
  -v, --verbose              increase diagnostic verbosity (repeatable)
      --progress             print a live ingest progress line to stderr
  -h, --help                 show this help

Additional options:
      --config <path.yaml>   load tunables (trust-logger-time, clock drift
                              detection, ...) from a YAML file
      --log-file <path>      also write diagnostics to a rotated log file
      --manifest-out <path>  write a run manifest (input/output file
                              inventory with SHA-256 digests)
      --manifest-format json|yaml
                              manifest format (default json)
      --report-pdf <path>    also render a one-page PDF run summary
`, version)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dlt-sort", flag.ContinueOnError)
	fs.Usage = usage

	split := boolFlag(fs, "s", "split", false, "write one output file per overall lifecycle")
	outFile := stringFlag(fs, "f", "file", "dlt_sorted.dlt", "output file name/template")
	rewrite := boolFlag(fs, "t", "timestamps", false, "rewrite storage-header timestamps")
	verbose := countFlag(fs, "v", "verbose", "increase diagnostic verbosity")
	progress := fs.Bool("progress", false, "print a live ingest progress line to stderr")
	configPath := fs.String("config", "", "path to a YAML tunables file")
	logFile := fs.String("log-file", "", "also write diagnostics to a rotated log file")
	manifestOut := fs.String("manifest-out", "", "write a run manifest to this path")
	manifestFormat := fs.String("manifest-format", "json", "manifest format: json or yaml")
	reportPDF := fs.String("report-pdf", "", "also render a one-page PDF run summary")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dlt-sort: load config: %v\n", err)
		return 1
	}

	sink := diag.NewSink(os.Stderr, *verbose)
	var rotated io.WriteCloser
	if *logFile != "" {
		rotated = diag.RotatingWriter(*logFile, 25, 5, 7, false)
		sink = diag.NewSink(io.MultiWriter(os.Stderr, rotated), *verbose)
	}
	defer func() {
		if rotated != nil {
			rotated.Close()
		}
	}()

	opts := sortpipe.Options{
		Split:             *split,
		OutputTemplate:    *outFile,
		RewriteTimestamps: *rewrite,
	}
	driver := sortpipe.NewDriver(cfg, opts, sink)
	if *progress {
		driver.Progress = os.Stderr
	}

	// An unopenable input is skipped by the driver but still makes the
	// process exit nonzero once the run completes.
	exitCode := 0
	for _, p := range inputs {
		f, err := os.Open(p)
		if err != nil {
			exitCode = 1
			continue
		}
		f.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, runErr := driver.RunWithContext(ctx, inputs)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "dlt-sort: %v\n", runErr)
		return 1
	}

	outputs := driver.OutputPaths(len(runCtx.Overall))
	summary := buildSummary(runCtx, inputs, outputs)
	snap := driver.Metrics.Snapshot()
	summary.Duration = snap.Duration
	summary.Resyncs = snap.Resyncs

	if *manifestOut != "" {
		m, err := manifest.Build(inputs, outputs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dlt-sort: build manifest: %v\n", err)
			return 1
		}
		summary.PrimaryOutputSha = manifest.PrimaryOutputSha256(m)
		switch strings.ToLower(*manifestFormat) {
		case "yaml":
			err = manifest.SaveYAML(m, *manifestOut)
		default:
			err = manifest.Save(m, *manifestOut)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "dlt-sort: write manifest: %v\n", err)
			return 1
		}
	}

	report.WriteText(os.Stdout, summary)

	if *reportPDF != "" {
		if err := report.SavePDF(summary, *reportPDF, summary.PrimaryOutputSha); err != nil {
			fmt.Fprintf(os.Stderr, "dlt-sort: write report PDF: %v\n", err)
			return 1
		}
	}

	return exitCode
}

func buildSummary(ctx *sortpipe.Context, inputs, outputs []string) report.Summary {
	s := report.Summary{
		GeneratedAt:       time.Now().UTC(),
		InputFiles:        inputs,
		OutputFiles:       outputs,
		OverallLifecycles: len(ctx.Overall),
	}
	for _, b := range ctx.Buckets {
		s.Ecus = append(s.Ecus, report.EcuSummary{
			EcuID:      ecuLabel(b),
			Messages:   len(b.Messages),
			Lifecycles: len(b.Lifecycles),
		})
	}
	for _, ol := range ctx.Overall {
		for _, member := range ol.Members {
			s.MessagesEmitted += len(member.Messages)
		}
	}
	return s
}

func ecuLabel(b *lifecycle.EcuBucket) string {
	return strings.TrimRight(string(b.EcuID[:]), "\x00")
}

func boolFlag(fs *flag.FlagSet, short, long string, def bool, usage string) *bool {
	v := new(bool)
	fs.BoolVar(v, short, def, usage)
	fs.BoolVar(v, long, def, usage)
	return v
}

func stringFlag(fs *flag.FlagSet, short, long, def, usage string) *string {
	v := new(string)
	fs.StringVar(v, short, def, usage)
	fs.StringVar(v, long, def, usage)
	return v
}

func countFlag(fs *flag.FlagSet, short, long, usage string) *int {
	v := new(int)
	inc := func(string) error {
		*v++
		return nil
	}
	fs.BoolFunc(short, usage, inc)
	fs.BoolFunc(long, usage, inc)
	return v
}
