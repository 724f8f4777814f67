// Package sortpipe orchestrates ingest, per-ECU lifecycle reconstruction,
// cross-ECU clustering and k-way emission across one or more input files.
package sortpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mbehr1/dlt-sort/internal/config"
	"github.com/mbehr1/dlt-sort/internal/diag"
	"github.com/mbehr1/dlt-sort/internal/dlt"
	"github.com/mbehr1/dlt-sort/internal/emit"
	"github.com/mbehr1/dlt-sort/internal/lifecycle"
	"github.com/mbehr1/dlt-sort/internal/pipeline"
)

// Context holds the run's accumulated state explicitly, replacing the
// source's process-wide map_ecus/list_olcs globals (spec §9's Open
// Question on shared mutable process-wide maps). A driver constructs one
// per run and drops it on return.
type Context struct {
	Buckets map[uint32]*lifecycle.EcuBucket
	Overall []*lifecycle.OverallLifecycle
}

// NewContext returns an empty run context.
func NewContext() *Context {
	return &Context{Buckets: make(map[uint32]*lifecycle.EcuBucket)}
}

func (c *Context) bucketFor(ecu [4]byte) *lifecycle.EcuBucket {
	key := dlt.EcuKey(ecu)
	b, ok := c.Buckets[key]
	if !ok {
		b = &lifecycle.EcuBucket{EcuID: ecu}
		c.Buckets[key] = b
	}
	return b
}

// Options configures a Driver's behavior, mirroring the CLI flags of
// spec §6.
type Options struct {
	Split             bool
	OutputTemplate    string
	RewriteTimestamps bool
}

// Driver runs the full pipeline: ingest -> per-ECU lifecycling -> grouping
// -> emission.
type Driver struct {
	Cfg     config.Config
	Opts    Options
	Sink    *diag.Sink
	Metrics *diag.Metrics

	// Progress, if non-nil, receives a periodically updated ingest-progress
	// line for the duration of the ingest phase (see RunWithContext).
	Progress io.Writer
}

// NewDriver constructs a Driver with the given tunables and options.
func NewDriver(cfg config.Config, opts Options, sink *diag.Sink) *Driver {
	return &Driver{Cfg: cfg, Opts: opts, Sink: sink, Metrics: diag.NewMetrics()}
}

// IngestFile decodes path and buckets its messages by ECU into ctx.
// Failure to open the file is returned (fatal for that file, non-fatal for
// the run); a decode error mid-stream (unsync/truncated) stops ingesting
// this file but keeps whatever was parsed and returns nil, matching
// spec §5's "malformed input file yields partial results but does not
// abort the run".
func (d *Driver) IngestFile(ctx *Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := dlt.NewDecoder(f, path, d.Cfg, d.Sink)
	dec.SetMetrics(d.Metrics)

	for {
		msg, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			d.Sink.Warnf(0, "%s: stopping ingest: %v", path, err)
			return nil
		}
		bucket := ctx.bucketFor(msg.EcuID)
		bucket.Messages = append(bucket.Messages, msg)
	}
}

// Process runs PerEcuPipeline over every bucket, then clusters the
// resulting lifecycles into ctx.Overall via OverallGrouper. Buckets are
// visited in ascending ECU-key order rather than ctx.Buckets' native map
// order (randomized by Go) so that GroupOverallLifecycles, which is
// order-dependent, produces the same clustering and output on every run
// over the same input. This mirrors the original's std::map<uint32_t,...>
// ascending-key iteration.
func (d *Driver) Process(ctx *Context) {
	buckets := make([]*lifecycle.EcuBucket, 0, len(ctx.Buckets))
	for _, b := range ctx.Buckets {
		if len(b.Messages) == 0 {
			continue
		}
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return dlt.EcuKey(buckets[i].EcuID) < dlt.EcuKey(buckets[j].EcuID)
	})
	for _, b := range buckets {
		pipeline.Run(b, d.Cfg)
	}
	ctx.Overall = pipeline.GroupOverallLifecycles(buckets)
}

// OutputPaths returns the file names EmitAll will write for a run whose
// context holds overallCount overall lifecycles, for manifest/report use
// after a run completes.
func (d *Driver) OutputPaths(overallCount int) []string {
	if !d.Opts.Split {
		return []string{OutputFileName(0, d.Opts.OutputTemplate)}
	}
	paths := make([]string, overallCount)
	for i := range paths {
		paths[i] = OutputFileName(i+1, d.Opts.OutputTemplate)
	}
	return paths
}

// EmitAll writes ctx.Overall to one or more output files per d.Opts. With
// Split, one file is written per overall lifecycle, numbered from 1;
// otherwise every overall lifecycle is written, in cluster-begin order,
// into a single file named with sequence 0 (no number inserted).
func (d *Driver) EmitAll(ctx *Context) error {
	if !d.Opts.Split {
		name := OutputFileName(0, d.Opts.OutputTemplate)
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		defer f.Close()
		for _, ol := range ctx.Overall {
			if err := emit.Emit(f, ol, d.Opts.RewriteTimestamps); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
			d.Metrics.AddEmitted(overallMessageCount(ol))
		}
		return nil
	}

	for i, ol := range ctx.Overall {
		name := OutputFileName(i+1, d.Opts.OutputTemplate)
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		err = emit.Emit(f, ol, d.Opts.RewriteTimestamps)
		if err == nil {
			d.Metrics.AddEmitted(overallMessageCount(ol))
		}
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if closeErr != nil {
			return fmt.Errorf("close %s: %w", name, closeErr)
		}
	}
	return nil
}

// Run ingests every input file into a shared context, runs the pipeline,
// and emits the result. It stops early only if ctx is canceled between
// files; a single file's IoOpenFailed is reported and the next file is
// attempted, matching spec §7's error taxonomy.
func (d *Driver) Run(ctx context.Context, paths []string) error {
	_, err := d.RunWithContext(ctx, paths)
	return err
}

// RunWithContext behaves like Run but also returns the populated Context,
// letting a caller (the CLI's report/manifest wiring) inspect per-ECU and
// per-overall-lifecycle statistics after the run completes.
func (d *Driver) RunWithContext(ctx context.Context, paths []string) (*Context, error) {
	d.Metrics.Start()
	defer d.Metrics.Stop()
	d.Metrics.SetTotalBytes(totalFileSize(paths))

	var stopProgress func()
	if d.Progress != nil {
		stopProgress = diag.StartProgressPrinter(d.Progress, d.Metrics, 500*time.Millisecond)
	}

	run := NewContext()
	for _, path := range paths {
		select {
		case <-ctx.Done():
			if stopProgress != nil {
				stopProgress()
			}
			return run, ctx.Err()
		default:
		}
		if err := d.IngestFile(run, path); err != nil {
			d.Sink.Warnf(0, "%v", err)
			continue
		}
	}
	if stopProgress != nil {
		stopProgress()
	}

	d.Process(run)
	return run, d.EmitAll(run)
}

// overallMessageCount sums the message counts of an overall lifecycle's
// member lifecycles, for the emitted-message counter.
func overallMessageCount(ol *lifecycle.OverallLifecycle) int64 {
	var n int64
	for _, member := range ol.Members {
		n += int64(len(member.Messages))
	}
	return n
}

// totalFileSize sums the sizes of paths that stat successfully, for the
// progress printer's completion percentage. Files that fail to stat (they
// will fail to open too, and IngestFile reports that) are simply excluded.
func totalFileSize(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}
	}
	return total
}
