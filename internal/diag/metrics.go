package diag

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics accumulates byte/message/resync counters across a run so a batch
// over many input files can report aggregate throughput and, once emission
// starts, ingest-vs-output message counts. Counters are atomic so decoders
// running against several input files can update them without a shared
// lock; start/end timestamps use a mutex since they're read-modify-write
// pairs guarded together.
type Metrics struct {
	mu    sync.Mutex
	start time.Time
	end   time.Time

	bytes       atomic.Int64
	totalBytes  atomic.Int64
	messagesIn  atomic.Int64
	messagesOut atomic.Int64
	resyncs     atomic.Int64
}

// NewMetrics returns an idle Metrics recorder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Start marks the beginning of measurement, idempotently.
func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

// Stop marks the end of measurement, idempotently.
func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddMessage records one decoded input record of the given on-wire size.
func (m *Metrics) AddMessage(size int64) {
	if size <= 0 {
		return
	}
	m.bytes.Add(size)
	m.messagesIn.Add(1)
}

// AddBytes records raw input bytes consumed that did not become a message
// (skipped resync bytes, trailing garbage).
func (m *Metrics) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	m.bytes.Add(n)
}

// AddEmitted records n messages written to an output file, letting a run
// summary compare messages read against messages emitted (dropped or
// still-buffered messages show up as a gap between the two).
func (m *Metrics) AddEmitted(n int64) {
	if n <= 0 {
		return
	}
	m.messagesOut.Add(n)
}

// IncResync counts one resynchronization event.
func (m *Metrics) IncResync() {
	m.resyncs.Add(1)
}

// SetTotalBytes records the total expected input size, for completion
// percentage reporting.
func (m *Metrics) SetTotalBytes(total int64) {
	if total < 0 {
		total = 0
	}
	m.totalBytes.Store(total)
}

// Snapshot returns an immutable view of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	duration := m.elapsedLocked()
	m.mu.Unlock()
	return Snapshot{
		Duration:   duration,
		Bytes:      m.bytes.Load(),
		TotalBytes: m.totalBytes.Load(),
		Messages:   m.messagesIn.Load(),
		Emitted:    m.messagesOut.Load(),
		Resyncs:    m.resyncs.Load(),
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

// Snapshot is a point-in-time copy of a Metrics recorder's counters.
type Snapshot struct {
	Duration   time.Duration
	Bytes      int64
	TotalBytes int64
	Messages   int64
	Emitted    int64
	Resyncs    int64
}

// ThroughputBytesPerSecond returns the average input processing rate.
func (s Snapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

// Completion returns the fraction of TotalBytes processed, clamped to [0,1].
func (s Snapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	ratio := float64(s.Bytes) / float64(s.TotalBytes)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

// formatProgressLine renders one line of the ingest-phase progress display.
// It reports input bytes consumed, not messages emitted, since emission
// only starts after ingest and clustering finish for the whole batch.
func formatProgressLine(s Snapshot) string {
	throughput := s.ThroughputBytesPerSecond() / (1024 * 1024)
	if s.TotalBytes > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("ingest: %6.2f%% (%s / %s) %.2f MiB/s, %d resyncs",
			pct, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), throughput, s.Resyncs)
	}
	return fmt.Sprintf("ingest: %s %.2f MiB/s, %d resyncs", FormatBytes(s.Bytes), throughput, s.Resyncs)
}

// StartProgressPrinter starts a background ticker that renders m's snapshot
// to w on interval, returning a stop function that blocks until the printer
// has finished and clears its line. Callers should invoke the returned
// function once ingest of all input files has finished; emission does not
// move these counters, so running it past ingest just repeats the last line.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
