// Package report renders a run's outcome as plain text, and optionally as
// a one-page PDF with an embedded QR code identifying the primary output.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// EcuSummary describes the lifecycle reconstruction outcome for one ECU.
type EcuSummary struct {
	EcuID      string `json:"ecuId"`
	Messages   int    `json:"messages"`
	Lifecycles int    `json:"lifecycles"`
}

// Summary is the top-level run report, replacing the teacher's
// rules.AcceptanceReport for this domain's single verb.
type Summary struct {
	GeneratedAt       time.Time     `json:"generatedAt"`
	InputFiles        []string      `json:"inputFiles"`
	OutputFiles       []string      `json:"outputFiles"`
	Ecus              []EcuSummary  `json:"ecus"`
	OverallLifecycles int           `json:"overallLifecycles"`
	MessagesEmitted   int           `json:"messagesEmitted"`
	Resyncs           int64         `json:"resyncs"`
	Duration          time.Duration `json:"durationNs"`
	PrimaryOutputSha  string        `json:"primaryOutputSha256,omitempty"`
}

// SaveJSON writes rep to out as indented JSON.
func SaveJSON(rep Summary, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

// WriteText renders rep as a human-readable run summary, the always-on
// counterpart to the optional PDF.
func WriteText(w io.Writer, rep Summary) {
	fmt.Fprintf(w, "dlt-sort run summary (%s)\n", rep.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  inputs:  %d file(s)\n", len(rep.InputFiles))
	for _, p := range rep.InputFiles {
		fmt.Fprintf(w, "    - %s\n", p)
	}
	fmt.Fprintf(w, "  outputs: %d file(s)\n", len(rep.OutputFiles))
	for _, p := range rep.OutputFiles {
		fmt.Fprintf(w, "    - %s\n", p)
	}
	fmt.Fprintf(w, "  ECUs: %d, overall lifecycles: %d, messages emitted: %d, resyncs: %d\n",
		len(rep.Ecus), rep.OverallLifecycles, rep.MessagesEmitted, rep.Resyncs)
	for _, e := range rep.Ecus {
		fmt.Fprintf(w, "    %-8s %6d messages, %3d lifecycle(s)\n", e.EcuID, e.Messages, e.Lifecycles)
	}
	fmt.Fprintf(w, "  duration: %s\n", rep.Duration)
	if rep.PrimaryOutputSha != "" {
		fmt.Fprintf(w, "  primary output sha256: %s\n", rep.PrimaryOutputSha)
	}
}
