// Package pipeline builds per-ECU lifecycles from a bucket of decoded
// messages and clusters lifecycles across ECUs into overall lifecycles.
package pipeline

import (
	"sort"

	"github.com/mbehr1/dlt-sort/internal/config"
	"github.com/mbehr1/dlt-sort/internal/lifecycle"
)

// DetermineLifecycles seeds bucket.Lifecycles from bucket.Messages using
// most-recently-used-lifecycle-first discovery: each message is first
// offered to the lifecycle that most recently accepted one, then to every
// other existing lifecycle, and only creates a new lifecycle if none fit.
// bucket.Lifecycles must be empty and bucket.Messages non-empty.
func DetermineLifecycles(bucket *lifecycle.EcuBucket, cfg config.Config) {
	if len(bucket.Messages) == 0 {
		return
	}

	cur := lifecycle.New(bucket.Messages[0])
	bucket.Lifecycles = append(bucket.Lifecycles, cur)

	for _, m := range bucket.Messages[1:] {
		if cur.FitsIn(m, cfg) {
			continue
		}
		foundOther := false
		for _, lc := range bucket.Lifecycles {
			if lc == cur {
				continue
			}
			if lc.FitsIn(m, cfg) {
				cur = lc
				foundOther = true
				break
			}
		}
		if !foundOther {
			cur = lifecycle.New(m)
			bucket.Lifecycles = append(bucket.Lifecycles, cur)
		}
	}
}

// SortMessages orders each lifecycle's messages by ascending tmsp, stably.
func SortMessages(bucket *lifecycle.EcuBucket) {
	for _, lc := range bucket.Lifecycles {
		msgs := lc.Messages
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].Tmsp < msgs[j].Tmsp
		})
	}
}

// MergeLifecycles repeatedly scans bucket.Lifecycles for the first
// intersecting pair and merges it, restarting the whole scan from the
// beginning after every merge, until a full pass finds none left to merge.
// This mirrors merge_lcs's reset-to-start-after-erase behavior rather than
// resuming the scan where it left off; preserved intentionally (see
// DESIGN.md Open Question 2), not optimized to resume mid-scan.
func MergeLifecycles(bucket *lifecycle.EcuBucket) {
	for {
		merged := false
		for i := 0; i < len(bucket.Lifecycles) && !merged; i++ {
			for j := i + 1; j < len(bucket.Lifecycles) && !merged; j++ {
				if bucket.Lifecycles[i].ExpandIfIntersects(bucket.Lifecycles[j]) {
					bucket.Lifecycles = append(bucket.Lifecycles[:j], bucket.Lifecycles[j+1:]...)
					merged = true
				}
			}
		}
		if !merged {
			return
		}
	}
}

// SolveSkews runs the SkewSolver over each of bucket's finalized lifecycles
// independently. SolveSkew itself writes the recovered factor into
// Lifecycle.ClockSkew and recomputes UsecBegin/UsecEnd from it, so this
// must run before GroupOverallLifecycles, which reads those bounds. It is
// a no-op unless cfg.UseClockDriftDetection is set.
func SolveSkews(bucket *lifecycle.EcuBucket, cfg config.Config) {
	if !cfg.UseClockDriftDetection {
		return
	}
	for _, lc := range bucket.Lifecycles {
		lifecycle.SolveSkew([]*lifecycle.Lifecycle{lc})
	}
}

// Run applies DetermineLifecycles, MergeLifecycles, SortMessages and
// SolveSkews in sequence: the full per-ECU pipeline of spec §4.3. Sort
// must run after merge: ExpandIfIntersects splices two already-sorted
// message slices together without re-sorting, so a lifecycle absorbed by
// merge is left in non-monotonic tmsp order until this pass re-sorts it.
func Run(bucket *lifecycle.EcuBucket, cfg config.Config) {
	DetermineLifecycles(bucket, cfg)
	MergeLifecycles(bucket)
	SortMessages(bucket)
	SolveSkews(bucket, cfg)
}
