package pipeline

import (
	"sort"

	"github.com/mbehr1/dlt-sort/internal/lifecycle"
)

// GroupOverallLifecycles clusters lifecycles, possibly from different ECUs,
// by wall-clock interval intersection: an O(n^2) single pass over an
// accumulating list of clusters, adding each lifecycle to the first
// existing cluster it intersects (front if it predates the cluster's
// begin, back otherwise) or starting a new cluster if none intersect.
// Preserved as best-effort per spec §9's Open Question: two lifecycles
// that both intersect a third but not each other may or may not land in
// the same cluster depending on iteration order; there is no union-find
// pass to make that outcome order-independent. The result is sorted by
// UsecBegin.
func GroupOverallLifecycles(buckets []*lifecycle.EcuBucket) []*lifecycle.OverallLifecycle {
	var overall []*lifecycle.OverallLifecycle

	for _, bucket := range buckets {
		for _, lc := range bucket.Lifecycles {
			found := false
			for _, o := range overall {
				if expandOverallIfIntersects(o, lc) {
					found = true
					break
				}
			}
			if !found {
				overall = append([]*lifecycle.OverallLifecycle{{
					UsecBegin: lc.UsecBegin,
					UsecEnd:   lc.UsecEnd,
					Members:   []*lifecycle.Lifecycle{lc},
				}}, overall...)
			}
		}
	}

	sort.Slice(overall, func(i, j int) bool {
		return overall[i].UsecBegin < overall[j].UsecBegin
	})
	return overall
}

// expandOverallIfIntersects mirrors OverallLC::expand_if_intersects:
// pushes lc to the front of o.Members when it predates o's current begin,
// to the back otherwise, and widens o's bounds to cover it.
func expandOverallIfIntersects(o *lifecycle.OverallLifecycle, lc *lifecycle.Lifecycle) bool {
	if lc.UsecBegin > o.UsecEnd {
		return false
	}
	if lc.UsecEnd < o.UsecBegin {
		return false
	}
	if lc.UsecBegin < o.UsecBegin {
		o.UsecBegin = lc.UsecBegin
		o.Members = append([]*lifecycle.Lifecycle{lc}, o.Members...)
	} else {
		o.Members = append(o.Members, lc)
	}
	if lc.UsecEnd > o.UsecEnd {
		o.UsecEnd = lc.UsecEnd
	}
	return true
}
