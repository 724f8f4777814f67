package lifecycle

import (
	"math"
	"testing"

	"github.com/mbehr1/dlt-sort/internal/dlt"
)

// syntheticMember builds a Lifecycle whose messages were generated at an
// exact clock-skew of trueSkew relative to the logger: recv_time =
// begin + trueSkew*tmsp*100us, for tmsp in ticks.
func syntheticMember(begin int64, trueSkew float64, ticks []uint32) *Lifecycle {
	lc := &Lifecycle{UsecBegin: begin, UsecEnd: begin, ClockSkew: 1.0}
	for _, t := range ticks {
		recv := begin + int64(trueSkew*float64(t)*100)
		lc.Messages = append(lc.Messages, &dlt.Message{RecvUsec: recv, Tmsp: t})
		if recv > lc.UsecEnd {
			lc.UsecEnd = recv
		}
	}
	return lc
}

func TestSolveSkewRecoversNoDrift(t *testing.T) {
	member := syntheticMember(1_000_000, 1.0, []uint32{0, 100, 500, 1000, 5000})
	skew, maxLatency := SolveSkew([]*Lifecycle{member})

	if math.Abs(skew-1.0) > 0.05 {
		t.Fatalf("skew = %v, want close to 1.0", skew)
	}
	if maxLatency < 0 {
		t.Fatalf("maxLatency = %d, must be non-negative for a feasible solution", maxLatency)
	}
}

func TestSolveSkewFeasibleWithinBracket(t *testing.T) {
	// Generated at 1.1x logger rate: an ECU clock running fast.
	member := syntheticMember(2_000_000, 1.1, []uint32{0, 200, 800, 3000})
	skew, maxLatency := SolveSkew([]*Lifecycle{member})

	if skew < 0.5 || skew > 1.5 {
		t.Fatalf("skew = %v out of search bracket", skew)
	}
	if maxLatency < 0 {
		t.Fatalf("maxLatency = %d, want non-negative", maxLatency)
	}
}

func TestSolveSkewRecomputesUsecBeginFromResolvedSkew(t *testing.T) {
	const trueSkew = 1.2
	const trueBegin = int64(5_000_000)
	ticks := []uint32{100, 500, 2000, 8000}

	lc := &Lifecycle{ClockSkew: 1.0}
	// Seed UsecBegin the way discovery does at skew 1.0 (Lifecycle.New's
	// formula, from the first message alone): with the true skew being
	// 1.2, this seed does not equal the true begin. If SolveSkew leaves
	// UsecBegin untouched instead of recomputing it from the resolved
	// skew, this stays wrong.
	first := ticks[0]
	firstRecv := trueBegin + int64(trueSkew*float64(first)*100)
	lc.UsecBegin = firstRecv - int64(first)*100
	lc.UsecEnd = lc.UsecBegin

	for _, tick := range ticks {
		recv := trueBegin + int64(trueSkew*float64(tick)*100)
		lc.Messages = append(lc.Messages, &dlt.Message{RecvUsec: recv, Tmsp: tick})
		if tick > lc.MaxTmsp {
			lc.MaxTmsp = tick
		}
	}

	wrongBegin := lc.UsecBegin
	skew, _ := SolveSkew([]*Lifecycle{lc})

	if math.Abs(skew-trueSkew) > 0.05 {
		t.Fatalf("skew = %v, want close to %v", skew, trueSkew)
	}
	if lc.UsecBegin == wrongBegin {
		t.Fatalf("UsecBegin (%d) was not recomputed from the resolved skew", lc.UsecBegin)
	}
	if diff := lc.UsecBegin - trueBegin; diff < -5000 || diff > 5000 {
		t.Fatalf("UsecBegin = %d, want close to true begin %d", lc.UsecBegin, trueBegin)
	}
	wantEnd := lc.UsecBegin + int64(float64(lc.MaxTmsp)*trueSkew*100)
	if diff := lc.UsecEnd - wantEnd; diff < -5000 || diff > 5000 {
		t.Fatalf("UsecEnd = %d, want close to %d", lc.UsecEnd, wantEnd)
	}
}

func TestSolveSkewNoMembersReturnsIdentity(t *testing.T) {
	skew, maxLatency := SolveSkew(nil)
	if skew != 1.0 || maxLatency != 0 {
		t.Fatalf("SolveSkew(nil) = (%v, %d), want (1.0, 0)", skew, maxLatency)
	}
}

func TestScaleTmspIdentity(t *testing.T) {
	got, ok := ScaleTmsp(1000, Q15One)
	if !ok {
		t.Fatalf("ScaleTmsp(1000, 1.0) rejected, want accepted")
	}
	if got != 1000 {
		t.Fatalf("ScaleTmsp(1000, 1.0) = %d, want 1000", got)
	}
}

func TestScaleTmspHalf(t *testing.T) {
	m := int32(0.5 * Q15One)
	got, ok := ScaleTmsp(1000, m)
	if !ok {
		t.Fatalf("ScaleTmsp(1000, 0.5) rejected, want accepted")
	}
	if got < 490 || got > 500 {
		t.Fatalf("ScaleTmsp(1000, 0.5) = %d, want ~500", got)
	}
}

func TestScaleTmspRejectsUpperBitsSet(t *testing.T) {
	if _, ok := ScaleTmsp(1<<17, Q15One); ok {
		t.Fatalf("ScaleTmsp(1<<17, ...) accepted, want rejected (upper 15 bits set)")
	}
	if _, ok := ScaleTmsp((1<<17)-1, Q15One); !ok {
		t.Fatalf("ScaleTmsp((1<<17)-1, ...) rejected, want accepted (below overflow threshold)")
	}
}
