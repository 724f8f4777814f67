package lifecycle

import "math"

// Q15Shift/Q15One define the fixed-point representation used for the
// clock-skew factor: a skew of 1.0 is represented as Q15One.
const (
	Q15Shift = 15
	Q15One   = 1 << Q15Shift

	// tmspOverflowMask covers the upper 15 bits of a 32-bit tmsp value
	// (bits 17-31). ScaleTmsp rejects any tmsp with a bit set there.
	tmspOverflowMask = 0xFFFE0000
)

// ScaleTmsp applies a Q15 fixed-point skew factor m (fixed-point 1.0 ==
// Q15One) to a raw tmsp tick count, computing a*m>>15. It is shared between
// SolveSkew and the k-way emitter so both compute skew-adjusted times
// identically instead of drifting apart through independent floating-point
// rounding. It rejects (returns ok=false for) any tmsp whose upper 15 bits
// are set, since the fixed-point product is only defined for the remaining
// range.
func ScaleTmsp(tmsp uint32, m int32) (int64, bool) {
	if tmsp&tmspOverflowMask != 0 {
		return 0, false
	}
	return (int64(tmsp) * int64(m)) >> Q15Shift, true
}

// SkewToFixed converts a float64 skew factor to its Q15 fixed-point form,
// rounding to the nearest representable value rather than truncating.
func SkewToFixed(skew float64) int32 {
	return int32(math.Round(skew * Q15One))
}

// evaluateLifecycleAtSkew recomputes lc's begin time under a candidate
// fixed-point skew factor m as B(k) = min over lc's tmsp-bearing messages of
// (recv_usec - k*tmsp*100), then returns the worst-case latency of every
// such message relative to that recomputed begin. Because begin is defined
// as the minimum, every considered message's latency is non-negative by
// construction; ok is false only when lc has no message eligible to define
// a begin at all (every message has tmsp==0 or a tmsp ScaleTmsp rejects).
func evaluateLifecycleAtSkew(lc *Lifecycle, m int32) (begin int64, worstLatency int64, ok bool) {
	haveBegin := false
	for _, msg := range lc.Messages {
		if msg.Tmsp == 0 {
			continue
		}
		scaled, valid := ScaleTmsp(msg.Tmsp, m)
		if !valid {
			continue
		}
		candidate := msg.RecvUsec - scaled*100
		if !haveBegin || candidate < begin {
			begin = candidate
			haveBegin = true
		}
	}
	if !haveBegin {
		return 0, 0, false
	}

	for _, msg := range lc.Messages {
		if msg.Tmsp == 0 {
			continue
		}
		scaled, valid := ScaleTmsp(msg.Tmsp, m)
		if !valid {
			continue
		}
		lat := msg.RecvUsec - (begin + scaled*100)
		if lat > worstLatency {
			worstLatency = lat
		}
	}
	return begin, worstLatency, true
}

// SolveSkew estimates a single clock-skew factor shared by every lifecycle
// in members by two-sided binary narrowing of k in [0.5, 1.5],
// run for up to 20 iterations. Starting from k*=1.0 with L*=L(1.0), each
// iteration probes k_L=(k*+k_min)/2 and k_R=(k*+k_max)/2: at each probe,
// every member's begin time B(k) is recomputed from scratch (not held at
// its skew-1.0 value) so latency is always measured against the correct
// baseline for that candidate k. A probe with no member producing a usable
// begin (every message excluded) contracts the bound on its own side; a
// probe that improves on L* replaces (k*, L*) and contracts the opposite
// bound toward the superseded k*; a no-improvement probe contracts the
// near bound to the probe. Once k* is chosen, it is written into every
// member's ClockSkew and each member's UsecBegin/UsecEnd is recomputed
// from B(k*) and its MaxTmsp, per spec. Members are left untouched if 1.0
// itself is not evaluable for any of them.
func SolveSkew(members []*Lifecycle) (float64, int64) {
	if len(members) == 0 {
		return 1.0, 0
	}

	evaluate := func(k float64) (int64, bool) {
		m := SkewToFixed(k)
		var worst int64
		any := false
		for _, lc := range members {
			_, lat, ok := evaluateLifecycleAtSkew(lc, m)
			if !ok {
				continue
			}
			if !any || lat > worst {
				worst = lat
				any = true
			}
		}
		return worst, any
	}

	kMin, kMax := 0.5, 1.5
	kStar := 1.0
	lStar, feasible := evaluate(kStar)
	if !feasible {
		return 1.0, 0
	}

	const iterations = 20
	for i := 0; i < iterations; i++ {
		kL := (kStar + kMin) / 2
		latL, feasL := evaluate(kL)
		switch {
		case !feasL:
			kMin = kL
		case latL < lStar:
			kMax = kStar
			kStar, lStar = kL, latL
		default:
			kMin = kL
		}

		kR := (kStar + kMax) / 2
		latR, feasR := evaluate(kR)
		switch {
		case !feasR:
			kMax = kR
		case latR < lStar:
			kMin = kStar
			kStar, lStar = kR, latR
		default:
			kMax = kR
		}
	}

	finalM := SkewToFixed(kStar)
	for _, lc := range members {
		lc.ClockSkew = kStar
		begin, _, ok := evaluateLifecycleAtSkew(lc, finalM)
		if !ok {
			continue
		}
		lc.UsecBegin = begin
		if scaled, ok := ScaleTmsp(lc.MaxTmsp, finalM); ok {
			lc.UsecEnd = begin + scaled*100
		} else {
			lc.UsecEnd = begin
		}
	}

	return kStar, lStar
}
