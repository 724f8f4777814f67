// Package lifecycle reconstructs per-ECU power-on lifecycles from the noisy
// wall-clock receive times and reliable relative timestamps carried by DLT
// messages, and estimates per-lifecycle clock skew against the logger.
package lifecycle

import (
	"github.com/mbehr1/dlt-sort/internal/config"
	"github.com/mbehr1/dlt-sort/internal/dlt"
)

// Lifecycle is one power-on of one ECU, reconstructed from the messages
// admitted into it. UsecBegin/UsecEnd bound the lifecycle on the logger's
// wall clock; both are inclusive.
type Lifecycle struct {
	UsecBegin      int64
	UsecEnd        int64
	MinTmsp        uint32
	MaxTmsp        uint32
	RelOffsetValid bool

	// ClockSkew is the ECU-clock-to-logger-clock rate ratio; 1.0 means no
	// drift. It is only meaningful after SolveSkew has run.
	ClockSkew float64

	// Messages holds borrowed pointers into the owning EcuBucket's message
	// slice — never a second owning copy.
	Messages []*dlt.Message
}

// New seeds a Lifecycle from m, per spec scenario 2/3: a tmsp=0 seed
// collapses begin/end to the receive time with RelOffsetValid=false; a
// nonzero tmsp seed pulls begin back by tmsp*100us.
func New(m *dlt.Message) *Lifecycle {
	lc := &Lifecycle{ClockSkew: 1.0}
	lc.UsecBegin = m.RecvUsec
	lc.UsecEnd = m.RecvUsec
	if m.Tmsp != 0 {
		lc.MinTmsp = m.Tmsp
		lc.MaxTmsp = m.Tmsp
		lc.UsecBegin -= int64(m.Tmsp) * 100
		lc.RelOffsetValid = true
	}
	lc.Messages = append(lc.Messages, m)
	return lc
}

// FitsIn implements the admit-or-reject contract of spec §4.2. It never
// mutates lc when it returns false. When m.Tmsp == 0 it returns true
// without attaching m: such messages are unreliable lifecycle boundaries
// and are silently dropped from the output stream (spec §9, preserved
// intentionally from the original implementation).
func (lc *Lifecycle) FitsIn(m *dlt.Message, cfg config.Config) bool {
	if m.Tmsp == 0 {
		return true
	}

	x := int64(m.Tmsp) * 100
	r := m.RecvUsec
	s := r - x  // candidate t0 if m belonged here
	tx := s + x // == r; candidate original wall-clock of m

	primary := s >= lc.UsecBegin && s <= lc.UsecEnd
	secondary := false
	if !primary {
		secondary = s <= lc.UsecEnd && tx >= lc.UsecBegin
		if secondary && cfg.UseMaxEarlierSanityCheck {
			newBegin := s
			if newBegin < lc.UsecBegin && lc.UsecBegin-newBegin > cfg.MaxEarlierBeginUsec {
				// Message is consumed (reported accepted so callers don't
				// retry it elsewhere) but not attached to this lifecycle.
				return true
			}
		}
	}
	if !primary && !secondary {
		return false
	}

	if s < lc.UsecBegin {
		lc.UsecBegin = s
	}
	if cfg.TrustLoggerTime {
		if r > lc.UsecEnd {
			lc.UsecEnd = r
		}
	} else {
		if lc.UsecBegin+x > lc.UsecEnd {
			lc.UsecEnd = lc.UsecBegin + x
		}
	}

	lc.Messages = append(lc.Messages, m)
	if !lc.RelOffsetValid {
		lc.MinTmsp = m.Tmsp
		lc.RelOffsetValid = true
	} else if m.Tmsp < lc.MinTmsp {
		lc.MinTmsp = m.Tmsp
	}
	if m.Tmsp > lc.MaxTmsp {
		lc.MaxTmsp = m.Tmsp
	}
	return true
}

// Intersects reports whether lc and other's wall-clock windows overlap.
func (lc *Lifecycle) Intersects(other *Lifecycle) bool {
	if other.UsecBegin > lc.UsecEnd {
		return false
	}
	if other.UsecEnd < lc.UsecBegin {
		return false
	}
	return true
}

// ExpandIfIntersects absorbs other into lc when their windows intersect,
// unioning bounds and min/max tmsp and splicing in other's messages (sort
// order is lost). It reports whether the absorption happened.
func (lc *Lifecycle) ExpandIfIntersects(other *Lifecycle) bool {
	if !lc.Intersects(other) {
		return false
	}
	if other.UsecBegin < lc.UsecBegin {
		lc.UsecBegin = other.UsecBegin
	}
	if other.UsecEnd > lc.UsecEnd {
		lc.UsecEnd = other.UsecEnd
	}
	if other.RelOffsetValid && (!lc.RelOffsetValid || other.MinTmsp < lc.MinTmsp) {
		lc.MinTmsp = other.MinTmsp
		lc.RelOffsetValid = true
	}
	if other.MaxTmsp > lc.MaxTmsp {
		lc.MaxTmsp = other.MaxTmsp
	}
	lc.Messages = append(lc.Messages, other.Messages...)
	other.Messages = nil
	return true
}

// EcuBucket is the sole owner of the Messages parsed for one ECU; its
// Lifecycles hold borrowed references into Messages, never a second
// owning copy (spec §9's ownership rearchitecture).
type EcuBucket struct {
	EcuID      [4]byte
	Messages   []*dlt.Message
	Lifecycles []*Lifecycle
}

// OverallLifecycle groups Lifecycles, possibly from different ECUs, whose
// wall-clock intervals transitively intersect.
type OverallLifecycle struct {
	UsecBegin int64
	UsecEnd   int64
	Members   []*Lifecycle
}
