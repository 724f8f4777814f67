// Package emit implements the k-way, time-ordered merge of the message
// lists belonging to an overall lifecycle's member lifecycles into a
// single output stream.
package emit

import (
	"io"

	"github.com/mbehr1/dlt-sort/internal/dlt"
	"github.com/mbehr1/dlt-sort/internal/lifecycle"
)

// cursor tracks the current read position within one member lifecycle's
// already-tmsp-sorted message list, plus the incrementally maintained
// absolute time of the message it currently points at.
type cursor struct {
	messages  []*dlt.Message
	pos       int
	minTime   int64
	usecBegin int64
	skewFixed int32 // Q15 fixed-point clock-skew factor
}

func (c *cursor) exhausted() bool {
	return c.pos >= len(c.messages)
}

func (c *cursor) current() *dlt.Message {
	return c.messages[c.pos]
}

// absTime reconstructs a message's absolute time as
// usec_begin + tmsp*100*skew, using the Q15 fixed-point helper shared with
// SolveSkew. A tmsp ScaleTmsp rejects as overflowing (its upper 15 bits
// set) falls back to an unscaled usec_begin + tmsp*100: emission must still
// place the message somewhere, and the raw offset is the best available
// estimate once the skew-adjusted product is out of range.
func (c *cursor) absTime(tmsp uint32) int64 {
	scaled, ok := lifecycle.ScaleTmsp(tmsp, c.skewFixed)
	if !ok {
		return c.usecBegin + int64(tmsp)*100
	}
	return c.usecBegin + scaled*100
}

func newCursor(lc *lifecycle.Lifecycle) cursor {
	skew := lc.ClockSkew
	if skew == 0 {
		skew = 1.0
	}
	c := cursor{messages: lc.Messages, usecBegin: lc.UsecBegin, skewFixed: lifecycle.SkewToFixed(skew)}
	if len(c.messages) > 0 {
		c.minTime = c.absTime(c.messages[0].Tmsp)
	}
	return c
}

// Emit drains overall's member lifecycles in time order and writes each
// message via dlt.Encode. It always advances whichever cursor currently
// holds the globally earliest next-to-emit message, up to the point where
// another cursor's head time becomes the new earliest, mirroring
// OverallLC::output_to_fstream's index/next_index drain loop. Absolute
// times account for each member's clock skew (usec_begin + tmsp*100*skew).
// When rewriteTimestamps is set, each message's storage-header time is
// overwritten with that reconstructed absolute time before encoding.
func Emit(w io.Writer, overall *lifecycle.OverallLifecycle, rewriteTimestamps bool) error {
	cursors := make([]*cursor, 0, len(overall.Members))
	for _, lc := range overall.Members {
		if len(lc.Messages) == 0 {
			continue
		}
		c := newCursor(lc)
		cursors = append(cursors, &c)
	}

	for len(cursors) > 1 {
		index, _, nextTime := pickIndices(cursors)

		for {
			cur := cursors[index]
			msg := cur.current()
			oldAbs := cur.absTime(msg.Tmsp)

			if rewriteTimestamps {
				dlt.RewriteTime(msg, oldAbs)
			}
			if err := dlt.Encode(w, msg); err != nil {
				return err
			}

			cur.pos++
			if cur.exhausted() {
				cursors = removeCursor(cursors, index)
				break
			}
			next := cur.current()
			cur.minTime = cur.absTime(next.Tmsp)
			if cur.minTime > nextTime {
				break
			}
		}
	}

	if len(cursors) == 1 {
		c := cursors[0]
		for !c.exhausted() {
			msg := c.current()
			if rewriteTimestamps {
				dlt.RewriteTime(msg, c.absTime(msg.Tmsp))
			}
			if err := dlt.Encode(w, msg); err != nil {
				return err
			}
			c.pos++
		}
	}

	return nil
}

// pickIndices finds the cursor with the globally smallest minTime (index)
// and the smallest minTime among the rest (nextIndex/nextTime), matching
// output_to_fstream's two-pass "index, then next_index" determination.
func pickIndices(cursors []*cursor) (index, nextIndex int, nextTime int64) {
	index = 0
	for i := 1; i < len(cursors); i++ {
		if cursors[i].minTime < cursors[index].minTime {
			index = i
		}
	}
	nextIndex = -1
	for i, c := range cursors {
		if i == index {
			continue
		}
		if nextIndex == -1 || c.minTime < nextTime {
			nextIndex = i
			nextTime = c.minTime
		}
	}
	return index, nextIndex, nextTime
}

func removeCursor(cursors []*cursor, i int) []*cursor {
	out := make([]*cursor, 0, len(cursors)-1)
	out = append(out, cursors[:i]...)
	out = append(out, cursors[i+1:]...)
	return out
}
