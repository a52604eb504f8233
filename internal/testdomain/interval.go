// Copyright (c) The fixcore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testdomain provides a small interval domain.Value used only by
// the fixpoint, callengine and function unit tests. Unlike adapter/goast's reachability
// domain (finite height 2, no acceleration needed), intervals over the
// integers have infinite ascending and descending chains, so this is the
// domain that actually exercises Widening/WideningThreshold and
// Narrowing/NarrowingThreshold the way a real numeric analysis would.
package testdomain

import (
	"fmt"
	"math"

	"github.com/fixcore-dev/fixcore/domain"
)

// Interval is [Lo, Hi] (inclusive, possibly unbounded in either direction),
// paired with an independent "exceptional" flag so it satisfies the same
// normal/exceptional split every other domain.Value in this module does,
// without numeric bounds needing to say anything about exceptions.
type Interval struct {
	bot         bool
	loInf       bool
	hiInf       bool
	lo          int64
	hi          int64
	exceptional bool
}

var _ domain.Value = Interval{}

// Bottom is the empty interval.
func Bottom() Interval { return Interval{bot: true} }

// Top is (-inf, +inf).
func Top() Interval { return Interval{loInf: true, hiInf: true} }

// Exact returns the singleton interval [n, n].
func Exact(n int64) Interval { return Interval{lo: n, hi: n} }

// Range returns [lo, hi], or Bottom if lo > hi.
func Range(lo, hi int64) Interval {
	if lo > hi {
		return Bottom()
	}
	return Interval{lo: lo, hi: hi}
}

func (i Interval) String() string {
	if i.bot {
		return "[]"
	}
	lo, hi := "-inf", "+inf"
	if !i.loInf {
		lo = fmt.Sprintf("%d", i.lo)
	}
	if !i.hiInf {
		hi = fmt.Sprintf("%d", i.hi)
	}
	exc := ""
	if i.exceptional {
		exc = "!"
	}
	return fmt.Sprintf("[%s,%s]%s", lo, hi, exc)
}

// IsBottom implements domain.Value.
func (i Interval) IsBottom() bool { return i.bot }

// Bounds returns the interval's raw bounds for test assertions and
// transfer functions built on top of this domain; loInf/hiInf being true
// means the corresponding numeric bound is meaningless.
func (i Interval) Bounds() (lo, hi int64, loInf, hiInf bool) {
	return i.lo, i.hi, i.loInf, i.hiInf
}

func (i Interval) loVal() int64 {
	if i.loInf {
		return math.MinInt64
	}
	return i.lo
}

func (i Interval) hiVal() int64 {
	if i.hiInf {
		return math.MaxInt64
	}
	return i.hi
}

// Leq implements domain.Value: this sub-interval of other, and this cannot
// be exceptional unless other is.
func (i Interval) Leq(other domain.Value) bool {
	o := other.(Interval)
	if i.bot {
		return true
	}
	if o.bot {
		return false
	}
	if i.exceptional && !o.exceptional {
		return false
	}
	if !o.loInf && (i.loInf || i.lo < o.lo) {
		return false
	}
	if !o.hiInf && (i.hiInf || i.hi > o.hi) {
		return false
	}
	return true
}

// Join implements domain.Value as interval union (convex hull).
func (i Interval) Join(other domain.Value) domain.Value {
	o := other.(Interval)
	if i.bot {
		return o
	}
	if o.bot {
		return i
	}
	out := Interval{exceptional: i.exceptional || o.exceptional}
	if i.loInf || o.loInf || i.loVal() < o.loVal() {
		if i.loInf || o.loInf {
			out.loInf = true
		} else {
			out.lo = i.lo
		}
	} else {
		out.lo = o.lo
	}
	if i.hiInf || o.hiInf || i.hiVal() > o.hiVal() {
		if i.hiInf || o.hiInf {
			out.hiInf = true
		} else {
			out.hi = i.hi
		}
	} else {
		out.hi = o.hi
	}
	return out
}

// JoinIter implements domain.Value identically to Join: a plain interval
// union is already cheap enough to use during in-flight increasing
// iterations too.
func (i Interval) JoinIter(other domain.Value) domain.Value { return i.Join(other) }

// JoinOnLoopEntry implements domain.Value identically to Join.
func (i Interval) JoinOnLoopEntry(back domain.Value) domain.Value { return i.Join(back) }

// Meet implements domain.Value as interval intersection.
func (i Interval) Meet(other domain.Value) domain.Value {
	o := other.(Interval)
	if i.bot || o.bot {
		return Bottom()
	}
	out := Interval{exceptional: i.exceptional && o.exceptional}
	switch {
	case i.loInf:
		out.lo, out.loInf = o.lo, o.loInf
	case o.loInf:
		out.lo, out.loInf = i.lo, i.loInf
	default:
		out.lo = max64(i.lo, o.lo)
	}
	switch {
	case i.hiInf:
		out.hi, out.hiInf = o.hi, o.hiInf
	case o.hiInf:
		out.hi, out.hiInf = i.hi, i.hiInf
	default:
		out.hi = min64(i.hi, o.hi)
	}
	if !out.loInf && !out.hiInf && out.lo > out.hi {
		return Bottom()
	}
	return out
}

// Widening implements domain.Value: any bound that grew snaps straight to
// infinity, the textbook interval widening operator.
func (i Interval) Widening(other domain.Value) domain.Value {
	o := other.(Interval)
	if i.bot {
		return o
	}
	if o.bot {
		return i
	}
	out := Interval{exceptional: i.exceptional || o.exceptional}
	if o.loInf || o.loVal() < i.loVal() {
		out.loInf = true
	} else {
		out.lo = i.lo
		out.loInf = i.loInf
	}
	if o.hiInf || o.hiVal() > i.hiVal() {
		out.hiInf = true
	} else {
		out.hi = i.hi
		out.hiInf = i.hiInf
	}
	return out
}

// Thresholds is the Threshold implementation this domain understands: a
// sorted ascending set of candidate bounds for WideningThreshold/
// NarrowingThreshold to snap to instead of jumping straight to infinity.
type Thresholds struct {
	Lo []int64 // ascending
	Hi []int64 // ascending
}

// WideningThreshold implements domain.Value: instead of jumping to
// infinity, a grown bound snaps to the nearest threshold that still covers
// other, falling back to infinity only if none does.
func (i Interval) WideningThreshold(other domain.Value, t domain.Threshold) domain.Value {
	o := other.(Interval)
	ts, ok := t.(Thresholds)
	if !ok {
		return i.Widening(other)
	}
	if i.bot {
		return o
	}
	if o.bot {
		return i
	}
	out := Interval{exceptional: i.exceptional || o.exceptional}
	if o.loInf || o.loVal() < i.loVal() {
		out.lo, out.loInf = snapLo(ts.Lo, o.loVal())
	} else {
		out.lo, out.loInf = i.lo, i.loInf
	}
	if o.hiInf || o.hiVal() > i.hiVal() {
		out.hi, out.hiInf = snapHi(ts.Hi, o.hiVal())
	} else {
		out.hi, out.hiInf = i.hi, i.hiInf
	}
	return out
}

// Narrowing implements domain.Value: an unbounded side picks up other's
// (necessarily finite, post-widening-fixpoint) bound; a finite bound is
// already precise and is kept.
func (i Interval) Narrowing(other domain.Value) domain.Value {
	o := other.(Interval)
	if o.bot {
		return o
	}
	if i.bot {
		return i
	}
	out := Interval{exceptional: i.exceptional && o.exceptional}
	if i.loInf {
		out.lo, out.loInf = o.lo, o.loInf
	} else {
		out.lo, out.loInf = i.lo, false
	}
	if i.hiInf {
		out.hi, out.hiInf = o.hi, o.hiInf
	} else {
		out.hi, out.hiInf = i.hi, false
	}
	return out
}

// NarrowingThreshold implements domain.Value identically to Narrowing:
// narrowing only ever tightens an already-infinite bound down to a known
// finite one, so there is no useful intermediate snap point the way there
// is for widening's "jump straight to infinity" case.
func (i Interval) NarrowingThreshold(other domain.Value, _ domain.Threshold) domain.Value {
	return i.Narrowing(other)
}

// SetNormalFlowToBottom implements domain.Value.
func (i Interval) SetNormalFlowToBottom() domain.Value {
	return Interval{bot: true, exceptional: i.exceptional}
}

// IsNormalFlowBottom implements domain.Value.
func (i Interval) IsNormalFlowBottom() bool { return i.bot }

// IgnoreExceptions implements domain.Value.
func (i Interval) IgnoreExceptions() domain.Value {
	out := i
	out.exceptional = false
	return out
}

// MergeCaughtInPropagatedExceptions implements domain.Value.
func (i Interval) MergeCaughtInPropagatedExceptions(caught domain.Value) domain.Value {
	out := i
	out.exceptional = i.exceptional || caught.(Interval).exceptional
	return out
}

// MergePropagatedInCaughtExceptions implements domain.Value.
func (i Interval) MergePropagatedInCaughtExceptions(propagated domain.Value) domain.Value {
	return i.MergeCaughtInPropagatedExceptions(propagated)
}

// Domain is the Bottomer for Interval.
type Domain struct{}

func (Domain) Bottom() domain.Value { return Bottom() }

var _ domain.Bottomer = Domain{}

func snapLo(thresholds []int64, v int64) (int64, bool) {
	for i := len(thresholds) - 1; i >= 0; i-- {
		if thresholds[i] <= v {
			return thresholds[i], false
		}
	}
	return 0, true
}

func snapHi(thresholds []int64, v int64) (int64, bool) {
	for _, t := range thresholds {
		if t >= v {
			return t, false
		}
	}
	return 0, true
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
