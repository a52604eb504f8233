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

package fixpoint

import (
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/ircfg"
)

// WideningStrategy selects how a cycle head's invariant is extrapolated
// once the widening delay has elapsed.
type WideningStrategy int

const (
	// Widen applies the domain's Widening (or WideningThreshold, if a
	// threshold is configured for the head) operator.
	Widen WideningStrategy = iota
	// JoinStrategy applies plain Join indefinitely instead of widening,
	// appropriate for domains with finite height or for callers willing to
	// trade termination guarantees for precision on a known-small loop.
	JoinStrategy
)

// NarrowingStrategy selects how a cycle head's invariant is refined during
// the decreasing-iteration phase.
type NarrowingStrategy int

const (
	// Narrow applies the domain's Narrowing (or NarrowingThreshold)
	// operator.
	Narrow NarrowingStrategy = iota
	// MeetStrategy applies plain Meet instead of narrowing.
	MeetStrategy
)

// Params configures the extrapolate/refine policy the cycle iteration
// state machine applies at every cycle head (spec §4.2).
type Params struct {
	// WideningDelay is the number of plain-join rounds performed before
	// extrapolation kicks in at all.
	WideningDelay int
	// WideningPeriod extrapolates (rather than plain-joins) only once
	// every WideningPeriod rounds past the delay; a period of 1
	// extrapolates every round.
	WideningPeriod int
	// NarrowingIterationCap bounds the number of decreasing-phase rounds
	// performed at any one cycle head, guaranteeing termination even for a
	// narrowing operator that does not itself stabilize quickly.
	NarrowingIterationCap int

	Widening  WideningStrategy
	Narrowing NarrowingStrategy

	// Thresholds optionally supplies a per-head sequence of
	// domain.Threshold values consumed in order, one per widening round and
	// one per narrowing round from the same sequence, by
	// WideningThreshold/NarrowingThreshold; once exhausted, the iterator
	// falls back to plain Widening/Narrowing for that head.
	Thresholds map[ircfg.NodeIndex][]domain.Threshold
}

// DefaultParams returns the policy used when the caller supplies no
// explicit tuning: widen starting on the second round, widen every round
// thereafter, and allow up to three narrowing rounds per cycle.
func DefaultParams() Params {
	return Params{
		WideningDelay:         1,
		WideningPeriod:        1,
		NarrowingIterationCap: 3,
		Widening:              Widen,
		Narrowing:             Narrow,
	}
}
