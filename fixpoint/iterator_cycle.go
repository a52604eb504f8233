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
	"fmt"

	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/wto"
)

// cycleRoundSafetyCap bounds the increasing phase even when a domain
// violates the ascending-chain guarantee widening is supposed to provide;
// it is a last-resort safety valve, not a tuning knob (spec's widening
// delay/period are the intended controls).
const cycleRoundSafetyCap = 10000

// runCycle drives the Outside -> Increasing(k) -> Decreasing(k) -> Stable
// state machine at one cycle head (spec §4.2).
func (it *Iterator) runCycle(cyc wto.Cycle, bottom domain.Value) error {
	head := cyc.HeadNode
	outsidePreds := it.w.NonBackPreds[head]
	backPreds := filterSelf(it.w.BackPreds[head], head)

	outsideVal, err := it.joinPreds(head, outsidePreds, bottom)
	if err != nil {
		return fmt.Errorf("fixpoint: cycle head %v: %w", head, err)
	}

	var prevPre domain.Value
	r := 0
	for {
		var newPre domain.Value
		if r == 0 {
			newPre = outsideVal.JoinOnLoopEntry(bottom)
		} else {
			backVal, err := it.joinPreds(head, backPreds, bottom)
			if err != nil {
				return fmt.Errorf("fixpoint: cycle head %v round %d: %w", head, r, err)
			}
			combined := outsideVal.Join(backVal)
			newPre = it.extrapolate(head, prevPre, combined, r)
			if newPre.Leq(prevPre) {
				break
			}
		}

		if err := it.runHeadAndBody(cyc, head, newPre, bottom); err != nil {
			return err
		}
		prevPre = newPre
		r++
		if r > cycleRoundSafetyCap {
			return fmt.Errorf("fixpoint: cycle head %v did not converge within %d rounds", head, cycleRoundSafetyCap)
		}
	}

	narrowPre := prevPre
	for k := 0; k < it.params.NarrowingIterationCap; k++ {
		backVal, err := it.joinPreds(head, backPreds, bottom)
		if err != nil {
			return fmt.Errorf("fixpoint: cycle head %v narrowing round %d: %w", head, k, err)
		}
		combined := outsideVal.Join(backVal)
		refined := it.refine(head, narrowPre, combined)
		if refined.Leq(narrowPre) && narrowPre.Leq(refined) {
			break
		}
		if err := it.runHeadAndBody(cyc, head, refined, bottom); err != nil {
			return err
		}
		narrowPre = refined
	}

	it.pre.Erase(head)
	for _, p := range it.w.ComponentPredecessors[head] {
		it.retained.Erase(p)
	}
	return nil
}

// runHeadAndBody executes the cycle head itself with preVal installed,
// then the nested sub-components in order, all using Replace semantics
// since a cycle's body is reprocessed every round.
func (it *Iterator) runHeadAndBody(cyc wto.Cycle, head ircfg.NodeIndex, preVal, bottom domain.Value) error {
	it.pre.Replace(head, preVal)

	blk := it.blockOf(head)
	it.engine.SetInv(preVal)
	if blk != nil {
		it.engine.ExecEnter(blk)
		it.engine.ExecLeave(blk)
	}
	postVal := it.engine.Inv()
	it.post.Replace(head, postVal)

	it.processChecks(head, blk, preVal)
	it.feedOutside(head, postVal)

	return it.runSequence(cyc.Components, bottom, true)
}

// extrapolate applies the configured widening policy once the widening
// delay has elapsed and it is this round's turn within the widening
// period; otherwise it performs a plain iterative join.
func (it *Iterator) extrapolate(head ircfg.NodeIndex, prev, combined domain.Value, round int) domain.Value {
	if round <= it.params.WideningDelay {
		return prev.JoinIter(combined)
	}
	if (round-it.params.WideningDelay)%max(it.params.WideningPeriod, 1) != 0 {
		return prev.JoinIter(combined)
	}
	if it.params.Widening == JoinStrategy {
		return prev.Join(combined)
	}
	if t, ok := it.nextThreshold(head); ok {
		return prev.WideningThreshold(combined, t)
	}
	return prev.Widening(combined)
}

// refine applies the configured narrowing policy for one decreasing-phase
// round.
func (it *Iterator) refine(head ircfg.NodeIndex, prev, combined domain.Value) domain.Value {
	if it.params.Narrowing == MeetStrategy {
		return prev.Meet(combined)
	}
	if t, ok := it.nextThreshold(head); ok {
		return prev.NarrowingThreshold(combined, t)
	}
	return prev.Narrowing(combined)
}

func (it *Iterator) nextThreshold(head ircfg.NodeIndex) (domain.Threshold, bool) {
	seq := it.params.Thresholds[head]
	i := it.thresholdAt[head]
	if i >= len(seq) {
		return nil, false
	}
	it.thresholdAt[head] = i + 1
	return seq[i], true
}

func filterSelf(preds []ircfg.NodeIndex, self ircfg.NodeIndex) []ircfg.NodeIndex {
	out := make([]ircfg.NodeIndex, 0, len(preds))
	for _, p := range preds {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}
