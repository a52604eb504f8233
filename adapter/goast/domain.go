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

package goast

import "github.com/fixcore-dev/fixcore/domain"

// State is the reachability domain: a two-component lattice tracking
// whether a program point is reachable via normal control flow and
// whether it is reachable via a propagated (uncaught) exception. It is
// deliberately the simplest possible domain.Value implementation, used to
// drive reachcheck end to end over real Go source without pulling in any
// nilability- or interval-style value tracking.
type State struct {
	normal      bool
	exceptional bool
}

// Bottom returns the reachability domain's bottom element: unreachable by
// any flow.
func Bottom() domain.Value { return State{} }

// Reachable returns the reachability domain's top element for normal flow:
// the usual starting state for a function's entry block.
func Reachable() domain.Value { return State{normal: true} }

// Domain implements domain.Bottomer for the reachability domain.
type Domain struct{}

// Bottom implements domain.Bottomer.
func (Domain) Bottom() domain.Value { return Bottom() }

func (s State) IsBottom() bool { return !s.normal && !s.exceptional }

func (s State) Leq(other domain.Value) bool {
	o := other.(State)
	return (!s.normal || o.normal) && (!s.exceptional || o.exceptional)
}

func (s State) Join(other domain.Value) domain.Value {
	o := other.(State)
	return State{normal: s.normal || o.normal, exceptional: s.exceptional || o.exceptional}
}

func (s State) JoinIter(other domain.Value) domain.Value { return s.Join(other) }

func (s State) JoinOnLoopEntry(back domain.Value) domain.Value { return s.Join(back) }

func (s State) Meet(other domain.Value) domain.Value {
	o := other.(State)
	return State{normal: s.normal && o.normal, exceptional: s.exceptional && o.exceptional}
}

// Widening has finite height (two bits), so it coincides with Join: no
// domain-specific acceleration is needed to guarantee termination.
func (s State) Widening(other domain.Value) domain.Value { return s.Join(other) }

func (s State) WideningThreshold(other domain.Value, _ domain.Threshold) domain.Value {
	return s.Join(other)
}

func (s State) Narrowing(other domain.Value) domain.Value { return s.Meet(other) }

func (s State) NarrowingThreshold(other domain.Value, _ domain.Threshold) domain.Value {
	return s.Meet(other)
}

func (s State) SetNormalFlowToBottom() domain.Value {
	return State{normal: false, exceptional: s.exceptional}
}

func (s State) IsNormalFlowBottom() bool { return !s.normal }

func (s State) IgnoreExceptions() domain.Value {
	return State{normal: s.normal, exceptional: false}
}

// MergeCaughtInPropagatedExceptions folds caught's exceptional component
// into this value's own, modeling a caller regaining the possibility of an
// in-flight exception after a forked callee observed one.
func (s State) MergeCaughtInPropagatedExceptions(caught domain.Value) domain.Value {
	c := caught.(State)
	return State{normal: s.normal, exceptional: s.exceptional || c.exceptional}
}

// MergePropagatedInCaughtExceptions folds propagated's exceptional
// component into this value's normal component: an exception that left a
// callee unhandled makes the call site itself a potential exceptional exit,
// which this reachability domain conservatively treats as "still
// reachable" rather than introducing a third flow category.
func (s State) MergePropagatedInCaughtExceptions(propagated domain.Value) domain.Value {
	p := propagated.(State)
	return State{normal: s.normal || p.exceptional, exceptional: s.exceptional}
}
