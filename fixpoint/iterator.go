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

// Package fixpoint implements the memory-optimized interprocedural
// fixpoint core: an interleaved forward fixpoint iterator driven by a
// wto.WTO, applying widening and narrowing at cycle heads and evicting
// invariants from its Tables as soon as the WTO's liveness metadata says
// they can no longer be read (spec §3, §4.2).
package fixpoint

import (
	"fmt"

	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/checker"
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/execengine"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/wto"
)

// DeferredCheck is a snapshot of one check-bearing block's pre-invariant,
// captured during the main pass instead of being replayed immediately,
// for later replay by RunAllDeferredChecks.
type DeferredCheck struct {
	Block ircfg.Block
	Pre   domain.Value
	Ctx   callctx.Context
}

// Iterator runs the two-phase fixpoint over one function's WTO. A single
// Iterator is owned by exactly one function.Fixpoint; every analyzed callee
// gets its own function.Fixpoint, and so its own Iterator, running over an
// Engine that callengine forked for that call.
type Iterator struct {
	graph  ircfg.Graph
	w      *wto.WTO
	engine execengine.Engine
	checkers []checker.Checker
	params Params
	ctx    callctx.Context

	// DeferChecks, when true, suppresses live Checker.Check calls during
	// the main pass and instead snapshots check-bearing blocks' pre
	// invariants into deferred for the owning function.Fixpoint to replay
	// once the whole call tree has stabilized.
	DeferChecks bool

	pre      *Table
	post     *Table
	retained *Table

	outsideFeeds map[ircfg.NodeIndex][]ircfg.NodeIndex
	thresholdAt  map[ircfg.NodeIndex]int
	blocks       map[ircfg.NodeIndex]ircfg.Block

	deferred []DeferredCheck
}

// New constructs an Iterator for one function body. The bottom value that
// seeds the first round of every cycle's back-edge contribution is not
// taken here but passed to Run.
func New(graph ircfg.Graph, w *wto.WTO, engine execengine.Engine, checkers []checker.Checker, params Params, ctx callctx.Context) *Iterator {
	it := &Iterator{
		graph:        graph,
		w:            w,
		engine:       engine,
		checkers:     checkers,
		params:       params,
		ctx:          ctx,
		pre:          NewTable(),
		post:         NewTable(),
		retained:     NewTable(),
		outsideFeeds: make(map[ircfg.NodeIndex][]ircfg.NodeIndex),
		thresholdAt:  make(map[ircfg.NodeIndex]int),
		blocks:       make(map[ircfg.NodeIndex]ircfg.Block),
	}
	for head, preds := range w.ComponentPredecessors {
		for _, p := range preds {
			it.outsideFeeds[p] = append(it.outsideFeeds[p], head)
		}
	}
	for _, b := range graph.Blocks() {
		it.blocks[b.Index()] = b
	}
	return it
}

// Pre reads n's currently-live pre-invariant, if any.
func (it *Iterator) Pre(n ircfg.NodeIndex) (domain.Value, bool) {
	v, err := it.pre.Peek(n)
	return v, err == nil
}

// Post reads n's currently-live post-invariant, if any.
func (it *Iterator) Post(n ircfg.NodeIndex) (domain.Value, bool) {
	v, err := it.post.Peek(n)
	return v, err == nil
}

// DeferredChecks returns every check snapshot accumulated while
// DeferChecks was set, draining the internal buffer.
func (it *Iterator) DeferredChecks() []DeferredCheck {
	out := it.deferred
	it.deferred = nil
	return out
}

// Run seeds the entry block with initial and drives the fixpoint to
// completion, returning the post-invariant of the last component in the
// top-level sequence (conventionally the function's exit block).
func (it *Iterator) Run(bottom, initial domain.Value) (domain.Value, error) {
	if err := it.pre.Insert(it.graph.Entry(), initial); err != nil {
		return nil, fmt.Errorf("fixpoint: entry already seeded: %w", err)
	}
	if err := it.runSequence(it.w.Top, bottom, false); err != nil {
		return nil, err
	}
	if len(it.w.Top) == 0 {
		return initial, nil
	}
	last := it.w.Top[len(it.w.Top)-1]
	v, err := it.post.Peek(last.Head())
	if err != nil {
		return nil, fmt.Errorf("fixpoint: missing post-invariant for final component: %w", err)
	}
	return v, nil
}

func (it *Iterator) runSequence(components []wto.Component, bottom domain.Value, replace bool) error {
	for _, c := range components {
		switch t := c.(type) {
		case wto.Vertex:
			if err := it.runVertex(t.Node, bottom, replace); err != nil {
				return err
			}
		case wto.Cycle:
			if err := it.runCycle(t, bottom); err != nil {
				return err
			}
		}
	}
	return nil
}

// runVertex computes n's pre from its non-back predecessors, executes its
// block, and stores the post invariant, evicting predecessor invariants
// whose last use n satisfies.
func (it *Iterator) runVertex(n ircfg.NodeIndex, bottom domain.Value, replace bool) error {
	preVal, err := it.joinPreds(n, it.w.NonBackPreds[n], bottom)
	if err != nil {
		return err
	}
	it.pre.Replace(n, preVal)

	it.evictSatisfiedPreds(n, it.w.NonBackPreds[n])

	blk := it.blockOf(n)
	it.engine.SetInv(preVal)
	if blk != nil {
		it.engine.ExecEnter(blk)
		it.engine.ExecLeave(blk)
	}
	postVal := it.engine.Inv()

	if replace {
		it.post.Replace(n, postVal)
	} else if err := it.post.Insert(n, postVal); err != nil {
		return fmt.Errorf("fixpoint: vertex %v processed more than once outside a cycle: %w", n, err)
	}

	it.processChecks(n, blk, preVal)
	it.feedOutside(n, postVal)

	it.pre.Erase(n)
	return nil
}

// joinPreds computes the join, through ExecEdge, of the post invariants of
// preds as observed from n. A predecessor already moved into the retained
// table (because it also feeds some cycle head) is read from there
// instead of the ordinary post table.
func (it *Iterator) joinPreds(n ircfg.NodeIndex, preds []ircfg.NodeIndex, bottom domain.Value) (domain.Value, error) {
	if n == it.graph.Entry() {
		if v, ok := it.Pre(n); ok {
			return v, nil
		}
	}
	acc := bottom
	first := true
	for _, p := range preds {
		var pv domain.Value
		var err error
		pv, err = it.post.Peek(p)
		if err != nil {
			pv, err = it.retained.Peek(p)
			if err != nil {
				return nil, fmt.Errorf("fixpoint: predecessor %v of %v has no live post invariant: %w", p, n, err)
			}
		}
		edged := it.edgeValue(p, n, pv)
		if first {
			acc = edged
			first = false
		} else {
			acc = acc.Join(edged)
		}
	}
	if first {
		// No predecessors at all (unreachable-from-entry or malformed
		// graph); fall back to bottom so callers still get a well-formed
		// value rather than a nil.
		return bottom, nil
	}
	return acc, nil
}

func (it *Iterator) edgeValue(p, n ircfg.NodeIndex, postVal domain.Value) domain.Value {
	srcBlk, dstBlk := it.blockOf(p), it.blockOf(n)
	if srcBlk == nil || dstBlk == nil {
		return postVal
	}
	saved := it.engine.Inv()
	it.engine.SetInv(postVal)
	edged := it.engine.ExecEdge(srcBlk, dstBlk)
	it.engine.SetInv(saved)
	return edged
}

func (it *Iterator) blockOf(n ircfg.NodeIndex) ircfg.Block {
	return it.blocks[n]
}

// evictSatisfiedPreds erases the post invariant of every predecessor whose
// WTO-computed last user is n.
func (it *Iterator) evictSatisfiedPreds(n ircfg.NodeIndex, preds []ircfg.NodeIndex) {
	for _, p := range preds {
		if last, ok := it.w.LastUser[p]; ok && last == n {
			it.post.Erase(p)
		}
	}
}

// feedOutside moves n's freshly computed post invariant into the retained
// table whenever n is a ComponentPredecessors member of some cycle head,
// since that value must outlive the normal single-reader eviction rule
// (it may be read once per round for as long as the owning cycle keeps
// iterating). A plain read of n's post by an ordinary successor still
// works afterwards because joinPreds falls back to the retained table.
func (it *Iterator) feedOutside(n ircfg.NodeIndex, postVal domain.Value) {
	if len(it.outsideFeeds[n]) == 0 {
		return
	}
	it.retained.Replace(n, postVal)
	it.post.Erase(n)
}

// processChecks either runs every checker against every check-bearing
// statement of blk immediately, or snapshots pre for later replay,
// depending on DeferChecks.
func (it *Iterator) processChecks(n ircfg.NodeIndex, blk ircfg.Block, preVal domain.Value) {
	if !it.w.HasCheck[n] || blk == nil {
		return
	}
	if it.DeferChecks {
		it.deferred = append(it.deferred, DeferredCheck{Block: blk, Pre: preVal, Ctx: it.ctx})
		return
	}
	it.runChecks(blk, preVal)
}

// runChecks evaluates every checker against blk's statements using pre as
// the block-granularity invariant, matching the single-block deferred
// re-execution model used by RunAllDeferredChecks.
func (it *Iterator) runChecks(blk ircfg.Block, preVal domain.Value) {
	for _, stmt := range blk.Statements() {
		for _, c := range it.checkers {
			if c.HasCheck(stmt) {
				c.Check(stmt, preVal, it.ctx)
			}
		}
	}
}
