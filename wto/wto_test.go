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

package wto_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/checker"
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/wto"
)

// fakeStatement is the simplest possible ircfg.Statement for graph fixtures
// that do not care about statement content.
type fakeStatement struct{ pos string }

func (s fakeStatement) Pos() string { return s.pos }

// fakeBlock and fakeGraph let each test build an arbitrary CFG shape
// directly from adjacency lists, without going through a real IR adapter.
type fakeBlock struct {
	idx   ircfg.NodeIndex
	stmts []ircfg.Statement
	succs []ircfg.NodeIndex
}

func (b *fakeBlock) Index() ircfg.NodeIndex        { return b.idx }
func (b *fakeBlock) Statements() []ircfg.Statement { return b.stmts }
func (b *fakeBlock) Succs() []ircfg.NodeIndex      { return b.succs }

type fakeGraph struct {
	blocks []ircfg.Block
	entry  ircfg.NodeIndex
}

func (g *fakeGraph) Blocks() []ircfg.Block  { return g.blocks }
func (g *fakeGraph) Entry() ircfg.NodeIndex { return g.entry }

// newGraph builds a fakeGraph from a slice of successor lists, one per
// block, with exactly one statement per block stamped with its index for
// identification in HasCheck-driven tests.
func newGraph(succs [][]int) *fakeGraph {
	blocks := make([]ircfg.Block, len(succs))
	for i, ss := range succs {
		out := make([]ircfg.NodeIndex, len(ss))
		for j, s := range ss {
			out[j] = ircfg.NodeIndex(s)
		}
		blocks[i] = &fakeBlock{
			idx:   ircfg.NodeIndex(i),
			stmts: []ircfg.Statement{fakeStatement{pos: fmt.Sprintf("block:%d", i)}},
			succs: out,
		}
	}
	return &fakeGraph{blocks: blocks, entry: 0}
}

// wantChecker reports HasCheck true for every statement whose position is
// in the given set; Check is never exercised during WTO construction.
type wantChecker struct{ wanted map[string]bool }

func (c wantChecker) HasCheck(stmt ircfg.Statement) bool { return c.wanted[stmt.Pos()] }
func (wantChecker) Check(ircfg.Statement, domain.Value, callctx.Context) {}

var _ checker.Checker = wantChecker{}

func TestBuild_Linear(t *testing.T) {
	// 0 -> 1 -> 2
	g := newGraph([][]int{{1}, {2}, nil})
	w := wto.Build(g, nil)

	if len(w.Top) != 3 {
		t.Fatalf("want 3 top-level components, got %d", len(w.Top))
	}
	for i, c := range w.Top {
		if _, ok := c.(wto.Vertex); !ok {
			t.Errorf("component %d: want Vertex, got %T", i, c)
		}
		if c.Head() != ircfg.NodeIndex(i) {
			t.Errorf("component %d: want head %d, got %d", i, i, c.Head())
		}
	}
	if w.IsInLoop[0] || w.IsInLoop[1] || w.IsInLoop[2] {
		t.Error("linear chain should have no node marked IsInLoop")
	}
}

func TestBuild_SimpleLoop(t *testing.T) {
	// 0 -> 1 -> 2 -> 1 (back edge), 2 -> 3 (exit)
	g := newGraph([][]int{{1}, {2}, {1, 3}, nil})
	w := wto.Build(g, nil)

	if !w.IsCycleHead(1) {
		t.Fatal("node 1 should be the cycle head")
	}
	if !w.IsInLoop[1] || !w.IsInLoop[2] {
		t.Error("nodes 1 and 2 should be IsInLoop")
	}
	if w.IsInLoop[0] || w.IsInLoop[3] {
		t.Error("nodes 0 and 3 are outside the loop")
	}
	if !w.IsOutermostComponent[1] {
		t.Error("the only cycle should be outermost")
	}

	comp, ok := w.ComponentOf(1)
	if !ok {
		t.Fatal("expected a component for node 1")
	}
	cyc, ok := comp.(wto.Cycle)
	if !ok {
		t.Fatalf("want Cycle, got %T", comp)
	}
	if len(cyc.Components) != 1 || cyc.Components[0].Head() != 2 {
		t.Errorf("want single nested component heading at 2, got %+v", cyc.Components)
	}

	preds := w.ComponentPredecessors[1]
	if len(preds) != 2 {
		t.Errorf("want 2 component predecessors (entry 0 and back-edge 2), got %v", preds)
	}
}

func TestBuild_NestedLoop(t *testing.T) {
	// 0 -> 1 (outer head) -> 2 (inner head) -> 3 -> 2 (inner back edge)
	//                                       3 -> 1 (outer back edge)
	// 1 -> 4 (exit)
	g := newGraph([][]int{
		{1},    // 0
		{2, 4}, // 1
		{3},    // 2
		{2, 1}, // 3
		nil,    // 4
	})
	w := wto.Build(g, nil)

	if !w.IsCycleHead(1) || !w.IsCycleHead(2) {
		t.Fatal("nodes 1 and 2 should both be cycle heads")
	}
	if !w.IsOutermostComponent[1] {
		t.Error("node 1's cycle should be outermost")
	}
	if w.IsOutermostComponent[2] {
		t.Error("node 2's cycle is nested, not outermost")
	}
	for _, n := range []ircfg.NodeIndex{1, 2, 3} {
		if !w.IsInLoop[n] {
			t.Errorf("node %d should be IsInLoop", n)
		}
	}
	if w.IsInLoop[0] || w.IsInLoop[4] {
		t.Error("nodes 0 and 4 are outside every loop")
	}
}

func TestBuild_Diamond_LastUser(t *testing.T) {
	// 0 -> 1, 0 -> 2, 1 -> 3, 2 -> 3
	g := newGraph([][]int{{1, 2}, {3}, {3}, nil})
	w := wto.Build(g, nil)

	// Node 0's post invariant is read by both 1 and 2; whichever comes
	// later in flattened order should be recorded as its LastUser.
	last, ok := w.LastUser[0]
	if !ok {
		t.Fatal("node 0 should have a LastUser entry")
	}
	if last != 1 && last != 2 {
		t.Errorf("want LastUser in {1,2}, got %d", last)
	}
}

func TestBuild_HasCheckPropagatesToAncestors(t *testing.T) {
	// 0 -> 1 (head) -> 2 -> 1 (back edge), 2 -> 3
	g := newGraph([][]int{{1}, {2}, {1, 3}, nil})
	c := wantChecker{wanted: map[string]bool{"block:2": true}}
	w := wto.Build(g, []checker.Checker{c})

	if !w.HasCheck[2] {
		t.Fatal("node 2 should be marked HasCheck")
	}
	found := false
	for _, n := range w.ChildrenWithChecks[1] {
		if n == 2 {
			found = true
		}
	}
	if !found {
		t.Error("cycle head 1 should list node 2 in ChildrenWithChecks")
	}
}

// TestBuild_Deterministic exercises the universal invariant that two
// independent builds over the same CFG produce identical component trees
// and identical post_dfn/last_user/children_* maps (spec §8, property 5).
// wto.WTO.componentOf is intentionally left out of the comparison: it is
// an unexported cache of the very same Component values already reachable
// through Top, so comparing it too would just duplicate the Top diff.
func TestBuild_Deterministic(t *testing.T) {
	g := newGraph([][]int{
		{1},    // 0
		{2, 4}, // 1 (outer head)
		{3},    // 2 (inner head)
		{2, 1}, // 3
		nil,    // 4
	})
	c := wantChecker{wanted: map[string]bool{"block:3": true}}

	first := wto.Build(g, []checker.Checker{c})
	second := wto.Build(g, []checker.Checker{c})

	if diff := cmp.Diff(first, second, cmpopts.IgnoreUnexported(wto.WTO{})); diff != "" {
		t.Errorf("two independent Build() calls over the same CFG diverged (-first +second):\n%s", diff)
	}
}
