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

package fixpoint_test

import (
	"math"
	"testing"

	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/checker"
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/execengine"
	"github.com/fixcore-dev/fixcore/fixpoint"
	"github.com/fixcore-dev/fixcore/internal/testdomain"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/ptroracle"
	"github.com/fixcore-dev/fixcore/wto"
)

type fakeStatement struct{ pos string }

func (s fakeStatement) Pos() string { return s.pos }

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

func newGraph(succs [][]int) *fakeGraph {
	blocks := make([]ircfg.Block, len(succs))
	for i, ss := range succs {
		out := make([]ircfg.NodeIndex, len(ss))
		for j, s := range ss {
			out[j] = ircfg.NodeIndex(s)
		}
		blocks[i] = &fakeBlock{idx: ircfg.NodeIndex(i), succs: out}
	}
	return &fakeGraph{blocks: blocks, entry: 0}
}

type edgeKey struct{ src, dst ircfg.NodeIndex }

// fakeEngine is a minimal execengine.Engine: ExecLeave applies a
// per-block transform to the current invariant, and ExecEdge applies a
// per-edge transform, letting each test wire up exactly the transfer
// functions it needs without a real IR.
type fakeEngine struct {
	inv     domain.Value
	nodeOps map[ircfg.NodeIndex]func(domain.Value) domain.Value
	edgeOps map[edgeKey]func(domain.Value) domain.Value
}

var _ execengine.Engine = (*fakeEngine)(nil)

func (e *fakeEngine) SetInv(v domain.Value) { e.inv = v }
func (e *fakeEngine) Inv() domain.Value     { return e.inv }
func (e *fakeEngine) ExecEnter(ircfg.Block) {}
func (e *fakeEngine) ExecLeave(bb ircfg.Block) {
	if fn, ok := e.nodeOps[bb.Index()]; ok {
		e.inv = fn(e.inv)
	}
}
func (e *fakeEngine) ExecEdge(src, dest ircfg.Block) domain.Value {
	if fn, ok := e.edgeOps[edgeKey{src.Index(), dest.Index()}]; ok {
		return fn(e.inv)
	}
	return e.inv
}
func (e *fakeEngine) ExecExternCall(ircfg.CallStatement, ircfg.Callee)               {}
func (e *fakeEngine) ExecUnknownExternCall(ircfg.CallStatement)                      {}
func (e *fakeEngine) ExecUnknownInternCall(ircfg.CallStatement)                      {}
func (e *fakeEngine) MatchDown(ircfg.CallStatement, ircfg.Callee) domain.Value       { return e.inv }
func (e *fakeEngine) MatchUp(ircfg.CallStatement, domain.Value)                      {}
func (e *fakeEngine) DeallocateLocalVariables(ircfg.Statement, ircfg.Statement)      {}
func (e *fakeEngine) Fork() execengine.Engine {
	return &fakeEngine{inv: e.inv, nodeOps: e.nodeOps, edgeOps: e.edgeOps}
}
func (e *fakeEngine) PointerInfo() ptroracle.Oracle { return nil }

func incHi(v domain.Value) domain.Value {
	iv := v.(testdomain.Interval)
	lo, hi, _, hiInf := iv.Bounds()
	if hiInf {
		return iv
	}
	return testdomain.Range(lo, hi+1)
}

func capAt(n int64) func(domain.Value) domain.Value {
	return func(v domain.Value) domain.Value {
		iv := v.(testdomain.Interval)
		return iv.Meet(testdomain.Range(math.MinInt64, n))
	}
}

func TestIterator_LinearJoin(t *testing.T) {
	// 0 -> 1, 0 -> 2, 1 -> 3, 2 -> 3 (diamond, no loops)
	g := newGraph([][]int{{1, 2}, {3}, {3}, nil})
	w := wto.Build(g, nil)
	engine := &fakeEngine{}
	it := fixpoint.New(g, w, engine, nil, fixpoint.DefaultParams(), callctx.Root())

	result, err := it.Run(testdomain.Bottom(), testdomain.Exact(0))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	iv := result.(testdomain.Interval)
	lo, hi, loInf, hiInf := iv.Bounds()
	if loInf || hiInf || lo != 0 || hi != 0 {
		t.Errorf("want exact [0,0] with no transfer functions, got %s", iv)
	}
}

func TestIterator_WideningThenNarrowingRecoversBound(t *testing.T) {
	// 0 -> 1 (head) -> 2 (body, increments) -> 1 (back edge), 1 -> 3 (exit)
	// The 1->2 edge models a loop guard capping the value at 99 before the
	// body runs, so narrowing should recover a finite bound even though
	// widening inflated the head's invariant to +inf along the way.
	g := newGraph([][]int{{1}, {2, 3}, {1}, nil})
	w := wto.Build(g, nil)

	engine := &fakeEngine{
		nodeOps: map[ircfg.NodeIndex]func(domain.Value) domain.Value{2: incHi},
		edgeOps: map[edgeKey]func(domain.Value) domain.Value{
			{1, 2}: capAt(99),
		},
	}
	it := fixpoint.New(g, w, engine, nil, fixpoint.DefaultParams(), callctx.Root())

	result, err := it.Run(testdomain.Bottom(), testdomain.Exact(0))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	iv := result.(testdomain.Interval)
	lo, hi, loInf, hiInf := iv.Bounds()
	if loInf || hiInf {
		t.Fatalf("want a finite result after narrowing, got %s", iv)
	}
	if lo != 0 || hi != 100 {
		t.Errorf("want [0,100] after widen-then-narrow, got %s", iv)
	}
}

func TestIterator_DeferChecksSnapshotsInsteadOfReporting(t *testing.T) {
	g := newGraph([][]int{{1}, nil})
	g.blocks[1] = &fakeBlock{
		idx:   1,
		stmts: []ircfg.Statement{fakeStatement{pos: "stmt1"}},
	}
	c := &countingChecker{}
	w := wto.Build(g, []checker.Checker{c})

	engine := &fakeEngine{}
	it := fixpoint.New(g, w, engine, []checker.Checker{c}, fixpoint.DefaultParams(), callctx.Root())
	it.DeferChecks = true

	if _, err := it.Run(testdomain.Bottom(), testdomain.Exact(0)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.calls != 0 {
		t.Errorf("want 0 live Check calls while deferring, got %d", c.calls)
	}
	deferred := it.DeferredChecks()
	if len(deferred) != 1 {
		t.Fatalf("want 1 deferred check snapshot, got %d", len(deferred))
	}
	if len(it.DeferredChecks()) != 0 {
		t.Error("DeferredChecks should drain its buffer")
	}
}

type countingChecker struct{ calls int }

func (*countingChecker) HasCheck(stmt ircfg.Statement) bool { return stmt.Pos() == "stmt1" }
func (c *countingChecker) Check(ircfg.Statement, domain.Value, callctx.Context) { c.calls++ }
