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

package callengine_test

import (
	"testing"

	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/callengine"
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/execengine"
	"github.com/fixcore-dev/fixcore/internal/testdomain"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/ptroracle"
)

type fakeCallee struct {
	id       string
	external bool
}

func (c fakeCallee) ID() any            { return c.id }
func (c fakeCallee) IsExternal() bool   { return c.external }
func (c fakeCallee) Graph() ircfg.Graph { panic("not needed by these tests") }

type fakeLocation struct{ id string }

func (l fakeLocation) ID() any { return l.id }

type fakeCallStmt struct {
	pos    string
	kind   ircfg.TargetKind
	direct ircfg.Callee
	loc    ircfg.Location
}

func (s fakeCallStmt) Pos() string                      { return s.pos }
func (s fakeCallStmt) TargetKind() ircfg.TargetKind     { return s.kind }
func (s fakeCallStmt) DirectCallee() ircfg.Callee       { return s.direct }
func (s fakeCallStmt) IndirectVariable() ircfg.Location { return s.loc }

// fakeEngineShared is split out from fakeEngine so every fork of one engine
// shares the same tracking counters as its origin: callengine now runs
// each callee (external or internal) against its own fork rather than
// mutating the caller's engine in place, and tests need to observe
// activity regardless of which fork it happened on.
type fakeEngineShared struct {
	externCalls        []ircfg.Callee
	unknownExternCalls int
	unknownInternCalls int
	matchDownCalls     int
	matchUpCalls       []domain.Value
	forkCount          int
}

// fakeEngine tracks how callengine drives the execengine.Engine contract.
type fakeEngine struct {
	inv    domain.Value
	shared *fakeEngineShared
}

func newFakeEngine(inv domain.Value) *fakeEngine {
	return &fakeEngine{inv: inv, shared: &fakeEngineShared{}}
}

var _ execengine.Engine = (*fakeEngine)(nil)

func (e *fakeEngine) SetInv(v domain.Value) { e.inv = v }
func (e *fakeEngine) Inv() domain.Value     { return e.inv }
func (e *fakeEngine) ExecEnter(ircfg.Block) {}
func (e *fakeEngine) ExecLeave(ircfg.Block) {}
func (e *fakeEngine) ExecEdge(ircfg.Block, ircfg.Block) domain.Value { return e.inv }
func (e *fakeEngine) ExecExternCall(call ircfg.CallStatement, callee ircfg.Callee) {
	e.shared.externCalls = append(e.shared.externCalls, callee)
}
func (e *fakeEngine) ExecUnknownExternCall(ircfg.CallStatement) { e.shared.unknownExternCalls++ }
func (e *fakeEngine) ExecUnknownInternCall(ircfg.CallStatement) { e.shared.unknownInternCalls++ }
func (e *fakeEngine) MatchDown(ircfg.CallStatement, ircfg.Callee) domain.Value {
	e.shared.matchDownCalls++
	return e.inv
}
func (e *fakeEngine) MatchUp(_ ircfg.CallStatement, calleeExit domain.Value) {
	e.shared.matchUpCalls = append(e.shared.matchUpCalls, calleeExit)
}
func (e *fakeEngine) DeallocateLocalVariables(ircfg.Statement, ircfg.Statement) {}
func (e *fakeEngine) Fork() execengine.Engine {
	e.shared.forkCount++
	return &fakeEngine{inv: e.inv, shared: e.shared}
}
func (e *fakeEngine) PointerInfo() ptroracle.Oracle { return nil }

// fakeFixpoint is the CalleeFixpoint a test factory hands back.
type fakeFixpoint struct {
	exit  domain.Value
	err   error
	calls int
}

func (f *fakeFixpoint) Run(callctx.Context, domain.Value) (domain.Value, error) {
	f.calls++
	return f.exit, f.err
}

type constSet struct {
	members []ptroracle.Member
	top     bool
	bottom  bool
}

func (s constSet) IsBottom() bool                                        { return s.bottom }
func (s constSet) IsTop() bool                                           { return s.top }
func (s constSet) Members() []ptroracle.Member                           { return s.members }
func (s constSet) Intersect(ptroracle.PointsToSet) ptroracle.PointsToSet { return s }

type funcMember struct{ callee ircfg.Callee }

func (m funcMember) ID() any              { return m.callee.ID() }
func (m funcMember) Callee() ircfg.Callee { return m.callee }

type fakeOracle struct{ sets map[string]ptroracle.PointsToSet }

func (o fakeOracle) Get(loc ircfg.Location) ptroracle.PointsToSet {
	if s, ok := o.sets[loc.ID().(string)]; ok {
		return s
	}
	return constSet{top: true}
}

// fakeCallCache is a callengine.CallCache test double with the same
// Leq-gated, consume-on-hit semantics function.Fixpoint implements for
// real.
type fakeCallCache struct {
	entries map[fakeCacheKey]fakeCacheEntry
}

type fakeCacheKey struct {
	block ircfg.NodeIndex
	call  ircfg.CallStatement
}

type fakeCacheEntry struct {
	entry  domain.Value
	result domain.Value
}

func (c *fakeCallCache) Record(block ircfg.NodeIndex, call ircfg.CallStatement, entry, result domain.Value) {
	if c.entries == nil {
		c.entries = make(map[fakeCacheKey]fakeCacheEntry)
	}
	c.entries[fakeCacheKey{block: block, call: call}] = fakeCacheEntry{entry: entry, result: result}
}

func (c *fakeCallCache) Lookup(block ircfg.NodeIndex, call ircfg.CallStatement, entry domain.Value) (domain.Value, bool) {
	key := fakeCacheKey{block: block, call: call}
	cached, ok := c.entries[key]
	if !ok || !entry.Leq(cached.entry) {
		return nil, false
	}
	delete(c.entries, key)
	return cached.result, true
}

var _ callengine.CallCache = (*fakeCallCache)(nil)

func TestExecuteCall_Undefined_CollapsesToBottom(t *testing.T) {
	e := callengine.New(nil, nil, callctx.Root(), nil)
	caller := newFakeEngine(testdomain.Exact(0))
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetUndefined}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if !caller.inv.IsBottom() {
		t.Errorf("want caller state collapsed to bottom, got %v", caller.inv)
	}
}

func TestExecuteCall_InlineAsm_IsUnknownExtern(t *testing.T) {
	e := callengine.New(nil, nil, callctx.Root(), nil)
	caller := newFakeEngine(testdomain.Exact(0))
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetInlineAsm}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if caller.shared.unknownExternCalls != 1 {
		t.Errorf("want 1 ExecUnknownExternCall, got %d", caller.shared.unknownExternCalls)
	}
}

func TestExecuteCall_DirectExternal(t *testing.T) {
	e := callengine.New(nil, nil, callctx.Root(), nil)
	caller := newFakeEngine(testdomain.Exact(0))
	callee := fakeCallee{id: "os.Exit", external: true}
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetDirect, direct: callee}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if len(caller.shared.externCalls) != 1 || caller.shared.externCalls[0].ID() != "os.Exit" {
		t.Errorf("want one ExecExternCall(os.Exit), got %v", caller.shared.externCalls)
	}
}

func TestExecuteCall_DirectInternal_RunsCalleeAndMerges(t *testing.T) {
	callee := fakeCallee{id: "helper"}
	fp := &fakeFixpoint{exit: testdomain.Exact(42)}
	factory := func(c ircfg.Callee, ctx callctx.Context, entryEngine execengine.Engine) (callengine.CalleeFixpoint, error) {
		if c.ID() != "helper" {
			t.Errorf("factory got unexpected callee %v", c.ID())
		}
		return fp, nil
	}

	e := callengine.New(nil, factory, callctx.Root(), nil)
	caller := newFakeEngine(testdomain.Exact(0))
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetDirect, direct: callee}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if fp.calls != 1 {
		t.Errorf("want callee fixpoint run once, got %d", fp.calls)
	}
	if caller.shared.forkCount != 1 {
		t.Errorf("want caller engine forked once, got %d", caller.shared.forkCount)
	}
	if len(caller.shared.matchUpCalls) != 1 {
		t.Errorf("want MatchUp called once, got %d", len(caller.shared.matchUpCalls))
	}
}

func TestExecuteCall_RecursiveCallee_IsUnknownIntern(t *testing.T) {
	callee := fakeCallee{id: "self"}
	ctx := callctx.Root().Extend(fakeCallStmt{pos: "c0", kind: ircfg.TargetDirect, direct: callee}, callee)

	called := false
	factory := func(ircfg.Callee, callctx.Context, execengine.Engine) (callengine.CalleeFixpoint, error) {
		called = true
		return nil, nil
	}
	e := callengine.New(nil, factory, ctx, nil)
	caller := newFakeEngine(testdomain.Exact(0))
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetDirect, direct: callee}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if called {
		t.Error("factory should not run for a recursive callee")
	}
	if caller.shared.unknownInternCalls != 1 {
		t.Errorf("want 1 ExecUnknownInternCall, got %d", caller.shared.unknownInternCalls)
	}
}

// TestExecuteCall_MixedRecursiveSet_HavocsWholeSite exercises the review
// finding that a call site resolving to more than one candidate, only one
// of which is recursive, must still be modeled entirely by
// ExecUnknownInternCall: no candidate, recursive or not, may be analyzed.
func TestExecuteCall_MixedRecursiveSet_HavocsWholeSite(t *testing.T) {
	self := fakeCallee{id: "self"}
	other := fakeCallee{id: "other"}
	ctx := callctx.Root().Extend(fakeCallStmt{pos: "c0", kind: ircfg.TargetDirect, direct: self}, self)

	called := false
	factory := func(ircfg.Callee, callctx.Context, execengine.Engine) (callengine.CalleeFixpoint, error) {
		called = true
		return nil, nil
	}
	oracle := fakeOracle{sets: map[string]ptroracle.PointsToSet{
		"h": constSet{members: []ptroracle.Member{funcMember{callee: self}, funcMember{callee: other}}},
	}}
	e := callengine.New(oracle, factory, ctx, nil)
	caller := newFakeEngine(testdomain.Exact(0))
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetIndirect, loc: fakeLocation{id: "h"}}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if called {
		t.Error("neither candidate should be analyzed once any one of them is recursive")
	}
	if caller.shared.unknownInternCalls != 1 {
		t.Errorf("want exactly 1 ExecUnknownInternCall, got %d", caller.shared.unknownInternCalls)
	}
	if caller.shared.forkCount != 0 {
		t.Errorf("want no forking once the whole call site is havocked, got %d", caller.shared.forkCount)
	}
}

// TestExecuteCall_MultiCalleeJoin exercises the review finding that an
// indirect call site resolving to more than one non-recursive callee must
// join every callee's contribution into the caller's post invariant, not
// overwrite it with the last callee run.
func TestExecuteCall_MultiCalleeJoin(t *testing.T) {
	a := fakeCallee{id: "a"}
	b := fakeCallee{id: "b"}
	fpA := &fakeFixpoint{exit: testdomain.Exact(1)}
	fpB := &fakeFixpoint{exit: testdomain.Exact(2)}
	factory := func(c ircfg.Callee, _ callctx.Context, _ execengine.Engine) (callengine.CalleeFixpoint, error) {
		switch c.ID() {
		case "a":
			return fpA, nil
		case "b":
			return fpB, nil
		default:
			t.Fatalf("unexpected callee %v", c.ID())
			return nil, nil
		}
	}
	oracle := fakeOracle{sets: map[string]ptroracle.PointsToSet{
		"h": constSet{members: []ptroracle.Member{funcMember{callee: a}, funcMember{callee: b}}},
	}}
	e := callengine.New(oracle, factory, callctx.Root(), nil)
	caller := newFakeEngine(testdomain.Exact(0))
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetIndirect, loc: fakeLocation{id: "h"}}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if fpA.calls != 1 || fpB.calls != 1 {
		t.Fatalf("want both callees analyzed once, got a=%d b=%d", fpA.calls, fpB.calls)
	}
	want := testdomain.Range(1, 2)
	if !caller.inv.Leq(want) || !want.Leq(caller.inv) {
		t.Errorf("want caller post joined to %v, got %v", want, caller.inv)
	}
	if caller.shared.forkCount != 2 {
		t.Errorf("want the caller forked once per callee, got %d", caller.shared.forkCount)
	}
}

// TestExecuteCall_ReplayConsumesCallCache exercises the review finding
// that the call cache must be scoped to the owning function fixpoint and
// consumed, Leq-gated, only during deferred-check replay, never during the
// main pass.
func TestExecuteCall_ReplayConsumesCallCache(t *testing.T) {
	callee := fakeCallee{id: "helper"}
	fp := &fakeFixpoint{exit: testdomain.Exact(1)}
	factory := func(ircfg.Callee, callctx.Context, execengine.Engine) (callengine.CalleeFixpoint, error) {
		return fp, nil
	}
	cache := &fakeCallCache{}
	e := callengine.New(nil, factory, callctx.Root(), cache)
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetDirect, direct: callee}

	caller := newFakeEngine(testdomain.Exact(0))
	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("main pass ExecuteCall: %v", err)
	}
	if fp.calls != 1 {
		t.Fatalf("want callee fixpoint run once during the main pass, got %d", fp.calls)
	}
	if e.Replaying() {
		t.Fatal("want the engine not in replay mode yet")
	}

	// A wider entry state than the one the cache was recorded against must
	// not be satisfied by the cached result: Leq fails, so the callee is
	// re-run and the recorded entry is left untouched.
	e.SetReplaying(true)
	wider := newFakeEngine(testdomain.Range(-1, 1))
	if err := e.ExecuteCall(0, call, wider); err != nil {
		t.Fatalf("wider-entry replay ExecuteCall: %v", err)
	}
	e.SetReplaying(false)
	if fp.calls != 2 {
		t.Fatalf("want a Leq-failing entry state to re-run the callee, got %d callee runs", fp.calls)
	}

	// The original (Leq-satisfying) entry state hits and consumes the
	// still-intact cache entry, without re-running the callee.
	e.SetReplaying(true)
	same := newFakeEngine(testdomain.Exact(0))
	if err := e.ExecuteCall(0, call, same); err != nil {
		t.Fatalf("matching-entry replay ExecuteCall: %v", err)
	}
	e.SetReplaying(false)
	if fp.calls != 2 {
		t.Errorf("want the cached result reused at the recorded entry state, got %d callee runs", fp.calls)
	}
	if !same.inv.Leq(testdomain.Exact(1)) || !testdomain.Exact(1).Leq(same.inv) {
		t.Errorf("want the cached result %v installed, got %v", testdomain.Exact(1), same.inv)
	}
	if _, ok := cache.entries[fakeCacheKey{block: 0, call: call}]; ok {
		t.Error("want the cache entry consumed (deleted) after the hit")
	}
}

func TestExecuteCall_IndirectResolvesThroughOracle(t *testing.T) {
	callee := fakeCallee{id: "handler"}
	loc := fakeLocation{id: "h"}
	oracle := fakeOracle{sets: map[string]ptroracle.PointsToSet{
		"h": constSet{members: []ptroracle.Member{funcMember{callee: callee}}},
	}}
	fp := &fakeFixpoint{exit: testdomain.Exact(1)}
	factory := func(c ircfg.Callee, _ callctx.Context, _ execengine.Engine) (callengine.CalleeFixpoint, error) {
		if c.ID() != "handler" {
			t.Errorf("want resolved callee handler, got %v", c.ID())
		}
		return fp, nil
	}
	e := callengine.New(oracle, factory, callctx.Root(), nil)
	caller := newFakeEngine(testdomain.Exact(0))
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetIndirect, loc: loc}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if fp.calls != 1 {
		t.Errorf("want the oracle-resolved callee run once, got %d", fp.calls)
	}
}

func TestExecuteCall_IndirectTop_IsUnknownExtern(t *testing.T) {
	oracle := fakeOracle{sets: map[string]ptroracle.PointsToSet{
		"h": constSet{top: true},
	}}
	e := callengine.New(oracle, nil, callctx.Root(), nil)
	caller := newFakeEngine(testdomain.Exact(0))
	call := fakeCallStmt{pos: "c1", kind: ircfg.TargetIndirect, loc: fakeLocation{id: "h"}}

	if err := e.ExecuteCall(0, call, caller); err != nil {
		t.Fatalf("ExecuteCall: %v", err)
	}
	if caller.shared.unknownExternCalls != 1 {
		t.Errorf("want 1 ExecUnknownExternCall for a Top points-to set, got %d", caller.shared.unknownExternCalls)
	}
}
