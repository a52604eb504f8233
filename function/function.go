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

// Package function implements the function-fixpoint adapter (C5): it owns
// one wto.WTO, one fixpoint.Iterator and one callengine.Engine per
// function body, and drives the entry-mode/callee-mode distinction that
// lets checker findings be reported immediately at the entry function but
// replayed only after the whole call tree stabilizes everywhere else
// (spec §4.4).
package function

import (
	"fmt"

	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/callengine"
	"github.com/fixcore-dev/fixcore/checker"
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/execengine"
	"github.com/fixcore-dev/fixcore/fixpoint"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/wto"
)

// Fixpoint is one function body's fixpoint, in either entry mode (the
// top-level function an analysis pass is asked to check) or callee mode
// (everything reached by inlining).
type Fixpoint struct {
	graph    ircfg.Graph
	w        *wto.WTO
	engine   execengine.Engine
	checkers []checker.Checker
	params   fixpoint.Params
	ctx      callctx.Context
	bottom   domain.Value

	cacheCalls bool

	iter  *fixpoint.Iterator
	calls *callengine.Engine

	// calleeCache memoizes this function's own repeated calls to the same
	// callee: if a later call's entry state is Leq the cached one, the
	// monotone transfer function guarantees the cached exit state is still
	// a safe (if possibly imprecise) result.
	calleeCache map[any]calleeCacheEntry

	// callCache backs callengine.CallCache for this fixpoint's own calls
	// engine (spec §3, §4.3's call cache, C5-scoped): written during the
	// live main pass, consumed during this fixpoint's own deferred-check
	// replay only.
	callCache map[callCacheKey]callCacheEntry

	deferredChecks []deferredEntry
}

type calleeCacheEntry struct {
	entryState domain.Value
	exitState  domain.Value
}

type callCacheKey struct {
	block ircfg.NodeIndex
	call  ircfg.CallStatement
}

type callCacheEntry struct {
	entry  domain.Value
	result domain.Value
}

// deferredEntry pairs one deferred check snapshot with the engine and calls
// engine that originally produced it, so RunAllDeferredChecks can replay
// the right block against the right Engine even after checks accumulated
// from deeply inlined callees have been flattened into the top-level
// Fixpoint's own list.
type deferredEntry struct {
	check  fixpoint.DeferredCheck
	engine execengine.Engine
	calls  *callengine.Engine
}

// Lookup implements callengine.CallCache.
func (f *Fixpoint) Lookup(block ircfg.NodeIndex, call ircfg.CallStatement, entry domain.Value) (domain.Value, bool) {
	key := callCacheKey{block: block, call: call}
	cached, ok := f.callCache[key]
	if !ok || !entry.Leq(cached.entry) {
		return nil, false
	}
	delete(f.callCache, key)
	return cached.result, true
}

// Record implements callengine.CallCache.
func (f *Fixpoint) Record(block ircfg.NodeIndex, call ircfg.CallStatement, entry, result domain.Value) {
	if f.callCache == nil {
		f.callCache = make(map[callCacheKey]callCacheEntry)
	}
	f.callCache[callCacheKey{block: block, call: call}] = callCacheEntry{entry: entry, result: result}
}

var _ callengine.CallCache = (*Fixpoint)(nil)

// NewEntry constructs the top-level fixpoint for a function an analysis
// pass is directly asked to check. Its own check-bearing statements are
// evaluated immediately; RunAllDeferredChecks must still be called
// afterwards to flush findings accumulated from inlined callees, which
// always run in callee mode.
func NewEntry(graph ircfg.Graph, engine execengine.Engine, checkers []checker.Checker, params fixpoint.Params, bottom domain.Value, cacheCalls bool) *Fixpoint {
	f := &Fixpoint{
		graph:       graph,
		engine:      engine,
		checkers:    checkers,
		params:      params,
		ctx:         callctx.Root(),
		bottom:      bottom,
		cacheCalls:  cacheCalls,
		calleeCache: make(map[any]calleeCacheEntry),
	}
	f.w = wto.Build(graph, checkers)
	f.iter = fixpoint.New(graph, f.w, engine, checkers, params, f.ctx)
	f.calls = callengine.New(engine.PointerInfo(), f.makeFactory(), f.ctx, f.callCacheOrNil())
	wireCallExecutor(engine, f.calls)
	return f
}

// newCallee constructs a callee-mode fixpoint. deferChecks controls whether
// its check-bearing statements are snapshotted for later replay (the
// ordinary case) or evaluated immediately, which a callee spawned while its
// parent is already replaying deferred checks must do, since it will never
// itself be revisited by a later RunAllDeferredChecks (spec §4.4;
// memopt_function_fixpoint.cpp's set_defer_checks(false) immediately before
// replay).
func newCallee(graph ircfg.Graph, engine execengine.Engine, checkers []checker.Checker, params fixpoint.Params, bottom domain.Value, cacheCalls bool, ctx callctx.Context, deferChecks bool) *Fixpoint {
	f := &Fixpoint{
		graph:       graph,
		engine:      engine,
		checkers:    checkers,
		params:      params,
		ctx:         ctx,
		bottom:      bottom,
		cacheCalls:  cacheCalls,
		calleeCache: make(map[any]calleeCacheEntry),
	}
	f.w = wto.Build(graph, checkers)
	f.iter = fixpoint.New(graph, f.w, engine, checkers, params, ctx)
	f.iter.DeferChecks = deferChecks
	f.calls = callengine.New(engine.PointerInfo(), f.makeFactory(), ctx, f.callCacheOrNil())
	wireCallExecutor(engine, f.calls)
	return f
}

// callCacheOrNil returns f itself as a callengine.CallCache when call
// caching is enabled, or nil to disable it, since callengine.Engine treats
// a nil CallCache as "caching off" rather than panicking on it.
func (f *Fixpoint) callCacheOrNil() callengine.CallCache {
	if !f.cacheCalls {
		return nil
	}
	return f
}

// wireCallExecutor connects calls to engine if engine opts into deferring
// call-statement execution (spec §4.3's layering: a concrete Engine never
// imports callengine directly).
func wireCallExecutor(engine execengine.Engine, calls *callengine.Engine) {
	if w, ok := engine.(execengine.Wireable); ok {
		w.SetCallExecutor(calls)
	}
}

// Run drives this function's fixpoint to stability from entry, returning
// its exit invariant. It implements callengine.CalleeFixpoint so that
// callengine can run a callee without importing this package.
func (f *Fixpoint) Run(ctx callctx.Context, entry domain.Value) (domain.Value, error) {
	exitVal, err := f.iter.Run(f.bottom, entry)
	if err != nil {
		return nil, fmt.Errorf("function: running fixpoint at depth %d: %w", ctx.Depth(), err)
	}
	for _, dc := range f.iter.DeferredChecks() {
		f.deferredChecks = append(f.deferredChecks, deferredEntry{check: dc, engine: f.engine, calls: f.calls})
	}
	return exitVal, nil
}

// RunAllDeferredChecks replays every check snapshot accumulated by this
// function's own run and by every callee it inlined, transitively. Only
// meaningful on an entry-mode Fixpoint, after Run has completed.
func (f *Fixpoint) RunAllDeferredChecks() {
	for _, de := range f.deferredChecks {
		f.replayDeferred(de)
	}
	f.deferredChecks = nil
}

// replayDeferred re-executes one deferred block for real, against the
// engine and calls engine that originally produced it, with that calls
// engine switched into replay mode so any call cache entry recorded for it
// during the main pass is genuinely consumed (or, on a miss, the callee is
// freshly analyzed with its own checks run immediately rather than
// deferred again). Checkers are then evaluated against the snapshot
// invariant captured when the block was first reached, not against
// whatever the re-execution produced (spec §4.4;
// memopt_function_fixpoint.cpp's run_deferred_checks).
func (f *Fixpoint) replayDeferred(de deferredEntry) {
	de.calls.SetReplaying(true)
	defer de.calls.SetReplaying(false)

	de.engine.SetInv(de.check.Pre)
	de.engine.ExecEnter(de.check.Block)
	de.engine.ExecLeave(de.check.Block)

	for _, stmt := range de.check.Block.Statements() {
		for _, c := range f.checkers {
			if c.HasCheck(stmt) {
				c.Check(stmt, de.check.Pre, de.check.Ctx)
			}
		}
	}
}

// makeFactory returns the callengine.Factory this function hands to its
// own call engine, closing over its callee cache.
func (f *Fixpoint) makeFactory() callengine.Factory {
	return func(callee ircfg.Callee, ctx callctx.Context, entryEngine execengine.Engine) (callengine.CalleeFixpoint, error) {
		return &calleeThunk{parent: f, callee: callee, engine: entryEngine}, nil
	}
}

// calleeThunk is the callengine.CalleeFixpoint handed back to callengine
// for one specific call; it defers actually building the callee's WTO and
// iterator until Run is called, and folds the callee's own deferred
// checks back into the parent's list once done.
type calleeThunk struct {
	parent *Fixpoint
	callee ircfg.Callee
	engine execengine.Engine
}

func (t *calleeThunk) Run(ctx callctx.Context, entry domain.Value) (domain.Value, error) {
	if cached, ok := t.parent.calleeCache[t.callee.ID()]; ok && entry.Leq(cached.entryState) {
		return cached.exitState, nil
	}

	g := t.callee.Graph()
	if g == nil {
		return t.parent.bottom, nil
	}

	deferChecks := !t.parent.calls.Replaying()
	child := newCallee(g, t.engine, t.parent.checkers, t.parent.params, t.parent.bottom, t.parent.cacheCalls, ctx, deferChecks)
	exitVal, err := child.Run(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("function: callee %v: %w", t.callee.ID(), err)
	}
	if !deferChecks {
		// Spawned mid-replay: no later replay will visit this callee, so
		// the checks its own callees deferred are drained here.
		child.RunAllDeferredChecks()
	}
	t.parent.deferredChecks = append(t.parent.deferredChecks, child.deferredChecks...)
	t.parent.calleeCache[t.callee.ID()] = calleeCacheEntry{entryState: entry, exitState: exitVal}
	return exitVal, nil
}
