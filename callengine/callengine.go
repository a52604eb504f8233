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

// Package callengine implements the inlining call-execution engine (C4):
// callee resolution, the full-callee-set recursion pre-check, per-callee
// forked execution with exception masking, and call-result caching (spec
// §4.3).
package callengine

import (
	"fmt"

	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/execengine"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/ptroracle"
)

// CalleeFixpoint is the subset of function.Fixpoint's behavior callengine
// needs: run a callee to a stable exit value under a given call context.
// function.Fixpoint implements this interface; callengine never imports
// the function package, which is what keeps C4 and C5 from forming an
// import cycle.
type CalleeFixpoint interface {
	Run(ctx callctx.Context, entry domain.Value) (domain.Value, error)
}

// Factory constructs the CalleeFixpoint for callee, already bound to ctx
// (the call context extended with this call site) and to a forked Engine
// seeded with the callee's entry state.
type Factory func(callee ircfg.Callee, ctx callctx.Context, entryEngine execengine.Engine) (CalleeFixpoint, error)

// CallCache scopes the call-result cache to one function fixpoint (C5),
// keyed by (block, call statement). It is populated during the live main
// pass and consulted only while that same function fixpoint is replaying
// its own deferred checks (spec §3, §4.3); function.Fixpoint implements it.
// A hit must be entry-state Leq-gated and consumed (deleted) so a stale
// result from an earlier, smaller-entry iteration of a cycle is never
// reused.
type CallCache interface {
	// Lookup returns a previously recorded result for (block, call) when
	// entry is Leq the recorded entry state, consuming it on a hit. ok is
	// false on a miss, including when entry is not Leq the recorded entry.
	Lookup(block ircfg.NodeIndex, call ircfg.CallStatement, entry domain.Value) (result domain.Value, ok bool)

	// Record stores the post-invariant produced by analyzing call during
	// the main fixpoint pass, for later consumption by Lookup.
	Record(block ircfg.NodeIndex, call ircfg.CallStatement, entry, result domain.Value)
}

// Engine orchestrates call execution for one function fixpoint. It is
// stateless with respect to any single call's abstract values: all of that
// lives in the execengine.Engine it is handed at each ExecuteCall.
type Engine struct {
	oracle  ptroracle.Oracle
	factory Factory
	ctx     callctx.Context
	cache   CallCache

	replaying bool
}

// New constructs a call-execution engine for one function fixpoint running
// under ctx. oracle may be nil, in which case indirect calls are always
// treated as unknown extern calls. cache may be nil to disable call-result
// caching entirely.
func New(oracle ptroracle.Oracle, factory Factory, ctx callctx.Context, cache CallCache) *Engine {
	return &Engine{
		oracle:  oracle,
		factory: factory,
		ctx:     ctx,
		cache:   cache,
	}
}

// SetReplaying switches e between the main pass (a call is always analyzed
// fresh and, if a CallCache was supplied, its result recorded for later
// replay) and deferred-check replay (a call first tries the cache, falling
// back to a fresh analysis on a miss and never recording). The owning
// function fixpoint toggles this around replaying one of its own deferred
// blocks.
func (e *Engine) SetReplaying(v bool) { e.replaying = v }

// Replaying reports whether e is currently replaying deferred checks, used
// by the owning function fixpoint to decide whether a callee freshly
// spawned mid-replay must itself defer checks or run them immediately.
func (e *Engine) Replaying() bool { return e.replaying }

// ExecuteCall runs call against callerEngine's current state, mutating it
// in place to reflect the call's effect (including installing bottom for
// an unreachable target, or havocking for an unresolvable one). block
// identifies the call's containing block, used only for cache keying.
func (e *Engine) ExecuteCall(block ircfg.NodeIndex, call ircfg.CallStatement, callerEngine execengine.Engine) error {
	entry := callerEngine.Inv()
	if entry.IsNormalFlowBottom() {
		return nil
	}

	if e.replaying && e.cache != nil {
		if cached, ok := e.cache.Lookup(block, call, entry); ok {
			callerEngine.SetInv(cached)
			return nil
		}
	}

	callees, outcome, err := e.resolve(call)
	if err != nil {
		return err
	}

	switch outcome {
	case outcomeBottom:
		callerEngine.SetInv(entry.SetNormalFlowToBottom())
		return nil
	case outcomeUnknownExtern:
		callerEngine.ExecUnknownExternCall(call)
		return nil
	}

	analyzed, err := e.runCallees(block, call, callees, callerEngine, entry)
	if err != nil {
		return err
	}
	if !e.replaying && e.cache != nil && analyzed {
		e.cache.Record(block, call, entry, callerEngine.Inv())
	}
	return nil
}

type resolveOutcome int

const (
	outcomeCallees resolveOutcome = iota
	outcomeBottom
	outcomeUnknownExtern
)

// resolve classifies call by its TargetKind, returning either a concrete
// callee set to analyze or a terminal outcome (spec §4.3 resolution
// table).
func (e *Engine) resolve(call ircfg.CallStatement) ([]ircfg.Callee, resolveOutcome, error) {
	switch call.TargetKind() {
	case ircfg.TargetUndefined:
		return nil, outcomeBottom, nil
	case ircfg.TargetInlineAsm:
		return nil, outcomeUnknownExtern, nil
	case ircfg.TargetDirect:
		callee := call.DirectCallee()
		if callee == nil {
			return nil, outcomeBottom, nil
		}
		return []ircfg.Callee{callee}, outcomeCallees, nil
	case ircfg.TargetIndirect:
		return e.resolveIndirect(call)
	default:
		return nil, outcomeUnknownExtern, fmt.Errorf("callengine: unrecognized target kind %v", call.TargetKind())
	}
}

func (e *Engine) resolveIndirect(call ircfg.CallStatement) ([]ircfg.Callee, resolveOutcome, error) {
	loc := call.IndirectVariable()
	if e.oracle == nil || loc == nil {
		return nil, outcomeUnknownExtern, nil
	}
	pts := e.oracle.Get(loc)
	if pts.IsBottom() {
		return nil, outcomeBottom, nil
	}
	if pts.IsTop() {
		return nil, outcomeUnknownExtern, nil
	}
	var callees []ircfg.Callee
	for _, m := range pts.Members() {
		if fm, ok := m.(ptroracle.FunctionMember); ok {
			callees = append(callees, fm.Callee())
		}
	}
	if len(callees) == 0 {
		return nil, outcomeBottom, nil
	}
	return callees, outcomeCallees, nil
}

// runCallees performs the full-callee-set recursion pre-check: if any
// resolved callee is the caller itself or already on the call-context
// stack, the whole call site is modeled as an unknown intern call and no
// callee is analyzed, even the non-recursive ones in the same set (spec
// §4.3; memopt_inliner.hpp's exec(CallBase*), first callee loop). Only once
// the set is known recursion-free does it fork and run each callee,
// accumulating every result into a fresh post state seeded from the
// caller's exception-only entry and joining each callee's contribution in
// (memopt_inliner.hpp's second callee loop).
func (e *Engine) runCallees(block ircfg.NodeIndex, call ircfg.CallStatement, callees []ircfg.Callee, callerEngine execengine.Engine, entry domain.Value) (bool, error) {
	for _, c := range callees {
		if e.ctx.Contains(c) {
			callerEngine.ExecUnknownInternCall(call)
			return false, nil
		}
	}

	post := entry.SetNormalFlowToBottom()
	analyzedAny := false

	for _, callee := range callees {
		var (
			result domain.Value
			err    error
		)
		if callee.IsExternal() {
			result = e.runExternCallee(call, callee, callerEngine, entry)
		} else {
			result, err = e.runOneCallee(call, callee, callerEngine, entry)
			if err != nil {
				return false, fmt.Errorf("callengine: analyzing callee %v at block %v: %w", callee.ID(), block, err)
			}
			analyzedAny = true
		}
		post = post.Join(result)
	}

	callerEngine.SetInv(post)
	return analyzedAny, nil
}

// runExternCallee models one known external declaration as part of a call
// site's accumulation: forked from the caller's original entry state so
// that sibling callees at the same (possibly indirect) call site never
// observe each other's effects, exceptions masked going in and folded back
// into normal flow coming out (spec §4.3's declaration branch).
func (e *Engine) runExternCallee(call ircfg.CallStatement, callee ircfg.Callee, callerEngine execengine.Engine, entry domain.Value) domain.Value {
	forked := callerEngine.Fork()
	forked.SetInv(entry.IgnoreExceptions())
	forked.ExecExternCall(call, callee)
	result := forked.Inv()
	return result.MergePropagatedInCaughtExceptions(result)
}

// runOneCallee forks callerEngine from entry, binds arguments, runs the
// callee's own fixpoint to stability, and folds its exit state back in as
// this call site's contribution from that one callee. The caller joins the
// returned value into its own accumulator rather than installing it
// directly, since a call site may resolve to more than one callee (spec
// §4.3's definition branch).
func (e *Engine) runOneCallee(call ircfg.CallStatement, callee ircfg.Callee, callerEngine execengine.Engine, entry domain.Value) (domain.Value, error) {
	forked := callerEngine.Fork()
	forked.SetInv(entry.IgnoreExceptions())
	bound := forked.MatchDown(call, callee)
	forked.SetInv(bound)

	childCtx := e.ctx.Extend(call, callee)
	child, err := e.factory(callee, childCtx, forked)
	if err != nil {
		return nil, err
	}
	exitState, err := child.Run(childCtx, bound)
	if err != nil {
		return nil, err
	}

	forked.SetInv(exitState)
	merged := forked.Inv().MergePropagatedInCaughtExceptions(forked.Inv())
	forked.SetInv(merged)
	if forked.Inv().IsNormalFlowBottom() {
		return forked.Inv(), nil
	}

	forked.MatchUp(call, exitState)
	return forked.Inv(), nil
}
