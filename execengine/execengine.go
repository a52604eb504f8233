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

// Package execengine defines the numerical execution-engine contract: the
// per-statement transfer function collaborator that both fixpoint and
// callengine drive. The engine itself is the externally-supplied
// "domain-specific interpreter"; the core only ever calls these methods in
// a fixed protocol, never inspecting what they do internally.
package execengine

import (
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/ptroracle"
)

// Engine is implemented once per concrete domain and instantiated once per
// function fixpoint (see Fork for how callengine gives each callee its own
// engine instance sharing the parent's read-only context).
type Engine interface {
	// SetInv installs v as the engine's current abstract state.
	SetInv(v domain.Value)

	// Inv returns the engine's current abstract state.
	Inv() domain.Value

	// ExecEnter runs any entry-of-block bookkeeping for bb (e.g. scope
	// push) against the engine's current state.
	ExecEnter(bb ircfg.Block)

	// ExecLeave runs any exit-of-block bookkeeping for bb, including
	// executing the block's statements against the engine's current state.
	// The per-statement transfer itself (including delegating call
	// statements back out to callengine) happens here.
	ExecLeave(bb ircfg.Block)

	// ExecEdge runs the transfer function specific to the edge from src to
	// dest (e.g. applying a branch condition), returning the resulting
	// value; it does not mutate the engine's stored Inv.
	ExecEdge(src, dest ircfg.Block) domain.Value

	// ExecExternCall runs the modeled effect of a known external
	// declaration callee at the given call statement.
	ExecExternCall(call ircfg.CallStatement, callee ircfg.Callee)

	// ExecUnknownExternCall conservatively havocs the effect of a call
	// whose callee cannot be resolved precisely but is known to be
	// (possibly) external: pointer-typed parameters and the return value
	// are havoced, everything else preserved.
	ExecUnknownExternCall(call ircfg.CallStatement)

	// ExecUnknownInternCall conservatively havocs the effect of a call
	// whose callee is internal but must not be analyzed further
	// (recursion). An oracle top result goes to ExecUnknownExternCall.
	ExecUnknownInternCall(call ircfg.CallStatement)

	// MatchDown binds the actual arguments at call to the formal
	// parameters of callee, producing the abstract state to seed the
	// callee's entry fixpoint.
	MatchDown(call ircfg.CallStatement, callee ircfg.Callee) domain.Value

	// MatchUp writes calleeExit, the callee's stabilized exit abstract
	// state, back into the engine's own current state at the call site
	// (binding the return value, merging side effects on shared memory).
	MatchUp(call ircfg.CallStatement, calleeExit domain.Value)

	// DeallocateLocalVariables drops from the engine's current state any
	// tracked information about local variables declared within the given
	// statement range, used when a block's scope ends.
	DeallocateLocalVariables(from, to ircfg.Statement)

	// Fork returns a new Engine sharing this engine's immutable analysis
	// context (type information, configuration) but starting with an
	// independent abstract state, used by callengine to give a forked
	// caller state to a callee's own engine.
	Fork() Engine

	// PointerInfo returns the pointer oracle available to this engine, if
	// any. A nil return means no oracle is available and indirect calls
	// with TargetIndirect must be treated conservatively.
	PointerInfo() ptroracle.Oracle
}

// CallExecutor is implemented by the callengine.Engine that owns this
// Engine's call resolution and per-callee forking. It is declared here,
// rather than imported from callengine, so that a concrete Engine
// implementation never needs to import callengine directly; only the
// function package (which constructs both) needs to know the concrete
// type satisfies this interface structurally.
type CallExecutor interface {
	ExecuteCall(block ircfg.NodeIndex, call ircfg.CallStatement, caller Engine) error
}

// Wireable is implemented by a concrete Engine that defers call execution
// to a CallExecutor supplied after construction, once the owning function
// fixpoint has built one.
type Wireable interface {
	SetCallExecutor(CallExecutor)
}
