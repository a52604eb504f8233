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

import (
	"go/ast"

	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/execengine"
	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/ptroracle"
)

// Engine is the reachability domain's execengine.Engine: it tracks, per
// function fixpoint, only whether the current program point is reachable
// (State), collapsing to bottom the moment it executes a block containing
// a call to panic or another known-terminating function. It implements
// execengine.Wireable so that function.NewEntry/newCallee can hand it a
// callengine.Engine to delegate real (non-terminating) call resolution to,
// without this package importing callengine.
type Engine struct {
	inv    domain.Value
	oracle ptroracle.Oracle
	exec   execengine.CallExecutor
}

var (
	_ execengine.Engine    = (*Engine)(nil)
	_ execengine.Wireable  = (*Engine)(nil)
)

// NewEngine constructs a reachability engine for one function fixpoint,
// backed by the given program's points-to oracle.
func NewEngine(oracle *Oracle) *Engine {
	return &Engine{inv: Bottom(), oracle: oracle}
}

func (e *Engine) SetCallExecutor(c execengine.CallExecutor) { e.exec = c }

func (e *Engine) SetInv(v domain.Value) { e.inv = v }
func (e *Engine) Inv() domain.Value     { return e.inv }

// ExecEnter has nothing to do for a domain with no scoped variable state.
func (e *Engine) ExecEnter(ircfg.Block) {}

// ExecLeave runs every statement of bb against the current reachability
// state: call statements are delegated to the wired CallExecutor (which
// may itself collapse the state to bottom, e.g. for a TargetUndefined
// call), and a call to the builtin panic collapses normal flow to bottom
// directly, mirroring uber-go/nilaway's restructureOnNoReturnCall. Other
// terminating calls (os.Exit, log.Fatal, ...) collapse it only through the
// CallExecutor's extern-call path, so only when an executor is wired.
func (e *Engine) ExecLeave(bb ircfg.Block) {
	for _, stmt := range bb.Statements() {
		if e.inv.IsNormalFlowBottom() {
			return
		}
		if cs, ok := stmt.(ircfg.CallStatement); ok && e.exec != nil {
			// A malformed or unresolvable call is treated conservatively
			// as still reachable: ExecuteCall only returns an error for
			// programming bugs in the core itself, never for anything a
			// concrete engine can recover from here.
			_ = e.exec.ExecuteCall(bb.Index(), cs, e)
		}
		if as, ok := stmt.(ASTStatement); ok {
			if call, ok := as.Node().(*ast.CallExpr); ok && isPanicLiteral(call) {
				e.inv = e.inv.SetNormalFlowToBottom()
			}
		}
	}
}

func isPanicLiteral(call *ast.CallExpr) bool {
	ident, ok := unparen(call.Fun).(*ast.Ident)
	return ok && ident.Name == "panic"
}

// ExecEdge performs no condition-directed refinement: the reachability
// domain carries no information about branch conditions, only about
// whether a point is reached at all.
func (e *Engine) ExecEdge(ircfg.Block, ircfg.Block) domain.Value { return e.inv }

// ExecExternCall collapses to bottom if callee is a statically known
// terminating stdlib function; otherwise a known external call is assumed
// to return normally.
func (e *Engine) ExecExternCall(call ircfg.CallStatement, callee ircfg.Callee) {
	if c, ok := callee.(*Callee); ok && isTerminatingFunc(c.obj) {
		e.inv = e.inv.SetNormalFlowToBottom()
	}
}

// ExecUnknownExternCall conservatively assumes the call returns normally:
// the reachability domain has no pointer-typed parameters to havoc.
func (e *Engine) ExecUnknownExternCall(ircfg.CallStatement) {}

// ExecUnknownInternCall likewise assumes normal return; recursion and
// unresolved internal calls are not, on their own, evidence of
// non-termination.
func (e *Engine) ExecUnknownInternCall(ircfg.CallStatement) {}

// MatchDown seeds the callee's entry with the caller's own current
// reachability: the callee executes iff the call site itself was reached.
func (e *Engine) MatchDown(ircfg.CallStatement, ircfg.Callee) domain.Value { return e.inv }

// MatchUp folds the callee's own exit reachability back in: if the callee
// never returns along its normal flow (e.g. it unconditionally panics),
// neither does the call site.
func (e *Engine) MatchUp(_ ircfg.CallStatement, calleeExit domain.Value) {
	exit := calleeExit.(State)
	cur := e.inv.(State)
	e.inv = State{normal: cur.normal && exit.normal, exceptional: cur.exceptional || exit.exceptional}
}

// DeallocateLocalVariables is a no-op: the reachability domain tracks no
// per-variable state.
func (e *Engine) DeallocateLocalVariables(ircfg.Statement, ircfg.Statement) {}

// Fork returns a fresh Engine sharing this one's oracle but starting from
// bottom; callengine immediately calls SetInv with the forked entry state.
func (e *Engine) Fork() execengine.Engine {
	return &Engine{inv: Bottom(), oracle: e.oracle}
}

func (e *Engine) PointerInfo() ptroracle.Oracle { return e.oracle }
