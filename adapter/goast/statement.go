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
	"go/token"
	"go/types"

	"github.com/fixcore-dev/fixcore/ircfg"
)

// ASTStatement is implemented by every ircfg.Statement this package
// produces, exposing the underlying AST node for callers (such as
// reachcheck) that need to report a diagnostic at a precise position.
type ASTStatement interface {
	ircfg.Statement
	Node() ast.Node
}

// plainStatement wraps an AST node that is not a call this package can or
// needs to resolve further (assignments, returns, branch conditions,
// builtin calls, type conversions, ...).
type plainStatement struct {
	node ast.Node
	fset *token.FileSet
}

var _ ASTStatement = plainStatement{}

func (s plainStatement) Pos() string    { return posString(s.fset, s.node) }
func (s plainStatement) Node() ast.Node { return s.node }

// callStatement wraps an *ast.CallExpr this package has classified as
// targeting a resolvable (direct or indirect) callee.
type callStatement struct {
	node        *ast.CallExpr
	fset        *token.FileSet
	targetKind  ircfg.TargetKind
	direct      ircfg.Callee
	indirectLoc ircfg.Location
}

var _ ASTStatement = (*callStatement)(nil)
var _ ircfg.CallStatement = (*callStatement)(nil)

func (s *callStatement) Pos() string            { return posString(s.fset, s.node) }
func (s *callStatement) Node() ast.Node         { return s.node }
func (s *callStatement) TargetKind() ircfg.TargetKind { return s.targetKind }
func (s *callStatement) DirectCallee() ircfg.Callee   { return s.direct }
func (s *callStatement) IndirectVariable() ircfg.Location { return s.indirectLoc }

// newStatement classifies one CFG node, producing a CallStatement only
// when the node is a call expression this program can meaningfully
// resolve (spec §4.3's TargetKind table); builtins, type conversions, and
// every other node become a plain statement instead.
func newStatement(n ast.Node, prog *Program) ircfg.Statement {
	call, ok := n.(*ast.CallExpr)
	if !ok {
		return plainStatement{node: n, fset: prog.fset}
	}
	if prog.info.Types[call.Fun].IsType() {
		// T(x) conversion syntax, not a function call.
		return plainStatement{node: n, fset: prog.fset}
	}

	ident := funcIdentFromCallExpr(call)
	if ident == nil {
		if _, isLit := unparen(call.Fun).(*ast.FuncLit); isLit {
			// Immediately-invoked function literal: indirect with no
			// resolvable location, always treated as an unknown extern
			// call by callengine (spec §4.3's nil-location fallback).
			return &callStatement{node: call, fset: prog.fset, targetKind: ircfg.TargetIndirect}
		}
		return plainStatement{node: n, fset: prog.fset}
	}

	obj := prog.info.Uses[ident]
	if obj == nil {
		obj = prog.info.Defs[ident]
	}
	switch o := obj.(type) {
	case *types.Func:
		if sig, ok := o.Type().(*types.Signature); ok && sig.Recv() != nil && isInterfaceType(sig.Recv().Type()) {
			// Interface method call: the concrete implementation is only
			// known through the receiver's points-to set.
			return &callStatement{node: call, fset: prog.fset, targetKind: ircfg.TargetIndirect, indirectLoc: receiverLocation(call, prog)}
		}
		return &callStatement{node: call, fset: prog.fset, targetKind: ircfg.TargetDirect, direct: prog.calleeFor(o)}
	case *types.Var:
		return &callStatement{node: call, fset: prog.fset, targetKind: ircfg.TargetIndirect, indirectLoc: location{obj: o}}
	case *types.Builtin:
		return plainStatement{node: n, fset: prog.fset}
	default:
		// A call through a nil, a constant, or some other non-function
		// value: undefined behavior (spec §4.3's TargetUndefined case).
		return &callStatement{node: call, fset: prog.fset, targetKind: ircfg.TargetUndefined}
	}
}

// funcIdentFromCallExpr mirrors uber-go/nilaway's util.FuncIdentFromCallExpr:
// the identifier actually bound to the called function, for both bare
// calls (f()) and selector calls (pkg.F() / recv.M()).
func funcIdentFromCallExpr(call *ast.CallExpr) *ast.Ident {
	switch fun := unparen(call.Fun).(type) {
	case *ast.Ident:
		return fun
	case *ast.SelectorExpr:
		return fun.Sel
	default:
		return nil
	}
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}

func isInterfaceType(t types.Type) bool {
	_, ok := t.Underlying().(*types.Interface)
	return ok
}

// receiverLocation resolves the location key used for an interface method
// call's points-to lookup: the receiver expression's own object when it is
// a bare identifier, or nil (forcing a conservative unknown-extern
// treatment) for any more complex receiver expression.
func receiverLocation(call *ast.CallExpr, prog *Program) ircfg.Location {
	sel, ok := unparen(call.Fun).(*ast.SelectorExpr)
	if !ok {
		return nil
	}
	ident, ok := unparen(sel.X).(*ast.Ident)
	if !ok {
		return nil
	}
	obj := prog.info.Uses[ident]
	if obj == nil {
		return nil
	}
	return location{obj: obj}
}

func posString(fset *token.FileSet, n ast.Node) string {
	if n == nil || fset == nil {
		return "<unknown>"
	}
	return fset.Position(n.Pos()).String()
}
