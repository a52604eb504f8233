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
	"go/types"

	"github.com/fixcore-dev/fixcore/ircfg"
	"github.com/fixcore-dev/fixcore/ptroracle"
)

// Oracle is a heuristic, syntactic points-to oracle: it answers "what
// functions could this variable hold" by scanning every assignment and
// variable declaration in the package for a function-typed right-hand
// side, without doing real alias analysis. callengine resolves indirect
// calls from this answer as it stands, with no further refinement by the
// value domain.
type Oracle struct {
	info       *types.Info
	prog       *Program
	candidates map[types.Object][]*types.Func
}

var _ ptroracle.Oracle = (*Oracle)(nil)

func newOracle(info *types.Info, prog *Program, files []*ast.File) *Oracle {
	o := &Oracle{info: info, prog: prog, candidates: make(map[types.Object][]*types.Func)}
	for _, f := range files {
		ast.Inspect(f, func(n ast.Node) bool {
			switch stmt := n.(type) {
			case *ast.AssignStmt:
				o.recordAssign(stmt.Lhs, stmt.Rhs)
			case *ast.ValueSpec:
				o.recordValueSpec(stmt)
			}
			return true
		})
	}
	return o
}

func (o *Oracle) recordAssign(lhs, rhs []ast.Expr) {
	if len(lhs) != len(rhs) {
		return
	}
	for i, l := range lhs {
		o.recordPair(l, rhs[i])
	}
}

func (o *Oracle) recordValueSpec(spec *ast.ValueSpec) {
	if len(spec.Names) != len(spec.Values) {
		return
	}
	for i, name := range spec.Names {
		o.recordPair(name, spec.Values[i])
	}
}

func (o *Oracle) recordPair(target, value ast.Expr) {
	ident, ok := target.(*ast.Ident)
	if !ok {
		return
	}
	obj := o.info.Defs[ident]
	if obj == nil {
		obj = o.info.Uses[ident]
	}
	if obj == nil {
		return
	}
	fn := o.resolveFuncValue(value)
	if fn == nil {
		return
	}
	o.candidates[obj] = append(o.candidates[obj], fn)
}

// resolveFuncValue returns the *types.Func a function-valued expression
// statically denotes: a bare function reference (f, pkg.F) or a method
// value/expression (recv.M, T.M). Anything else (a call, a composite
// literal, an arithmetic expression) cannot statically be a function value
// under this heuristic.
func (o *Oracle) resolveFuncValue(expr ast.Expr) *types.Func {
	switch e := unparen(expr).(type) {
	case *ast.Ident:
		fn, _ := o.info.Uses[e].(*types.Func)
		return fn
	case *ast.SelectorExpr:
		fn, _ := o.info.Uses[e.Sel].(*types.Func)
		return fn
	case *ast.FuncLit:
		// Literal closures have no *types.Func identity; they can only be
		// resolved through the value domain itself, not this oracle.
		return nil
	default:
		return nil
	}
}

// Get implements ptroracle.Oracle. An unrecognized location type, or one
// with no indexed candidates, yields Top (no information) rather than
// Bottom, matching the conservative default for an external or
// unmodeled variable.
func (o *Oracle) Get(loc ircfg.Location) ptroracle.PointsToSet {
	l, ok := loc.(location)
	if !ok {
		return topSet{}
	}
	fns, ok := o.candidates[l.obj]
	if !ok || len(fns) == 0 {
		return topSet{}
	}
	members := make([]ptroracle.Member, len(fns))
	for i, fn := range fns {
		members[i] = funcMember{obj: fn, callee: o.prog.calleeFor(fn)}
	}
	return &memberSet{members: members}
}

// funcMember is a ptroracle.FunctionMember over a *types.Func, with its
// Callee resolved (and memoized) eagerly through the owning Program.
type funcMember struct {
	obj    *types.Func
	callee ircfg.Callee
}

func (m funcMember) ID() any              { return m.obj }
func (m funcMember) Callee() ircfg.Callee { return m.callee }

var _ ptroracle.FunctionMember = funcMember{}

type memberSet struct {
	members []ptroracle.Member
}

func (s *memberSet) IsBottom() bool { return len(s.members) == 0 }
func (s *memberSet) IsTop() bool    { return false }
func (s *memberSet) Members() []ptroracle.Member { return s.members }
func (s *memberSet) Intersect(other ptroracle.PointsToSet) ptroracle.PointsToSet {
	if other.IsTop() {
		return s
	}
	if other.IsBottom() {
		return other
	}
	keep := make(map[any]bool, len(s.members))
	for _, m := range s.members {
		keep[m.ID()] = true
	}
	var out []ptroracle.Member
	for _, m := range other.Members() {
		if keep[m.ID()] {
			out = append(out, m)
		}
	}
	return &memberSet{members: out}
}

type topSet struct{}

func (topSet) IsBottom() bool                                             { return false }
func (topSet) IsTop() bool                                                { return true }
func (topSet) Members() []ptroracle.Member                                { return nil }
func (topSet) Intersect(other ptroracle.PointsToSet) ptroracle.PointsToSet { return other }
