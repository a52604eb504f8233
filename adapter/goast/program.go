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

// Package goast adapts golang.org/x/tools/go/cfg and go/types into the
// ircfg, execengine and ptroracle contracts the fixcore core depends on,
// the way uber-go/nilaway's assertion/function/preprocess package adapts
// the same cfg.CFG into its own backward-propagation IR.
package goast

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/cfg"

	"github.com/fixcore-dev/fixcore/ircfg"
)

// Program bundles the type-checked package information needed to turn a
// *ast.FuncDecl into an ircfg.Graph and to resolve call targets across the
// whole package, memoizing both per-function CFGs and per-function Callee
// handles so repeated lookups (e.g. the same callee inlined at several call
// sites) share one instance.
type Program struct {
	fset *token.FileSet
	info *types.Info
	pkg  *types.Package

	// declByObj maps a package-level or method *types.Func to the
	// *ast.FuncDecl that defines it, used to resolve callee bodies across
	// the whole package rather than just the function currently being
	// analyzed.
	declByObj map[*types.Func]*ast.FuncDecl

	graphs  map[*ast.FuncDecl]*Graph
	callees map[*types.Func]*Callee

	oracle *Oracle
}

// NewProgram indexes every function declaration in files (every
// *ast.FuncDecl across the files of one package) so that call resolution
// can find a callee's body regardless of which file declares it.
func NewProgram(fset *token.FileSet, info *types.Info, pkg *types.Package, files []*ast.File) *Program {
	p := &Program{
		fset:      fset,
		info:      info,
		pkg:       pkg,
		declByObj: make(map[*types.Func]*ast.FuncDecl),
		graphs:    make(map[*ast.FuncDecl]*Graph),
		callees:   make(map[*types.Func]*Callee),
	}
	var decls []*ast.FuncDecl
	for _, f := range files {
		for _, d := range f.Decls {
			if fd, ok := d.(*ast.FuncDecl); ok {
				decls = append(decls, fd)
				if obj, ok := info.Defs[fd.Name].(*types.Func); ok {
					p.declByObj[obj] = fd
				}
			}
		}
	}
	p.oracle = newOracle(info, p, files)
	return p
}

// Oracle returns this program's package-wide points-to oracle.
func (p *Program) Oracle() *Oracle { return p.oracle }

// GraphFor builds (or returns the memoized) ircfg.Graph for decl.
func (p *Program) GraphFor(decl *ast.FuncDecl) *Graph {
	if g, ok := p.graphs[decl]; ok {
		return g
	}
	raw := cfg.New(decl.Body, p.mayReturn)
	g := newGraph(raw, p)
	p.graphs[decl] = g
	return g
}

// mayReturn is the predicate cfg.New uses to decide whether a call
// statement terminates its block. A function is treated as never returning
// only when this program has resolved it to a known terminating standard
// library call (os.Exit, log.Fatal*, *testing.common.FailNow, ...); every
// other call is conservatively assumed to return, matching cfg.New's own
// default and uber-go/nilaway's restructureOnNoReturnCall, which performs
// the equivalent narrowing after the fact instead of during the build.
func (p *Program) mayReturn(call *ast.CallExpr) bool {
	return !isTerminatingCallExpr(p.info, call)
}

// calleeFor returns the memoized Callee handle for obj, building one (with
// no body, i.e. external) if obj has no indexed declaration.
func (p *Program) calleeFor(obj *types.Func) *Callee {
	if c, ok := p.callees[obj]; ok {
		return c
	}
	c := &Callee{obj: obj, decl: p.declByObj[obj], prog: p}
	p.callees[obj] = c
	return c
}

// ID implements ircfg.Location for a types.Object-backed pointer variable.
type location struct{ obj types.Object }

func (l location) ID() any { return l.obj }

var _ ircfg.Location = location{}
