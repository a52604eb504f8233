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

// Package fixcore implements the top-level analyzer: for every function
// declared in the package under analysis, it builds a CFG through
// adapter/goast, drives the function-fixpoint adapter (package function)
// to a stable exit state, and reports whatever adapter/goast/reachcheck
// found unreachable along the way.
package fixcore

import (
	"fmt"
	"go/ast"

	"golang.org/x/tools/go/analysis"

	"github.com/fixcore-dev/fixcore/adapter/goast"
	"github.com/fixcore-dev/fixcore/adapter/goast/reachcheck"
	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/checker"
	"github.com/fixcore-dev/fixcore/config"
	"github.com/fixcore-dev/fixcore/fixpoint"
	"github.com/fixcore-dev/fixcore/function"
)

const _doc = "Run fixcore on this package to report statements that are unreachable along every" +
	" possible call path, using a memory-optimized interprocedural fixpoint core"

// Analyzer is the top-level instance of the fixcore analyzer.
var Analyzer = &analysis.Analyzer{
	Name:     "fixcore",
	Doc:      _doc,
	Run:      run,
	Requires: []*analysis.Analyzer{config.Analyzer},
}

func run(pass *analysis.Pass) (any, error) {
	conf := pass.ResultOf[config.Analyzer].(*config.Config)
	prog := goast.NewProgram(pass.Fset, pass.TypesInfo, pass.Pkg, pass.Files)
	checkers := []checker.Checker{reachcheck.New(pass)}
	params := conf.Params()

	for _, file := range pass.Files {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Body == nil {
				continue
			}
			if err := runFunc(prog, fd, checkers, params, conf.CacheCalls); err != nil {
				return nil, fmt.Errorf("fixcore: analyzing %s: %w", fd.Name.Name, err)
			}
		}
	}
	return nil, nil
}

// runFunc drives one top-level function's fixpoint to stability (entry
// mode) and then flushes every deferred check accumulated by it and by
// everything it transitively inlined (spec §4.4).
func runFunc(prog *goast.Program, fd *ast.FuncDecl, checkers []checker.Checker, params fixpoint.Params, cacheCalls bool) error {
	graph := prog.GraphFor(fd)
	engine := goast.NewEngine(prog.Oracle())
	f := function.NewEntry(graph, engine, checkers, params, goast.Bottom(), cacheCalls)

	if _, err := f.Run(callctx.Root(), goast.Reachable()); err != nil {
		return err
	}
	f.RunAllDeferredChecks()
	return nil
}
