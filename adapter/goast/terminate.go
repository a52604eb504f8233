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
	"regexp"
)

// terminatingFuncSig matches a known no-return standard-library or
// common-dependency function by its fully qualified name, the same
// table-driven shape as uber-go/nilaway's hook.IsNoReturnCall, but
// evaluated against go/types objects directly instead of against a
// analysis.Pass.
type terminatingFuncSig struct {
	pkgPathRegex *regexp.Regexp
	nameRegex    *regexp.Regexp
}

var terminatingFuncs = []terminatingFuncSig{
	// os.Exit
	{pkgPathRegex: regexp.MustCompile(`^os$`), nameRegex: regexp.MustCompile(`^Exit$`)},
	// log.Fatal / log.Fatalf / log.Fatalln / log.Panic / log.Panicf / log.Panicln
	{pkgPathRegex: regexp.MustCompile(`^log$`), nameRegex: regexp.MustCompile(`^(Fatal|Panic)(f|ln)?$`)},
	// (*log.Logger).Fatal* / Panic*
	{pkgPathRegex: regexp.MustCompile(`^log\.Logger$`), nameRegex: regexp.MustCompile(`^(Fatal|Panic)(f|ln)?$`)},
	// (*testing.common).Fatal* / FailNow / SkipNow
	{pkgPathRegex: regexp.MustCompile(`^testing\.(common|T|B|F)$`), nameRegex: regexp.MustCompile(`^(Fatal(f)?|FailNow|SkipNow)$`)},
}

// isTerminatingCallExpr reports whether call invokes a function known
// never to return control to its caller, either because it is a
// statically-known terminating stdlib function (the terminatingFuncs
// table) or the builtin panic.
func isTerminatingCallExpr(info *types.Info, call *ast.CallExpr) bool {
	if ident, ok := unparen(call.Fun).(*ast.Ident); ok && ident.Name == "panic" {
		if _, isBuiltin := info.Uses[ident].(*types.Builtin); isBuiltin {
			return true
		}
	}
	ident := funcIdentFromCallExpr(call)
	if ident == nil {
		return false
	}
	fn, ok := info.Uses[ident].(*types.Func)
	if !ok {
		return false
	}
	return isTerminatingFunc(fn)
}

// isTerminatingFunc checks fn's qualified enclosing type (or package, for a
// free function) and name against terminatingFuncs.
func isTerminatingFunc(fn *types.Func) bool {
	if fn.Pkg() == nil {
		return false
	}
	return matchTerminating(enclosingName(fn), fn.Name())
}

// enclosingName returns "pkgpath" for a free function or "pkgpath.Recv"
// for a method, matching the shape terminatingFuncs is written against.
func enclosingName(fn *types.Func) string {
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Recv() == nil {
		return fn.Pkg().Path()
	}
	recvType := sig.Recv().Type()
	if ptr, ok := recvType.(*types.Pointer); ok {
		recvType = ptr.Elem()
	}
	named, ok := recvType.(*types.Named)
	if !ok {
		return fn.Pkg().Path()
	}
	return fn.Pkg().Path() + "." + named.Obj().Name()
}

func matchTerminating(enclosing, name string) bool {
	for _, sig := range terminatingFuncs {
		if sig.pkgPathRegex.MatchString(enclosing) && sig.nameRegex.MatchString(name) {
			return true
		}
	}
	return false
}
