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
)

// Callee is a resolved, statically-known Go function. ID() returns the
// *types.Func object itself, which is already unique and comparable within
// one type-checked package, and stable across every call site that targets
// the same function.
type Callee struct {
	obj  *types.Func
	decl *ast.FuncDecl
	prog *Program
}

var _ ircfg.Callee = (*Callee)(nil)

func (c *Callee) ID() any { return c.obj }

// IsExternal reports true for standard library functions, cgo stubs, and
// any other function whose *ast.FuncDecl (and therefore body) this
// program's package does not contain.
func (c *Callee) IsExternal() bool {
	return c.decl == nil || c.decl.Body == nil
}

func (c *Callee) Graph() ircfg.Graph {
	return c.prog.GraphFor(c.decl)
}
