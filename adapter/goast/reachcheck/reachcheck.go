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

// Package reachcheck implements an unreachable-code checker.Checker bound
// to the adapter/goast reachability domain: it flags any statement whose
// pre-invariant shows the block containing it can never be reached along
// normal control flow, e.g. code placed after an unconditional panic or
// os.Exit call.
package reachcheck

import (
	"fmt"

	"golang.org/x/tools/go/analysis"

	"github.com/fixcore-dev/fixcore/adapter/goast"
	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/ircfg"
)

// Checker reports every statement found unreachable in at least one call
// context, deduplicated by source position so that the same dead block
// reached through several inlined call paths is reported only once.
type Checker struct {
	pass     *analysis.Pass
	reported map[string]bool
}

// New constructs a reachability checker that reports findings on pass.
func New(pass *analysis.Pass) *Checker {
	return &Checker{pass: pass, reported: make(map[string]bool)}
}

// HasCheck reports true unconditionally: every statement's pre-invariant
// is worth retaining for replay, since any one of them might turn out to
// sit in dead code once the whole function (and everything it calls) has
// been analyzed.
func (c *Checker) HasCheck(stmt ircfg.Statement) bool { return true }

// Check reports stmt as unreachable if pre shows its block's normal flow
// is already bottom by the time execution would reach it.
func (c *Checker) Check(stmt ircfg.Statement, pre domain.Value, ctx callctx.Context) {
	st, ok := pre.(goast.State)
	if !ok || !st.IsNormalFlowBottom() {
		return
	}
	as, ok := stmt.(goast.ASTStatement)
	if !ok {
		return
	}
	node := as.Node()
	if node == nil {
		return
	}
	key := fmt.Sprintf("%d", node.Pos())
	if c.reported[key] {
		return
	}
	c.reported[key] = true
	c.pass.Reportf(node.Pos(), "unreachable code")
}

var _ interface {
	HasCheck(ircfg.Statement) bool
	Check(ircfg.Statement, domain.Value, callctx.Context)
} = (*Checker)(nil)
