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

// Package callctx implements the call context used to distinguish
// contexts during inlining and to detect recursion before a callee is
// ever analyzed (spec §4.3, §9 "Recursive callee fixpoints").
package callctx

import "github.com/fixcore-dev/fixcore/ircfg"

// Context is an immutable sequence of call sites representing one path
// through the call graph from the top-level entry to the current function
// fixpoint. Contexts are not interned: every Extend copies the chain into
// a new Context, and because Context holds slices it cannot be compared
// with ==. The core never serializes or persists a Context (spec's
// Non-goals exclude persistence).
type Context struct {
	// sites is the call-site chain, outermost (entry-adjacent) first. It is
	// never mutated after construction: Extend always allocates a new
	// backing array.
	sites []ircfg.CallStatement
	// callees mirrors sites one-to-one, recording which callee was chosen
	// at each call site; this is what recursion detection actually walks.
	callees []ircfg.Callee
}

// Root returns the empty call context for a top-level entry function.
func Root() Context {
	return Context{}
}

// Extend returns a new Context representing a call from this context
// through site into callee. The receiver is left unmodified.
func (c Context) Extend(site ircfg.CallStatement, callee ircfg.Callee) Context {
	sites := make([]ircfg.CallStatement, len(c.sites)+1)
	copy(sites, c.sites)
	sites[len(sites)-1] = site

	callees := make([]ircfg.Callee, len(c.callees)+1)
	copy(callees, c.callees)
	callees[len(callees)-1] = callee

	return Context{sites: sites, callees: callees}
}

// Contains reports whether callee already appears anywhere in this
// context's chain, i.e. whether resolving it again would recurse.
func (c Context) Contains(callee ircfg.Callee) bool {
	for _, seen := range c.callees {
		if seen.ID() == callee.ID() {
			return true
		}
	}
	return false
}

// Depth returns the number of call sites in this context.
func (c Context) Depth() int {
	return len(c.sites)
}

// Sites returns the call-site chain, outermost first. The returned slice
// must not be mutated by the caller.
func (c Context) Sites() []ircfg.CallStatement {
	return c.sites
}
