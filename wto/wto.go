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

// Package wto builds Bourdoncle's weak topological ordering of one
// function's control-flow graph and annotates it with the liveness
// metadata the fixpoint iterator needs to evict invariants as early as
// possible (spec §3, §4.1).
package wto

import "github.com/fixcore-dev/fixcore/ircfg"

// Component is either a Vertex or a Cycle. It is a closed sum type: the
// only implementations are the two defined in this package.
type Component interface {
	// Head returns the single block this component represents if it is a
	// Vertex, or the SCC's entry block if it is a Cycle.
	Head() ircfg.NodeIndex
	isComponent()
}

// Vertex is a trivial WTO component: a single block with no self-loop.
type Vertex struct {
	Node ircfg.NodeIndex
}

// Head implements Component.
func (v Vertex) Head() ircfg.NodeIndex { return v.Node }
func (Vertex) isComponent()            {}

// Cycle is a nontrivial WTO component: a strongly connected component with
// designated head and nested sub-components in Bourdoncle order
// (descending post-DFN of the member that starts each nested component).
type Cycle struct {
	HeadNode   ircfg.NodeIndex
	Components []Component
}

// Head implements Component.
func (c Cycle) Head() ircfg.NodeIndex { return c.HeadNode }
func (Cycle) isComponent()            {}

// WTO is the immutable result of building a weak topological ordering over
// one CFG, plus the liveness metadata described in spec §3.
type WTO struct {
	// Top is the top-level sequence of components, in Bourdoncle order.
	Top []Component

	// PostDFN maps every node reachable from the entry to its post-order
	// DFS index, assigned during the edge-classification pass.
	PostDFN map[ircfg.NodeIndex]int

	// LastUser maps a node n to the node that is the last consumer of n's
	// post invariant, for nodes whose post does not have to survive past a
	// single reader. A node whose only consumer is a cycle head (and hence
	// must be retained via ComponentPredecessors until that cycle
	// stabilizes) has no entry here.
	LastUser map[ircfg.NodeIndex]ircfg.NodeIndex

	// ComponentPredecessors maps a cycle head to the set of its direct
	// predecessors (both from-outside and back-edge) whose post invariants
	// must be retained until the component headed by that head stabilizes.
	ComponentPredecessors map[ircfg.NodeIndex][]ircfg.NodeIndex

	// ChildrenWithChecks maps a cycle head to the nodes strictly inside its
	// subtree (deliberately excluding the head itself) that have at least
	// one checker-relevant statement.
	ChildrenWithChecks map[ircfg.NodeIndex][]ircfg.NodeIndex

	// ChildrenWithPost maps a cycle head to the nodes strictly inside its
	// subtree whose post invariants must outlive a single pass through the
	// subtree (i.e. the head's own back-edge predecessors).
	ChildrenWithPost map[ircfg.NodeIndex][]ircfg.NodeIndex

	// ChildrenWithCalls maps a cycle head to the nodes strictly inside its
	// subtree that contain call statements.
	ChildrenWithCalls map[ircfg.NodeIndex][]ircfg.NodeIndex

	// HasCheck records, per node, whether any of its statements are
	// checker-relevant (as reported by the checker collaborators supplied
	// to Build).
	HasCheck map[ircfg.NodeIndex]bool

	// IsInLoop records, per node, whether it is strictly inside at least
	// one cycle (the node itself being a cycle head counts as being inside
	// its own cycle, since the iterator must treat it specially either
	// way).
	IsInLoop map[ircfg.NodeIndex]bool

	// IsOutermostComponent records, per cycle head, whether that cycle is
	// not nested inside any other cycle.
	IsOutermostComponent map[ircfg.NodeIndex]bool

	// NonBackPreds maps a node to its direct tree/forward/cross-or-forward
	// predecessors (i.e. every direct predecessor edge that is not a back
	// edge).
	NonBackPreds map[ircfg.NodeIndex][]ircfg.NodeIndex

	// BackPreds maps a node to its direct back-edge predecessors.
	BackPreds map[ircfg.NodeIndex][]ircfg.NodeIndex

	// componentOf maps every reachable node to the Component it heads
	// (itself for a Vertex, or the Cycle it is the head of).
	componentOf map[ircfg.NodeIndex]Component
}

// ComponentOf returns the component headed by n, if n is a Vertex or a
// Cycle head; ok is false for a node that exists only as a non-head member
// of an enclosing Cycle.
func (w *WTO) ComponentOf(n ircfg.NodeIndex) (Component, bool) {
	c, ok := w.componentOf[n]
	return c, ok
}

// IsCycleHead reports whether n heads a Cycle (as opposed to being a plain
// Vertex or a non-head cycle member).
func (w *WTO) IsCycleHead(n ircfg.NodeIndex) bool {
	c, ok := w.componentOf[n]
	if !ok {
		return false
	}
	_, isCycle := c.(Cycle)
	return isCycle
}
