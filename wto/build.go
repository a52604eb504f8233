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

package wto

import (
	"sort"

	"github.com/fixcore-dev/fixcore/checker"
	"github.com/fixcore-dev/fixcore/ircfg"
)

// crossEdge is a cross or forward edge recorded during the DFS pass,
// pending restoration into NonBackPreds once its tree-distance LCA is
// condensed.
type crossEdge struct {
	pred, succ ircfg.NodeIndex
}

// builder holds the mutable state threaded through the two construction
// passes. It is discarded once Build returns.
type builder struct {
	graph ircfg.Graph

	// dfsState: 0 = unvisited, 1 = active (on the DFS stack), 2 = done.
	dfsState map[ircfg.NodeIndex]int
	preDFN   map[ircfg.NodeIndex]int
	postDFN  map[ircfg.NodeIndex]int
	parent   map[ircfg.NodeIndex]ircfg.NodeIndex

	nonBackPreds map[ircfg.NodeIndex][]ircfg.NodeIndex
	backPreds    map[ircfg.NodeIndex][]ircfg.NodeIndex
	crossAtLCA   map[ircfg.NodeIndex][]crossEdge

	uf *unionFind

	preCounter  int
	postCounter int

	componentOf map[ircfg.NodeIndex]Component
	isInLoop    map[ircfg.NodeIndex]bool
	isOutermost map[ircfg.NodeIndex]bool
	blockByID   map[ircfg.NodeIndex]ircfg.Block
}

// Build constructs the weak topological ordering of graph, using checkers
// to populate the HasCheck liveness metadata (spec §3.7, §4.1).
func Build(graph ircfg.Graph, checkers []checker.Checker) *WTO {
	b := &builder{
		graph:        graph,
		dfsState:     make(map[ircfg.NodeIndex]int),
		preDFN:       make(map[ircfg.NodeIndex]int),
		postDFN:      make(map[ircfg.NodeIndex]int),
		parent:       make(map[ircfg.NodeIndex]ircfg.NodeIndex),
		nonBackPreds: make(map[ircfg.NodeIndex][]ircfg.NodeIndex),
		backPreds:    make(map[ircfg.NodeIndex][]ircfg.NodeIndex),
		crossAtLCA:   make(map[ircfg.NodeIndex][]crossEdge),
		uf:           newUnionFind(),
		componentOf:  make(map[ircfg.NodeIndex]Component),
		isInLoop:     make(map[ircfg.NodeIndex]bool),
		isOutermost:  make(map[ircfg.NodeIndex]bool),
		blockByID:    make(map[ircfg.NodeIndex]ircfg.Block),
	}
	for _, blk := range graph.Blocks() {
		b.blockByID[blk.Index()] = blk
	}

	b.dfs(graph.Entry(), -1)
	// The DFS links every finished node to its DFS parent, which serves only
	// the cross-edge LCA lookups; condensation starts again from singleton
	// sets and records cycle nesting (not DFS ancestry) in parent.
	b.uf = newUnionFind()
	b.parent = make(map[ircfg.NodeIndex]ircfg.NodeIndex)
	top := b.condense()

	w := &WTO{
		Top:                   top,
		PostDFN:               b.postDFN,
		ComponentPredecessors: make(map[ircfg.NodeIndex][]ircfg.NodeIndex),
		ChildrenWithChecks:    make(map[ircfg.NodeIndex][]ircfg.NodeIndex),
		ChildrenWithPost:      make(map[ircfg.NodeIndex][]ircfg.NodeIndex),
		ChildrenWithCalls:     make(map[ircfg.NodeIndex][]ircfg.NodeIndex),
		HasCheck:              make(map[ircfg.NodeIndex]bool),
		IsInLoop:              b.isInLoop,
		IsOutermostComponent:  b.isOutermost,
		NonBackPreds:          b.nonBackPreds,
		BackPreds:             b.backPreds,
		LastUser:              make(map[ircfg.NodeIndex]ircfg.NodeIndex),
		componentOf:           b.componentOf,
	}

	b.annotateHasCheck(w, checkers)
	b.annotateComponentPredecessors(w)
	b.annotateChildrenWithPost(w)
	b.annotateAncestorChains(w)
	b.annotateLastUser(w)

	return w
}

// dfs runs the edge-classification DFS described in spec §4.1 as a plain
// recursive walk. parent is -1 for the root.
func (b *builder) dfs(n ircfg.NodeIndex, parent ircfg.NodeIndex) {
	b.dfsState[n] = 1
	b.preCounter++
	b.preDFN[n] = b.preCounter
	if parent >= 0 {
		b.parent[n] = parent
	}

	blk := b.blockByID[n]
	if blk != nil {
		for _, s := range blk.Succs() {
			switch b.dfsState[s] {
			case 0:
				b.nonBackPreds[s] = append(b.nonBackPreds[s], n)
				b.dfs(s, n)
			case 1:
				b.backPreds[s] = append(b.backPreds[s], n)
			case 2:
				lca := b.uf.find(s)
				b.crossAtLCA[lca] = append(b.crossAtLCA[lca], crossEdge{pred: n, succ: s})
			}
		}
	}

	b.dfsState[n] = 2
	b.postCounter++
	b.postDFN[n] = b.postCounter
	if p, ok := b.parent[n]; ok {
		b.uf.link(n, p)
	}
}

// condense runs the bottom-up SCC condensation pass in reverse preorder-DFN
// order, producing the Bourdoncle-ordered top-level component sequence.
func (b *builder) condense() []Component {
	nodes := make([]ircfg.NodeIndex, 0, len(b.preDFN))
	for n := range b.preDFN {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return b.preDFN[nodes[i]] > b.preDFN[nodes[j]] })

	for _, h := range nodes {
		for _, e := range b.crossAtLCA[h] {
			pred := b.uf.find(e.pred)
			b.nonBackPreds[e.succ] = append(b.nonBackPreds[e.succ], pred)
		}

		selfLoop := false
		repSet := make(map[ircfg.NodeIndex]bool)
		for _, v := range b.backPreds[h] {
			if v == h {
				selfLoop = true
				continue
			}
			repSet[b.uf.find(v)] = true
		}

		if len(repSet) == 0 && !selfLoop {
			b.componentOf[h] = Vertex{Node: h}
			continue
		}

		visited := make(map[ircfg.NodeIndex]bool, len(repSet))
		var worklist []ircfg.NodeIndex
		for r := range repSet {
			visited[r] = true
			worklist = append(worklist, r)
		}
		for len(worklist) > 0 {
			x := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, p := range b.nonBackPreds[x] {
				r := b.uf.find(p)
				if r == h || visited[r] {
					continue
				}
				visited[r] = true
				worklist = append(worklist, r)
			}
		}

		members := make([]ircfg.NodeIndex, 0, len(visited))
		for m := range visited {
			members = append(members, m)
		}
		sort.Slice(members, func(i, j int) bool { return b.postDFN[members[i]] > b.postDFN[members[j]] })

		subComponents := make([]Component, 0, len(members))
		for _, m := range members {
			c, ok := b.componentOf[m]
			if !ok {
				// m was discovered via nonBackPreds but never itself
				// visited as a DFS node reachable from entry (dead code);
				// skip it rather than fabricate a component.
				continue
			}
			subComponents = append(subComponents, c)
			b.isInLoop[m] = true
			b.parent[m] = h
			b.uf.link(m, h)
		}

		cyc := Cycle{HeadNode: h, Components: subComponents}
		b.componentOf[h] = cyc
		b.isInLoop[h] = true
	}

	var top []Component
	added := make(map[ircfg.NodeIndex]bool)
	topOrder := make([]ircfg.NodeIndex, len(nodes))
	copy(topOrder, nodes)
	sort.Slice(topOrder, func(i, j int) bool { return b.postDFN[topOrder[i]] > b.postDFN[topOrder[j]] })
	for _, n := range topOrder {
		root := b.uf.find(n)
		if root != n || added[root] {
			continue
		}
		if c, ok := b.componentOf[root]; ok {
			top = append(top, c)
			added[root] = true
			if _, isCycle := c.(Cycle); isCycle {
				b.isOutermost[root] = true
			}
		}
	}
	return top
}

// annotateHasCheck queries every checker against every statement of every
// reachable block.
func (b *builder) annotateHasCheck(w *WTO, checkers []checker.Checker) {
	for n := range b.preDFN {
		blk := b.blockByID[n]
		if blk == nil {
			continue
		}
		for _, stmt := range blk.Statements() {
			for _, c := range checkers {
				if c.HasCheck(stmt) {
					w.HasCheck[n] = true
					break
				}
			}
			if w.HasCheck[n] {
				break
			}
		}
	}
}

// annotateComponentPredecessors fills ComponentPredecessors for every cycle
// head from the raw direct-predecessor sets recorded during the DFS pass.
func (b *builder) annotateComponentPredecessors(w *WTO) {
	for n, c := range b.componentOf {
		if _, ok := c.(Cycle); !ok {
			continue
		}
		seen := make(map[ircfg.NodeIndex]bool)
		var preds []ircfg.NodeIndex
		for _, p := range w.NonBackPreds[n] {
			if !seen[p] {
				seen[p] = true
				preds = append(preds, p)
			}
		}
		for _, p := range w.BackPreds[n] {
			if !seen[p] {
				seen[p] = true
				preds = append(preds, p)
			}
		}
		w.ComponentPredecessors[n] = preds
	}
}

// annotateChildrenWithPost derives, for every cycle head, the subset of its
// ComponentPredecessors that lies strictly inside its own subtree: exactly
// its back-edge predecessors, whose post invariants must survive every
// iteration of the cycle rather than a single pass.
func (b *builder) annotateChildrenWithPost(w *WTO) {
	for n, c := range b.componentOf {
		cyc, ok := c.(Cycle)
		if !ok {
			continue
		}
		seen := make(map[ircfg.NodeIndex]bool)
		var inside []ircfg.NodeIndex
		for _, p := range w.BackPreds[n] {
			if p == n {
				continue
			}
			if !seen[p] {
				seen[p] = true
				inside = append(inside, p)
			}
		}
		w.ChildrenWithPost[cyc.HeadNode] = inside
	}
}

// annotateAncestorChains walks from every check-bearing or call-bearing
// node up the parent chain, populating ChildrenWithChecks and
// ChildrenWithCalls for every enclosing head. A node is never added to the
// lists of the cycle it itself heads (spec §9a): the walk always starts
// from the node's parent, not the node itself.
func (b *builder) annotateAncestorChains(w *WTO) {
	nodes := make([]ircfg.NodeIndex, 0, len(b.preDFN))
	for n := range b.preDFN {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return b.preDFN[nodes[i]] < b.preDFN[nodes[j]] })
	for _, n := range nodes {
		blk := b.blockByID[n]
		hasCall := false
		if blk != nil {
			for _, stmt := range blk.Statements() {
				if _, ok := stmt.(ircfg.CallStatement); ok {
					hasCall = true
					break
				}
			}
		}
		if !w.HasCheck[n] && !hasCall {
			continue
		}
		for cur, ok := b.parent[n]; ok; cur, ok = b.parent[cur] {
			if w.HasCheck[n] {
				w.ChildrenWithChecks[cur] = appendUnique(w.ChildrenWithChecks[cur], n)
			}
			if hasCall {
				w.ChildrenWithCalls[cur] = appendUnique(w.ChildrenWithCalls[cur], n)
			}
		}
	}
}

// annotateLastUser performs the pre-order flattening pass and the
// overwrite-on-later-visit resolution described in spec §3.7's design
// notes: a node with any cycle-head consumer is governed entirely by
// ComponentPredecessors and never receives a LastUser entry.
func (b *builder) annotateLastUser(w *WTO) {
	hasHeadConsumer := make(map[ircfg.NodeIndex]bool)
	for head := range w.ComponentPredecessors {
		for _, p := range w.ComponentPredecessors[head] {
			hasHeadConsumer[p] = true
		}
	}

	order := flatten(w.Top)
	seq := make(map[ircfg.NodeIndex]int, len(order))
	for i, n := range order {
		seq[n] = i
	}

	for _, v := range order {
		if w.IsCycleHead(v) {
			continue
		}
		for _, p := range w.NonBackPreds[v] {
			if hasHeadConsumer[p] {
				continue
			}
			prev, ok := w.LastUser[p]
			if !ok || seq[v] > seq[prev] {
				w.LastUser[p] = v
			}
		}
	}
}

// flatten returns every node in components in pre-order traversal order,
// visiting a Cycle's head before its nested sub-components.
func flatten(components []Component) []ircfg.NodeIndex {
	var out []ircfg.NodeIndex
	var walk func(Component)
	walk = func(c Component) {
		switch t := c.(type) {
		case Vertex:
			out = append(out, t.Node)
		case Cycle:
			out = append(out, t.HeadNode)
			for _, sub := range t.Components {
				walk(sub)
			}
		}
	}
	for _, c := range components {
		walk(c)
	}
	return out
}

func appendUnique(s []ircfg.NodeIndex, n ircfg.NodeIndex) []ircfg.NodeIndex {
	for _, x := range s {
		if x == n {
			return s
		}
	}
	return append(s, n)
}
