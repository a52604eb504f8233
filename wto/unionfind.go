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

import "github.com/fixcore-dev/fixcore/ircfg"

// unionFind resolves a cross/forward edge's endpoint to its current
// condensation representative in near-linear time via path compression. It
// is deliberately asymmetric (link always moves a node's representative
// towards its DFS-tree parent or its SCC head) rather than union-by-rank,
// because both callers in this package only ever attach a node to a node
// known to dominate it in the DFS tree, matching the structure Tarjan's
// offline LCA trick (used here for cross/forward edges) and Bourdoncle's
// SCC condensation both rely on.
type unionFind struct {
	parent map[ircfg.NodeIndex]ircfg.NodeIndex
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[ircfg.NodeIndex]ircfg.NodeIndex)}
}

// find returns n's current representative, compressing the path traversed.
func (u *unionFind) find(n ircfg.NodeIndex) ircfg.NodeIndex {
	p, ok := u.parent[n]
	if !ok {
		return n
	}
	root := u.find(p)
	u.parent[n] = root
	return root
}

// link makes to the representative of n (and everything already pointing at
// n's former representative).
func (u *unionFind) link(n, to ircfg.NodeIndex) {
	root := u.find(n)
	if root == to {
		return
	}
	u.parent[root] = to
}
