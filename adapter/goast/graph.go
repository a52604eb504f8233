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
	"golang.org/x/tools/go/cfg"

	"github.com/fixcore-dev/fixcore/ircfg"
)

// Graph wraps one function body's *cfg.CFG. Its entry block is always
// index 0, matching cfg.CFG's own convention (the first block built from a
// function's body is its entry block).
type Graph struct {
	blocks []ircfg.Block
}

var _ ircfg.Graph = (*Graph)(nil)

func newGraph(raw *cfg.CFG, prog *Program) *Graph {
	blocks := make([]ircfg.Block, len(raw.Blocks))
	for i, rb := range raw.Blocks {
		succs := make([]ircfg.NodeIndex, len(rb.Succs))
		for j, s := range rb.Succs {
			succs[j] = ircfg.NodeIndex(s.Index)
		}
		stmts := make([]ircfg.Statement, len(rb.Nodes))
		for j, n := range rb.Nodes {
			stmts[j] = newStatement(n, prog)
		}
		blocks[i] = &Block{index: ircfg.NodeIndex(rb.Index), stmts: stmts, succs: succs}
	}
	return &Graph{blocks: blocks}
}

func (g *Graph) Blocks() []ircfg.Block { return g.blocks }

func (g *Graph) Entry() ircfg.NodeIndex { return 0 }

// Block is one cfg.Block's worth of statements and successor edges,
// flattened into the ircfg contract.
type Block struct {
	index ircfg.NodeIndex
	stmts []ircfg.Statement
	succs []ircfg.NodeIndex
}

var _ ircfg.Block = (*Block)(nil)

func (b *Block) Index() ircfg.NodeIndex        { return b.index }
func (b *Block) Statements() []ircfg.Statement { return b.stmts }
func (b *Block) Succs() []ircfg.NodeIndex      { return b.succs }
