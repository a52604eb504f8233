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

// Package ircfg defines the read-only control-flow-graph contract consumed
// by the wto, fixpoint, callengine, and function packages. The concrete IR
// (statement shapes, call resolution, types) is always supplied by a
// collaborator outside this module; see adapter/goast for a concrete
// instantiation over real Go source.
package ircfg

// NodeIndex identifies a block within a Graph by its position in
// Graph.Blocks. It is also used as the stable identity of a block for
// liveness maps built by the wto package.
type NodeIndex int

// Graph is one function's control-flow graph: an ordered list of blocks
// with a designated entry. A Graph may have zero or more exit blocks (no
// successors); the wto builder handles the degenerate case of an entry
// block with no successors.
type Graph interface {
	// Blocks returns every block in the graph, including unreachable ones.
	// Implementations must return blocks such that Blocks()[i].Index() == i.
	Blocks() []Block

	// Entry returns the index of the function's entry block.
	Entry() NodeIndex
}

// Block is one basic block: a maximal straight-line run of statements plus
// its successor edges.
type Block interface {
	// Index returns this block's position in its Graph.Blocks().
	Index() NodeIndex

	// Statements returns the ordered statements of this block.
	Statements() []Statement

	// Succs returns the indices of this block's successor blocks, in a
	// stable, deterministic order (e.g. for a two-way branch, [true, false]).
	Succs() []NodeIndex
}

// Statement is an opaque unit of analysis-relevant work inside a block. The
// core never interprets a Statement itself; it hands each one to the
// execution engine (execengine.Engine) and to checkers (checker.Checker).
// A Statement that represents a function call should additionally implement
// CallStatement so callengine can resolve and inline it.
type Statement interface {
	// Pos returns an opaque, domain-defined position token used only for
	// error messages; the core never interprets it.
	Pos() string
}

// TargetKind classifies the call target of a CallStatement, driving the
// resolution policy of callengine (spec §4.3).
type TargetKind uint8

const (
	// TargetUndefined covers null/undefined constants, non-function
	// constants, and references to global or local variables used directly
	// as the call target without being recognized as a function pointer —
	// all are undefined behavior.
	TargetUndefined TargetKind = iota
	// TargetInlineAsm marks a call through inline assembly, modeled as an
	// unknown extern call.
	TargetInlineAsm
	// TargetDirect marks a call whose target is a single, statically known
	// function constant.
	TargetDirect
	// TargetIndirect marks a call through a local pointer variable whose
	// points-to set must be consulted.
	TargetIndirect
)

// CallStatement is implemented by a Statement representing a function call.
type CallStatement interface {
	Statement

	// TargetKind classifies how the callee(s) must be resolved.
	TargetKind() TargetKind

	// DirectCallee returns the statically known callee for a TargetDirect
	// call statement. It is only valid to call when TargetKind returns
	// TargetDirect.
	DirectCallee() Callee

	// IndirectVariable returns the opaque handle to the local pointer
	// variable used as the call target for a TargetIndirect call
	// statement. It is only valid to call when TargetKind returns
	// TargetIndirect.
	IndirectVariable() Location
}

// Callee is an opaque handle to a resolved, statically-known function. The
// core treats it as an interning key (for recursion detection via
// callctx.Context) and hands it back to the execution engine contract
// (execengine.Engine) for MatchDown/MatchUp and to the function package to
// construct the callee's own Graph.
type Callee interface {
	// ID returns a value suitable for use as a map key uniquely identifying
	// this callee within one analysis run.
	ID() any

	// IsExternal reports whether this callee is an external declaration
	// with no analyzable body (modeled via execengine.ExecExternCall rather
	// than recursive fixpoint analysis).
	IsExternal() bool

	// Graph returns the callee's control-flow graph. It is invalid to call
	// when IsExternal reports true.
	Graph() Graph
}

// Location is an opaque handle to a memory location (typically a local
// pointer variable), used as the key into a ptroracle.Oracle.
type Location interface {
	// ID returns a value suitable for use as a map key.
	ID() any
}
