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

// Package ptroracle defines the pointer-analysis oracle contract consumed
// by callengine when resolving an indirect call target. The oracle is a
// conservative, analysis-independent source of "what could this pointer
// point to" information. callengine uses the oracle's set as returned: it
// does not intersect it with any points-to knowledge of the value domain.
package ptroracle

import "github.com/fixcore-dev/fixcore/ircfg"

// Member is one element of a PointsToSet: a memory location that a pointer
// variable might hold.
type Member interface {
	// ID returns a value suitable for use as a map key.
	ID() any
}

// PointsToSet is a lattice of possible pointees for one pointer variable at
// one program point.
type PointsToSet interface {
	// IsBottom reports whether this set is the empty ("invalid pointer, no
	// possible target") set.
	IsBottom() bool

	// IsTop reports whether this set carries no information at all (every
	// location is a possible member).
	IsTop() bool

	// Members enumerates the known possible pointees. It is only
	// meaningful when neither IsBottom nor IsTop holds.
	Members() []Member

	// Intersect computes the intersection of this set with other. The core
	// does not call it; callengine resolves targets from the oracle's set
	// alone.
	Intersect(other PointsToSet) PointsToSet
}

// FunctionMember is implemented by a Member that denotes a resolvable
// function, i.e. a candidate callee for an indirect call.
type FunctionMember interface {
	Member

	// Callee returns the resolved function.
	Callee() ircfg.Callee
}

// Oracle answers points-to queries for a single function's analysis.
type Oracle interface {
	// Get returns the points-to set the oracle has computed for loc.
	Get(loc ircfg.Location) PointsToSet
}
