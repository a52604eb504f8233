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

// Package checker defines the property-checker contract: assertion-style
// analyses that observe the invariants the core computes but never
// influence them. Checkers are queried twice by the core: once during WTO
// construction (HasCheck, to decide which blocks' pre-invariants are worth
// retaining for deferred replay) and then with Check, to actually emit
// findings: live during the main pass of a fixpoint that does not defer
// its checks, otherwise during deferred replay.
package checker

import (
	"github.com/fixcore-dev/fixcore/callctx"
	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/ircfg"
)

// Checker is one assertion-style analysis plugged into the core.
type Checker interface {
	// HasCheck reports whether this checker would ever emit a finding for
	// stmt. It must be a pure, side-effect-free predicate: the wto builder
	// calls it once per statement while constructing a WTO's liveness
	// metadata, before any invariant exists.
	HasCheck(stmt ircfg.Statement) bool

	// Check inspects stmt against the invariant that held immediately
	// before it and may emit a finding. A fixpoint with DeferChecks set
	// calls it only during deferred replay, after the call tree has
	// stabilized; one without (the entry function) calls it during its main
	// pass with the current pre-invariant of the block.
	Check(stmt ircfg.Statement, pre domain.Value, ctx callctx.Context)
}
