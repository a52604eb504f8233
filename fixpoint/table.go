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

package fixpoint

import (
	"fmt"

	"github.com/fixcore-dev/fixcore/domain"
	"github.com/fixcore-dev/fixcore/ircfg"
)

// Table is a move-only store of per-node invariants. "Move-only" means
// Insert fails if a value is already present, Take fails if none is, and
// Peek (read without consuming) fails if none is. Two operations never
// fail: Replace overwrites or inserts, and Erase of an absent node is a
// silent no-op. The failing operations are what lets the iterator's eviction
// bookkeeping (last_user, ComponentPredecessors) double as a correctness
// check rather than just an optimization: a bug that frees an invariant
// too early turns into an immediate Peek/Take error instead of a silently
// wrong join later.
type Table struct {
	values map[ircfg.NodeIndex]domain.Value
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{values: make(map[ircfg.NodeIndex]domain.Value)}
}

// Insert stores v for n. It is an error to call Insert when n already has a
// value.
func (t *Table) Insert(n ircfg.NodeIndex, v domain.Value) error {
	if _, ok := t.values[n]; ok {
		return fmt.Errorf("fixpoint: table already holds an invariant for node %v", n)
	}
	t.values[n] = v
	return nil
}

// Replace overwrites whatever invariant n currently holds, inserting if
// absent. Unlike Insert this never errors; it exists for the cycle
// iteration state machine, which legitimately recomputes the same node's
// invariant across successive rounds.
func (t *Table) Replace(n ircfg.NodeIndex, v domain.Value) {
	t.values[n] = v
}

// Take removes and returns n's invariant. It is an error to call Take when
// n has no value.
func (t *Table) Take(n ircfg.NodeIndex) (domain.Value, error) {
	v, ok := t.values[n]
	if !ok {
		return nil, fmt.Errorf("fixpoint: table holds no invariant for node %v to take", n)
	}
	delete(t.values, n)
	return v, nil
}

// Peek returns n's invariant without removing it. It is an error to call
// Peek when n has no value.
func (t *Table) Peek(n ircfg.NodeIndex) (domain.Value, error) {
	v, ok := t.values[n]
	if !ok {
		return nil, fmt.Errorf("fixpoint: table holds no invariant for node %v to peek", n)
	}
	return v, nil
}

// Has reports whether n currently has a value, without erroring either way.
func (t *Table) Has(n ircfg.NodeIndex) bool {
	_, ok := t.values[n]
	return ok
}

// Erase removes n's invariant if present and is a silent no-op otherwise,
// used when freeing a value whose presence is only conditionally
// guaranteed (e.g. a ComponentPredecessors entry that may never have been
// populated because its owning cycle never iterated).
func (t *Table) Erase(n ircfg.NodeIndex) {
	delete(t.values, n)
}

// Len reports how many invariants are currently live in the table.
func (t *Table) Len() int {
	return len(t.values)
}
