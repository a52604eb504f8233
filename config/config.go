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

// Package config hosts the user-configurable parameters of the fixpoint
// core (spec §5) as a golang.org/x/tools/go/analysis sub-analyzer, the
// same pattern uber-go/nilaway uses to let its own tuning flags be
// resolved once per pass and shared by every downstream analyzer that
// requires config.Analyzer.
package config

import (
	"flag"
	"reflect"

	"golang.org/x/tools/go/analysis"

	"github.com/fixcore-dev/fixcore/fixpoint"
)

// Config is the resolved, immutable configuration for one analysis run.
type Config struct {
	// WideningDelay is the number of plain-join rounds before widening is
	// first applied at a cycle head.
	WideningDelay int
	// WideningPeriod is the number of rounds between successive widening
	// applications once WideningDelay has elapsed.
	WideningPeriod int
	// NarrowingIterationCap bounds the decreasing-phase rounds run at each
	// cycle head.
	NarrowingIterationCap int
	// CacheCalls enables callengine's block+statement call-result cache.
	CacheCalls bool
}

// Params converts this Config into the fixpoint.Params the core consumes:
// fixpoint.DefaultParams with this Config's delay, period and narrowing
// cap. The strategies stay Widen/Narrow and no thresholds are set; a
// caller that wants JoinStrategy, MeetStrategy or per-head thresholds
// supplies its own fixpoint.Params instead of going through this
// conversion.
func (c *Config) Params() fixpoint.Params {
	p := fixpoint.DefaultParams()
	p.WideningDelay = c.WideningDelay
	p.WideningPeriod = c.WideningPeriod
	p.NarrowingIterationCap = c.NarrowingIterationCap
	return p
}

// Flag names, exported so that drivers outside this module (e.g. a
// golangci-lint module plugin) can set them programmatically instead of
// through os.Args.
const (
	WideningDelayFlag         = "widening-delay"
	WideningPeriodFlag        = "widening-period"
	NarrowingIterationCapFlag = "narrowing-iteration-cap"
	CacheCallsFlag            = "cache-calls"
)

var (
	_wideningDelay         int
	_wideningPeriod        int
	_narrowingIterationCap int
	_cacheCalls            bool
)

// Analyzer resolves this run's Config from command-line flags. Other
// analyzers that need it declare config.Analyzer in their own Requires and
// read pass.ResultOf[config.Analyzer].(*Config).
var Analyzer = &analysis.Analyzer{
	Name:       "fixcore_config",
	Doc:        "resolves fixcore's fixpoint tuning parameters from flags",
	Run:        run,
	ResultType: reflect.TypeOf((*Config)(nil)),
	Flags:      flags(),
}

func flags() flag.FlagSet {
	fs := flag.NewFlagSet("fixcore_config", flag.ExitOnError)
	fs.IntVar(&_wideningDelay, WideningDelayFlag, fixpoint.DefaultParams().WideningDelay, "rounds before widening is first applied at a cycle head")
	fs.IntVar(&_wideningPeriod, WideningPeriodFlag, fixpoint.DefaultParams().WideningPeriod, "rounds between successive widening applications")
	fs.IntVar(&_narrowingIterationCap, NarrowingIterationCapFlag, fixpoint.DefaultParams().NarrowingIterationCap, "maximum decreasing-phase rounds per cycle head")
	fs.BoolVar(&_cacheCalls, CacheCallsFlag, true, "cache resolved call-statement results by (block, statement)")
	return *fs
}

func run(*analysis.Pass) (any, error) {
	return &Config{
		WideningDelay:         _wideningDelay,
		WideningPeriod:        _wideningPeriod,
		NarrowingIterationCap: _narrowingIterationCap,
		CacheCalls:            _cacheCalls,
	}, nil
}
