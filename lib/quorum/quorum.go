// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package quorum

import (
	"fmt"
	"strconv"
	"strings"
)

// Result is the outcome of one party's step.
type Result uint8

const (
	// Waiting means the party has not reported yet.
	Waiting Result = iota
	// Passed means the party's step succeeded.
	Passed
	// Rejected means the party's step failed.
	Rejected
)

func (r Result) String() string {
	switch r {
	case Waiting:
		return "waiting"
	case Passed:
		return "passed"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("Result(%d)", uint8(r))
}

// Rule is one of AllOf, AnyOf, or Sequential. The unexported method
// keeps the set closed.
type Rule interface {
	isRule()
	String() string
}

// AllOf is satisfied when every party passes and rejected as soon as
// any party is rejected.
type AllOf struct{}

// AnyOf is satisfied as soon as one party passes and rejected once
// every party is rejected. Minimum raises the threshold above one.
type AnyOf struct {
	Minimum int
}

// Sequential requires parties to pass in order. A result reported out
// of order (a later party passing while an earlier one is still
// waiting) does not count; the first rejection in order rejects the
// gate.
type Sequential struct{}

func (AllOf) isRule()      {}
func (AnyOf) isRule()      {}
func (Sequential) isRule() {}

func (AllOf) String() string { return "all-of" }
func (r AnyOf) String() string {
	if r.Minimum > 1 {
		return fmt.Sprintf("any-of(%d)", r.Minimum)
	}
	return "any-of"
}
func (Sequential) String() string { return "sequential" }

// ParseRule parses the String form of a rule: "all-of", "any-of",
// "any-of(N)", or "sequential".
func ParseRule(value string) (Rule, error) {
	switch value {
	case "all-of":
		return AllOf{}, nil
	case "any-of":
		return AnyOf{}, nil
	case "sequential":
		return Sequential{}, nil
	}
	if inner, ok := strings.CutPrefix(value, "any-of("); ok {
		if digits, ok := strings.CutSuffix(inner, ")"); ok {
			minimum, err := strconv.Atoi(digits)
			if err == nil && minimum >= 1 {
				return AnyOf{Minimum: minimum}, nil
			}
		}
	}
	return nil, fmt.Errorf("quorum: unknown rule %q", value)
}

// State is the status of a gate.
type State uint8

const (
	// Open: more results are needed to decide.
	Open State = iota
	// Satisfied: the gate passed.
	Satisfied
	// Failed: the gate cannot pass whatever the remaining results.
	Failed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Satisfied:
		return "satisfied"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Verdict is the result of Evaluate.
type Verdict struct {
	State State

	// Passed and Rejected count parties by result.
	Passed   int
	Rejected int

	// Next is the index of the party a Sequential gate is waiting on,
	// or -1 for other rules and decided gates.
	Next int
}

// Decided reports whether the gate reached a final state.
func (v Verdict) Decided() bool { return v.State != Open }

// Evaluate applies rule to results. An empty result set is never
// satisfied: a gate with no parties fails.
func Evaluate(rule Rule, results []Result) Verdict {
	verdict := Verdict{Next: -1}
	for _, result := range results {
		switch result {
		case Passed:
			verdict.Passed++
		case Rejected:
			verdict.Rejected++
		}
	}

	if len(results) == 0 {
		verdict.State = Failed
		return verdict
	}

	switch rule := rule.(type) {
	case AllOf:
		switch {
		case verdict.Rejected > 0:
			verdict.State = Failed
		case verdict.Passed == len(results):
			verdict.State = Satisfied
		}

	case AnyOf:
		minimum := rule.Minimum
		if minimum < 1 {
			minimum = 1
		}
		switch {
		case verdict.Passed >= minimum:
			verdict.State = Satisfied
		case len(results)-verdict.Rejected < minimum:
			verdict.State = Failed
		}

	case Sequential:
		verdict.State = Satisfied
		for index, result := range results {
			if result == Passed {
				continue
			}
			if result == Rejected {
				verdict.State = Failed
			} else {
				verdict.State = Open
				verdict.Next = index
			}
			break
		}

	default:
		panic(fmt.Sprintf("quorum: unhandled rule %T", rule))
	}
	return verdict
}

// FromBools converts a slice of pass/fail outcomes into results.
func FromBools(outcomes []bool) []Result {
	results := make([]Result, len(outcomes))
	for index, ok := range outcomes {
		if ok {
			results[index] = Passed
		} else {
			results[index] = Rejected
		}
	}
	return results
}
