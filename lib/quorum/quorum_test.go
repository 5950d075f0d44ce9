// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package quorum

import "testing"

const (
	w = Waiting
	p = Passed
	r = Rejected
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		results []Result
		want    State
		next    int
	}{
		{"all-of empty", AllOf{}, nil, Failed, -1},
		{"all-of all passed", AllOf{}, []Result{p, p, p}, Satisfied, -1},
		{"all-of one waiting", AllOf{}, []Result{p, w, p}, Open, -1},
		{"all-of one rejected", AllOf{}, []Result{p, w, r}, Failed, -1},

		{"any-of first pass", AnyOf{}, []Result{w, p, w}, Satisfied, -1},
		{"any-of all rejected", AnyOf{}, []Result{r, r}, Failed, -1},
		{"any-of some rejected", AnyOf{}, []Result{r, w}, Open, -1},
		{"any-of minimum two met", AnyOf{Minimum: 2}, []Result{p, r, p}, Satisfied, -1},
		{"any-of minimum two unreachable", AnyOf{Minimum: 2}, []Result{p, r, r}, Failed, -1},
		{"any-of minimum two pending", AnyOf{Minimum: 2}, []Result{p, r, w}, Open, -1},

		{"sequential all passed", Sequential{}, []Result{p, p}, Satisfied, -1},
		{"sequential waiting on second", Sequential{}, []Result{p, w, p}, Open, 1},
		{"sequential rejection in order", Sequential{}, []Result{p, r, w}, Failed, -1},
		{"sequential rejection after waiting", Sequential{}, []Result{w, r}, Open, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			verdict := Evaluate(test.rule, test.results)
			if verdict.State != test.want {
				t.Errorf("State = %s, want %s", verdict.State, test.want)
			}
			if verdict.Next != test.next {
				t.Errorf("Next = %d, want %d", verdict.Next, test.next)
			}
			if verdict.Decided() != (test.want != Open) {
				t.Errorf("Decided = %v for state %s", verdict.Decided(), verdict.State)
			}
		})
	}
}

func TestFromBools(t *testing.T) {
	results := FromBools([]bool{true, false, true})
	want := []Result{p, r, p}
	for index := range want {
		if results[index] != want[index] {
			t.Errorf("results[%d] = %s, want %s", index, results[index], want[index])
		}
	}

	verdict := Evaluate(AllOf{}, results)
	if verdict.Passed != 2 || verdict.Rejected != 1 {
		t.Errorf("counts = %d passed / %d rejected", verdict.Passed, verdict.Rejected)
	}
}

func TestRuleStrings(t *testing.T) {
	for rule, want := range map[Rule]string{
		AllOf{}:           "all-of",
		AnyOf{}:           "any-of",
		AnyOf{Minimum: 3}: "any-of(3)",
		Sequential{}:      "sequential",
	} {
		if rule.String() != want {
			t.Errorf("%T.String() = %q, want %q", rule, rule.String(), want)
		}
	}
}

func TestParseRule(t *testing.T) {
	for _, rule := range []Rule{AllOf{}, AnyOf{}, AnyOf{Minimum: 3}, Sequential{}} {
		parsed, err := ParseRule(rule.String())
		if err != nil {
			t.Errorf("ParseRule(%q): %v", rule, err)
			continue
		}
		if parsed != rule {
			t.Errorf("ParseRule(%q) = %#v", rule, parsed)
		}
	}
	for _, value := range []string{"", "all", "any-of(0)", "any-of(x)", "any-of(2"} {
		if _, err := ParseRule(value); err == nil {
			t.Errorf("ParseRule(%q) succeeded", value)
		}
	}
}
