// Copyright 2026 The modelgate Authors
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

package search

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/modelgate/modelgate/pkg/errors"
)

// DefaultSufficiencyExpr is the sufficiency predicate used when none is
// configured: the round's best fused score clears 0.8.
const DefaultSufficiencyExpr = "top_score >= 0.8"

// RoundStats is the evaluation input for the sufficiency predicate.
type RoundStats struct {
	// TopScore is the best fused score seen this round (0 when empty).
	TopScore float64

	// NewResults counts results not seen in any prior round.
	NewResults int

	// Iteration is the 1-based round number.
	Iteration int

	// KnowledgeLen is the length of the accumulated knowledge text.
	KnowledgeLen int
}

// Predicate decides whether a round's results suffice to stop searching.
type Predicate interface {
	Sufficient(stats RoundStats) bool
}

// ExprPredicate evaluates a configured boolean expression over the round
// stats. Available variables: top_score, new_results, iteration,
// knowledge_len.
type ExprPredicate struct {
	program *vm.Program
}

// NewPredicate compiles a sufficiency expression. An empty expression
// selects the default.
func NewPredicate(expression string) (*ExprPredicate, error) {
	if expression == "" {
		expression = DefaultSufficiencyExpr
	}

	program, err := expr.Compile(expression,
		expr.Env(predicateEnv(RoundStats{})),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    "sufficiency",
			Reason: "invalid sufficiency expression",
			Cause:  err,
		}
	}
	return &ExprPredicate{program: program}, nil
}

// Sufficient evaluates the expression. Evaluation failures mean "keep
// searching" rather than terminating early.
func (p *ExprPredicate) Sufficient(stats RoundStats) bool {
	out, err := expr.Run(p.program, predicateEnv(stats))
	if err != nil {
		return false
	}
	sufficient, ok := out.(bool)
	return ok && sufficient
}

func predicateEnv(stats RoundStats) map[string]any {
	return map[string]any{
		"top_score":     stats.TopScore,
		"new_results":   stats.NewResults,
		"iteration":     stats.Iteration,
		"knowledge_len": stats.KnowledgeLen,
	}
}
