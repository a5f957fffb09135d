package strategy

import (
	"math"

	"github.com/franalgaba/hyperliquid-backtesting/internal/indicator"
)

// crossState is one step of remembered values for a crossover node.
type crossState struct {
	fast, slow float64
	valid      bool
}

// Evaluator runs a compiled IR against current indicator values. It owns the
// per-node auxiliary state (prior crossover values) so the IR itself stays
// immutable and shareable.
type Evaluator struct {
	ir    *IR
	inds  *indicator.Set
	cross map[int]crossState // nodeID -> previous step
}

// NewEvaluator creates an evaluator bound to an indicator set built from the
// same IR manifest.
func NewEvaluator(ir *IR, inds *indicator.Set) *Evaluator {
	return &Evaluator{
		ir:    ir,
		inds:  inds,
		cross: make(map[int]crossState),
	}
}

// BuildSet instantiates the IR's indicator manifest into a fresh set.
func BuildSet(ir *IR) (*indicator.Set, error) {
	set := indicator.NewSet()
	for _, spec := range ir.Indicators {
		ind, err := indicator.New(spec.Type, spec.Params)
		if err != nil {
			return nil, err
		}
		if err := set.Add(spec.ID, ind); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// EvaluateEntry evaluates the entry graph and returns its action when the
// condition holds, nil otherwise.
func (e *Evaluator) EvaluateEntry() *Action {
	return e.evaluateRule(e.ir.Entry)
}

// EvaluateExit evaluates the exit graph. Returns nil when the strategy has
// no exit rule or the condition does not hold.
func (e *Evaluator) EvaluateExit() *Action {
	if e.ir.Exit == nil {
		return nil
	}
	return e.evaluateRule(e.ir.Exit)
}

func (e *Evaluator) evaluateRule(r *Rule) *Action {
	if e.evalCondition(r.Condition) {
		return r.Action
	}
	return nil
}

func (e *Evaluator) evalCondition(c *Condition) bool {
	switch c.Type {
	case CondThreshold:
		return e.evalThreshold(c)
	case CondCrossoverAbove:
		return e.evalCrossover(c, true)
	case CondCrossoverBelow:
		return e.evalCrossover(c, false)
	case CondAnd:
		for _, child := range c.Conditions {
			if !e.evalCondition(child) {
				return false
			}
		}
		return true
	case CondOr:
		for _, child := range c.Conditions {
			if e.evalCondition(child) {
				return true
			}
		}
		return false
	default:
		// Unreachable after compile; unknown nodes never fire.
		return false
	}
}

// evalThreshold compares an indicator value against a constant. A NaN value
// (indicator not warm) makes the condition false.
func (e *Evaluator) evalThreshold(c *Condition) bool {
	v := e.inds.Value(c.Indicator)
	if math.IsNaN(v) {
		return false
	}
	switch c.Op {
	case "lt":
		return v < c.Value
	case "lte":
		return v <= c.Value
	case "eq":
		return v == c.Value
	case "ne":
		return v != c.Value
	case "gte":
		return v >= c.Value
	case "gt":
		return v > c.Value
	default:
		return false
	}
}

// evalCrossover fires when fast crosses slow between the previous evaluation
// of this node and now. The first evaluation only records state. NaN on
// either side, now or before, makes the condition false.
func (e *Evaluator) evalCrossover(c *Condition, above bool) bool {
	fast := e.inds.Value(c.Fast)
	slow := e.inds.Value(c.Slow)
	prev, hadPrev := e.cross[c.nodeID]
	e.cross[c.nodeID] = crossState{
		fast:  fast,
		slow:  slow,
		valid: !math.IsNaN(fast) && !math.IsNaN(slow),
	}

	if !hadPrev || !prev.valid || math.IsNaN(fast) || math.IsNaN(slow) {
		return false
	}
	if above {
		return fast > slow && prev.fast <= prev.slow
	}
	return fast < slow && prev.fast >= prev.slow
}
