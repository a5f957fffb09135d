// Package strategy parses declarative strategy documents and evaluates them
// against live indicator values.
//
// A strategy is a JSON document: an indicator manifest plus two rule graphs.
// The entry graph is evaluated while the portfolio is flat, the exit graph
// while a position is open. Conditions are recursive trees over threshold,
// crossover, and, or; actions open, reduce, or close the position.
//
// The parsed IR is immutable. Per-node runtime state (the one step of prior
// values each crossover node needs) lives in the Evaluator, keyed by node id.
package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/franalgaba/hyperliquid-backtesting/internal/indicator"
)

// Condition node types.
const (
	CondThreshold      = "threshold"
	CondCrossoverAbove = "crossover_above"
	CondCrossoverBelow = "crossover_below"
	CondAnd            = "and"
	CondOr             = "or"
)

// Threshold operators.
var validOps = map[string]bool{
	"lt": true, "lte": true, "eq": true, "ne": true, "gte": true, "gt": true,
}

// Action types.
const (
	ActionBuy   = "buy"
	ActionSell  = "sell"
	ActionClose = "close"
)

// IndicatorSpec declares one indicator in the manifest.
type IndicatorSpec struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Params  map[string]float64 `json:"params"`
	Outputs []string           `json:"outputs"`
}

// Condition is one node of a rule's condition tree.
type Condition struct {
	Type string `json:"type"`

	// threshold
	Indicator string  `json:"indicator,omitempty"` // "id" or "id.output"
	Op        string  `json:"op,omitempty"`
	Value     float64 `json:"value,omitempty"`

	// crossover
	Fast string `json:"fast,omitempty"`
	Slow string `json:"slow,omitempty"`

	// and / or
	Conditions []*Condition `json:"conditions,omitempty"`

	// nodeID is assigned at compile time; crossover nodes use it to key
	// their prior-value memory in the Evaluator.
	nodeID int
}

// Action is what a rule does when its condition holds.
type Action struct {
	Type    string  `json:"type"`
	SizePct float64 `json:"size_pct,omitempty"` // % of available cash (buy) or position (sell)

	// Order issuance. Kind "market" (default) or "limit"; a limit order is
	// priced LimitOffsetBps inside the mid (below for buys, above for sells).
	Kind           string  `json:"kind,omitempty"`
	LimitOffsetBps float64 `json:"limit_offset_bps,omitempty"`
	PostOnly       bool    `json:"post_only,omitempty"`
	Tif            string  `json:"tif,omitempty"`

	// Optional protective brackets attached to a filled entry.
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"`
}

// Rule pairs a condition with its action.
type Rule struct {
	Condition *Condition `json:"condition"`
	Action    *Action    `json:"action"`
}

// IR is the parsed strategy document.
type IR struct {
	Indicators []IndicatorSpec `json:"indicators"`
	Entry      *Rule           `json:"entry"`
	Exit       *Rule           `json:"exit,omitempty"`
}

// ParseFile loads and compiles a strategy IR from a JSON file.
func ParseFile(path string) (*IR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a strategy IR document.
func Parse(data []byte) (*IR, error) {
	var ir IR
	if err := json.Unmarshal(data, &ir); err != nil {
		return nil, fmt.Errorf("decode strategy: %w", err)
	}
	if err := ir.compile(); err != nil {
		return nil, err
	}
	return &ir, nil
}

// compile validates the document and assigns node ids.
func (ir *IR) compile() error {
	if len(ir.Indicators) == 0 {
		return fmt.Errorf("strategy declares no indicators")
	}
	refs := make(map[string]map[string]bool, len(ir.Indicators))
	for _, spec := range ir.Indicators {
		if spec.ID == "" {
			return fmt.Errorf("indicator with empty id")
		}
		if strings.Contains(spec.ID, ".") {
			return fmt.Errorf("indicator id %q must not contain '.'", spec.ID)
		}
		if _, dup := refs[spec.ID]; dup {
			return fmt.Errorf("duplicate indicator id %q", spec.ID)
		}
		// Instantiate once to validate type and params; the engine builds
		// its own instances at run start.
		if _, err := indicator.New(spec.Type, spec.Params); err != nil {
			return fmt.Errorf("indicator %q: %w", spec.ID, err)
		}
		outs := make(map[string]bool, len(spec.Outputs))
		for _, o := range spec.Outputs {
			outs[o] = true
		}
		refs[spec.ID] = outs
	}

	if ir.Entry == nil {
		return fmt.Errorf("strategy has no entry rule")
	}
	nextID := 0
	if err := validateRule("entry", ir.Entry, refs, &nextID); err != nil {
		return err
	}
	if ir.Exit != nil {
		if err := validateRule("exit", ir.Exit, refs, &nextID); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(name string, r *Rule, refs map[string]map[string]bool, nextID *int) error {
	if r.Condition == nil {
		return fmt.Errorf("%s rule has no condition", name)
	}
	if r.Action == nil {
		return fmt.Errorf("%s rule has no action", name)
	}
	if err := validateCondition(name, r.Condition, refs, nextID); err != nil {
		return err
	}
	return validateAction(name, r.Action)
}

func validateCondition(name string, c *Condition, refs map[string]map[string]bool, nextID *int) error {
	c.nodeID = *nextID
	*nextID++

	switch c.Type {
	case CondThreshold:
		if !validOps[c.Op] {
			return fmt.Errorf("%s: threshold op %q not one of lt/lte/eq/ne/gte/gt", name, c.Op)
		}
		return validateRef(name, c.Indicator, refs)
	case CondCrossoverAbove, CondCrossoverBelow:
		if err := validateRef(name, c.Fast, refs); err != nil {
			return err
		}
		return validateRef(name, c.Slow, refs)
	case CondAnd, CondOr:
		if len(c.Conditions) == 0 {
			return fmt.Errorf("%s: %s node with no children", name, c.Type)
		}
		for _, child := range c.Conditions {
			if err := validateCondition(name, child, refs, nextID); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: unknown condition type %q", name, c.Type)
	}
}

func validateRef(name, ref string, refs map[string]map[string]bool) error {
	if ref == "" {
		return fmt.Errorf("%s: empty indicator reference", name)
	}
	id, output, hasOutput := strings.Cut(ref, ".")
	outs, ok := refs[id]
	if !ok {
		return fmt.Errorf("%s: reference %q names undeclared indicator %q", name, ref, id)
	}
	// An explicit output must be declared when the manifest lists outputs.
	if hasOutput && len(outs) > 0 && !outs[output] {
		return fmt.Errorf("%s: reference %q names undeclared output %q", name, ref, output)
	}
	return nil
}

func validateAction(name string, a *Action) error {
	switch a.Type {
	case ActionBuy, ActionSell:
		if a.SizePct <= 0 || a.SizePct > 100 {
			return fmt.Errorf("%s: %s action size_pct %v outside (0, 100]", name, a.Type, a.SizePct)
		}
	case ActionClose:
	default:
		return fmt.Errorf("%s: unknown action type %q", name, a.Type)
	}
	switch a.Kind {
	case "", "market", "limit":
	default:
		return fmt.Errorf("%s: unknown order kind %q", name, a.Kind)
	}
	switch a.Tif {
	case "", "GTC", "IOC", "FOK":
	default:
		return fmt.Errorf("%s: unknown tif %q", name, a.Tif)
	}
	if a.StopLossPct < 0 || a.TakeProfitPct < 0 {
		return fmt.Errorf("%s: negative bracket percentage", name)
	}
	return nil
}
