package strategy

import (
	"strings"
	"testing"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

const validDoc = `{
	"indicators": [
		{"id": "rsi14", "type": "rsi", "params": {"period": 14}},
		{"id": "macd1", "type": "macd", "params": {"fast": 12, "slow": 26, "signal": 9},
		 "outputs": ["value", "signal", "histogram"]}
	],
	"entry": {
		"condition": {"type": "and", "conditions": [
			{"type": "threshold", "indicator": "rsi14", "op": "lt", "value": 30},
			{"type": "crossover_above", "fast": "macd1.value", "slow": "macd1.signal"}
		]},
		"action": {"type": "buy", "size_pct": 50}
	},
	"exit": {
		"condition": {"type": "threshold", "indicator": "rsi14", "op": "gt", "value": 70},
		"action": {"type": "close"}
	}
}`

func TestParseValid(t *testing.T) {
	t.Parallel()

	ir, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ir.Indicators) != 2 {
		t.Errorf("indicators = %d, want 2", len(ir.Indicators))
	}
	if ir.Entry.Action.Type != ActionBuy || ir.Entry.Action.SizePct != 50 {
		t.Errorf("entry action = %+v", ir.Entry.Action)
	}
	if ir.Exit == nil || ir.Exit.Action.Type != ActionClose {
		t.Errorf("exit rule = %+v", ir.Exit)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"no indicators", `{"indicators": [], "entry": {"condition": {"type": "threshold"}, "action": {"type": "close"}}}`, "no indicators"},
		{"unknown indicator type", `{"indicators": [{"id": "x", "type": "vwap"}], "entry": {"condition": {"type": "threshold", "indicator": "x", "op": "lt", "value": 1}, "action": {"type": "close"}}}`, "unknown indicator"},
		{"duplicate id", `{"indicators": [{"id": "x", "type": "obv"}, {"id": "x", "type": "obv"}], "entry": {"condition": {"type": "threshold", "indicator": "x", "op": "lt", "value": 1}, "action": {"type": "close"}}}`, "duplicate"},
		{"no entry", `{"indicators": [{"id": "x", "type": "obv"}]}`, "no entry"},
		{"bad op", `{"indicators": [{"id": "x", "type": "obv"}], "entry": {"condition": {"type": "threshold", "indicator": "x", "op": "between", "value": 1}, "action": {"type": "close"}}}`, "op"},
		{"undeclared ref", `{"indicators": [{"id": "x", "type": "obv"}], "entry": {"condition": {"type": "threshold", "indicator": "y", "op": "lt", "value": 1}, "action": {"type": "close"}}}`, "undeclared"},
		{"undeclared output", `{"indicators": [{"id": "x", "type": "macd", "outputs": ["value"]}], "entry": {"condition": {"type": "threshold", "indicator": "x.signal", "op": "lt", "value": 1}, "action": {"type": "close"}}}`, "output"},
		{"bad size_pct", `{"indicators": [{"id": "x", "type": "obv"}], "entry": {"condition": {"type": "threshold", "indicator": "x", "op": "lt", "value": 1}, "action": {"type": "buy", "size_pct": 150}}}`, "size_pct"},
		{"empty and", `{"indicators": [{"id": "x", "type": "obv"}], "entry": {"condition": {"type": "and"}, "action": {"type": "close"}}}`, "no children"},
		{"unknown condition", `{"indicators": [{"id": "x", "type": "obv"}], "entry": {"condition": {"type": "xor"}, "action": {"type": "close"}}}`, "condition type"},
	}

	for _, c := range cases {
		_, err := Parse([]byte(c.doc))
		if err == nil {
			t.Errorf("%s: accepted", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: error %q does not mention %q", c.name, err, c.want)
		}
	}
}

// evalFixture builds an evaluator over the indicators the doc declares and
// returns a feed helper, so tests can steer values with a handful of closes.
func evalFixture(t *testing.T, doc string) (*Evaluator, func(closes ...float64)) {
	t.Helper()
	ir, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	set, err := BuildSet(ir)
	if err != nil {
		t.Fatalf("BuildSet: %v", err)
	}
	feed := func(closes ...float64) {
		for _, cl := range closes {
			c := types.Candle{Open: cl, High: cl, Low: cl, Close: cl}
			set.Update(&c)
		}
	}
	return NewEvaluator(ir, set), feed
}

const thresholdDoc = `{
	"indicators": [{"id": "px", "type": "sma", "params": {"period": 1}}],
	"entry": {
		"condition": {"type": "threshold", "indicator": "px", "op": "gte", "value": 100},
		"action": {"type": "buy", "size_pct": 10}
	}
}`

func TestThresholdEvaluation(t *testing.T) {
	t.Parallel()
	ev, feed := evalFixture(t, thresholdDoc)

	// Not warm yet: NaN makes the condition false.
	if ev.EvaluateEntry() != nil {
		t.Error("entry fired before warm-up")
	}

	feed(99)
	if ev.EvaluateEntry() != nil {
		t.Error("entry fired below threshold")
	}

	feed(100)
	act := ev.EvaluateEntry()
	if act == nil || act.Type != ActionBuy {
		t.Fatalf("entry action = %+v, want buy", act)
	}
}

func TestExitWithoutRule(t *testing.T) {
	t.Parallel()
	ev, feed := evalFixture(t, thresholdDoc)

	feed(200)
	if ev.EvaluateExit() != nil {
		t.Error("exit fired with no exit rule")
	}
}

const crossoverDoc = `{
	"indicators": [
		{"id": "fast", "type": "sma", "params": {"period": 1}},
		{"id": "slow", "type": "sma", "params": {"period": 3}}
	],
	"entry": {
		"condition": {"type": "crossover_above", "fast": "fast", "slow": "slow"},
		"action": {"type": "buy", "size_pct": 10}
	},
	"exit": {
		"condition": {"type": "crossover_below", "fast": "fast", "slow": "slow"},
		"action": {"type": "close"}
	}
}`

func TestCrossoverFiresOnceOnCross(t *testing.T) {
	t.Parallel()
	ev, feed := evalFixture(t, crossoverDoc)

	// Downtrend: fast below slow once warm.
	feed(105, 104, 103)
	if ev.EvaluateEntry() != nil {
		t.Error("fired on first evaluation (no prior step)")
	}
	feed(102)
	if ev.EvaluateEntry() != nil {
		t.Error("fired while fast below slow")
	}

	// Sharp reversal: fast (=last close) jumps above slow.
	feed(110)
	if ev.EvaluateEntry() == nil {
		t.Fatal("did not fire on upward cross")
	}

	// Still above: a crossover is an edge, not a level.
	feed(111)
	if ev.EvaluateEntry() != nil {
		t.Error("fired again without a new cross")
	}
}

func TestCrossoverBelow(t *testing.T) {
	t.Parallel()
	ev, feed := evalFixture(t, crossoverDoc)

	feed(100, 101, 102)
	ev.EvaluateExit() // record prior step: fast above slow
	feed(90)
	if ev.EvaluateExit() == nil {
		t.Fatal("did not fire on downward cross")
	}
}

const orDoc = `{
	"indicators": [{"id": "px", "type": "sma", "params": {"period": 1}}],
	"entry": {
		"condition": {"type": "or", "conditions": [
			{"type": "threshold", "indicator": "px", "op": "lt", "value": 50},
			{"type": "threshold", "indicator": "px", "op": "gt", "value": 150}
		]},
		"action": {"type": "buy", "size_pct": 10}
	}
}`

func TestOrEvaluation(t *testing.T) {
	t.Parallel()
	ev, feed := evalFixture(t, orDoc)

	feed(100)
	if ev.EvaluateEntry() != nil {
		t.Error("or fired with both branches false")
	}
	feed(40)
	if ev.EvaluateEntry() == nil {
		t.Error("or did not fire on left branch")
	}
	feed(160)
	if ev.EvaluateEntry() == nil {
		t.Error("or did not fire on right branch")
	}
}
