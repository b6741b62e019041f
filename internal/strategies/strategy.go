package strategies

import (
	"fmt"
	"math"
	"strings"

	"backtester/internal/core"
)

type Strategy interface {
	Name() string
	// Columns lists the indicator columns Generate reads.
	Columns() []string
	// Warmup is the number of bars needed before every column is defined.
	Warmup() int
	// Generate returns s augmented with a signal column.
	Generate(s *core.Series) (*core.Series, error)
}

// Rule holds on a bar when column Left is strictly greater than column Right.
// A NaN on either side never holds.
type Rule struct {
	Left, Right string
}

func (r Rule) String() string { return r.Left + ">" + r.Right }

// Conjunction is long exactly where every rule holds.
type Conjunction struct {
	name   string
	rules  []Rule
	warmup int
}

func NewConjunction(name string, warmup int, rules ...Rule) *Conjunction {
	return &Conjunction{name: name, warmup: warmup, rules: append([]Rule(nil), rules...)}
}

// With returns a copy with an extra filter rule.
func (c *Conjunction) With(r Rule, warmup int) *Conjunction {
	return NewConjunction(c.name, max(c.warmup, warmup), append(append([]Rule(nil), c.rules...), r)...)
}

func (c *Conjunction) Name() string  { return c.name }
func (c *Conjunction) Warmup() int   { return c.warmup }
func (c *Conjunction) Rules() []Rule { return append([]Rule(nil), c.rules...) }

func (c *Conjunction) Columns() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range c.rules {
		for _, col := range []string{r.Left, r.Right} {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// Positions evaluates the desired exposure per bar (1 long, 0 flat).
func (c *Conjunction) Positions(s *core.Series) ([]int, error) {
	if err := s.Require(c.Columns()...); err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	pos := make([]int, s.Len())
	for i := range pos {
		pos[i] = 1
	}
	for _, r := range c.rules {
		left, _ := s.Column(r.Left)
		right, _ := s.Column(r.Right)
		for i := range pos {
			if !greater(left[i], right[i]) {
				pos[i] = 0
			}
		}
	}
	return pos, nil
}

func (c *Conjunction) Generate(s *core.Series) (*core.Series, error) {
	if s.Len() == 0 {
		return nil, core.ErrEmptySeries
	}
	pos, err := c.Positions(s)
	if err != nil {
		return nil, err
	}
	return s.WithSignal(Diff(pos))
}

// Diff turns positions into signals; the first bar has no predecessor and is 0.
func Diff(pos []int) []int {
	sig := make([]int, len(pos))
	for i := 1; i < len(pos); i++ {
		sig[i] = pos[i] - pos[i-1]
	}
	return sig
}

func greater(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return a > b
}

// Kind names accepted by FromParams.
const (
	KindCrossover = "crossover"
	KindTrend     = "trend"
)

// FromParams builds a strategy by kind. trend is ignored for the plain crossover.
func FromParams(kind string, short, long, trend int) (Strategy, error) {
	switch strings.ToLower(kind) {
	case KindCrossover, "ma_cross":
		return NewCrossover(short, long), nil
	case KindTrend, "ma_cross_trend":
		return NewCrossoverTrend(short, long, trend), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownStrategy, kind)
	}
}
