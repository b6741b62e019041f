package optimizer

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known parameter names.
const (
	ParamTimeframe = "timeframe"
	ParamShort     = "short_window"
	ParamLong      = "long_window"
	ParamTrend     = "trend_window"
)

// Axis is one parameter with its candidate values, kept as text.
type Axis struct {
	Name   string
	Values []string
}

// Grid is an ordered set of axes. Order matters: it fixes the column order of
// the result table and the enumeration order of Expand.
type Grid struct {
	Axes []Axis
}

func DefaultGrid() Grid {
	return Grid{Axes: []Axis{
		{Name: ParamTimeframe, Values: []string{"30m", "1h", "4h"}},
		{Name: ParamShort, Values: []string{"10", "20"}},
		{Name: ParamLong, Values: []string{"40", "60"}},
		{Name: ParamTrend, Values: []string{"150", "200"}},
	}}
}

// UnmarshalYAML reads a mapping of name -> list (or single scalar) keeping
// the key order of the document.
func (g *Grid) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("grid: line %d: want a mapping", n.Line)
	}
	var axes []Axis
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		ax := Axis{Name: strings.TrimSpace(key.Value)}
		switch val.Kind {
		case yaml.ScalarNode:
			ax.Values = []string{val.Value}
		case yaml.SequenceNode:
			for _, item := range val.Content {
				if item.Kind != yaml.ScalarNode {
					return fmt.Errorf("grid: %s: line %d: values must be scalars", ax.Name, item.Line)
				}
				ax.Values = append(ax.Values, item.Value)
			}
		default:
			return fmt.Errorf("grid: %s: line %d: want a list of values", ax.Name, val.Line)
		}
		axes = append(axes, ax)
	}
	grid := Grid{Axes: axes}
	if err := grid.Validate(); err != nil {
		return err
	}
	*g = grid
	return nil
}

func ParseGrid(b []byte) (Grid, error) {
	var g Grid
	if err := yaml.Unmarshal(b, &g); err != nil {
		return Grid{}, err
	}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

func LoadGrid(path string) (Grid, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, err
	}
	g, err := ParseGrid(b)
	if err != nil {
		return Grid{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func (g Grid) Validate() error {
	if len(g.Axes) == 0 {
		return fmt.Errorf("grid: no parameters")
	}
	seen := map[string]bool{}
	for _, ax := range g.Axes {
		if ax.Name == "" {
			return fmt.Errorf("grid: empty parameter name")
		}
		if seen[ax.Name] {
			return fmt.Errorf("grid: duplicate parameter %q", ax.Name)
		}
		seen[ax.Name] = true
		if len(ax.Values) == 0 {
			return fmt.Errorf("grid: %s has no values", ax.Name)
		}
	}
	return nil
}

func (g Grid) Names() []string {
	out := make([]string, len(g.Axes))
	for i, ax := range g.Axes {
		out[i] = ax.Name
	}
	return out
}

func (g Grid) Size() int {
	if len(g.Axes) == 0 {
		return 0
	}
	n := 1
	for _, ax := range g.Axes {
		n *= len(ax.Values)
	}
	return n
}

// Expand enumerates the Cartesian product, last axis varying fastest.
func (g Grid) Expand() []ParamSet {
	total := g.Size()
	out := make([]ParamSet, 0, total)
	idx := make([]int, len(g.Axes))
	for k := 0; k < total; k++ {
		ps := make(ParamSet, len(g.Axes))
		for a, ax := range g.Axes {
			ps[a] = Param{Name: ax.Name, Value: ax.Values[idx[a]]}
		}
		out = append(out, ps)
		for a := len(idx) - 1; a >= 0; a-- {
			idx[a]++
			if idx[a] < len(g.Axes[a].Values) {
				break
			}
			idx[a] = 0
		}
	}
	return out
}

type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParamSet is one grid point in axis order.
type ParamSet []Param

func (ps ParamSet) Get(name string) (string, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Int returns the named value as an integer, or def when absent.
func (ps ParamSet) Int(name string, def int) (int, error) {
	v, ok := ps.Get(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", name, err)
	}
	return n, nil
}

func (ps ParamSet) Text(name, def string) string {
	if v, ok := ps.Get(name); ok {
		return v
	}
	return def
}

func (ps ParamSet) Values() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Value
	}
	return out
}

func (ps ParamSet) Map() map[string]string {
	out := make(map[string]string, len(ps))
	for _, p := range ps {
		out[p.Name] = p.Value
	}
	return out
}

func (ps ParamSet) Key() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.Name + "=" + p.Value
	}
	return strings.Join(parts, ",")
}

var shortNames = map[string]string{
	ParamTimeframe: "TF",
	ParamShort:     "S",
	ParamLong:      "L",
	ParamTrend:     "T",
}

// Label is the compact form used on charts, e.g. "TF:1h S:10 L:40 T:150".
func (ps ParamSet) Label() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		name := p.Name
		if s, ok := shortNames[name]; ok {
			name = s
		}
		parts[i] = name + ":" + p.Value
	}
	return strings.Join(parts, " ")
}
