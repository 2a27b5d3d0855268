package production

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/rtfsm/internal/primitives"
)

// NoState disables current-state highlighting in ExportDOT.
const NoState = -1

// DefaultVisualizer renders definitions for inspection.
type DefaultVisualizer struct{}

// Edge is one rendered transition. Columns sharing a source and target are
// merged into a single edge.
type Edge struct {
	From, To int
	Label    string
	Timeout  bool
}

// ExportDOT generates Graphviz DOT source for def. Self loops are omitted;
// the state equal to current is highlighted.
func (v *DefaultVisualizer) ExportDOT(def *primitives.Definition, current int) string {
	var buf bytes.Buffer
	name := def.Name
	if name == "" {
		name = "Definition"
	}
	fmt.Fprintf(&buf, "digraph %q {\n", name)
	buf.WriteString("  rankdir=LR;\n  node [shape=box, fontsize=10, style=rounded];\n  edge [fontsize=9];\n")

	for s, row := range def.Rows {
		attrs := []string{fmt.Sprintf("label=%q", stateLabel(s, row))}
		if s == 0 {
			attrs = append(attrs, "peripheries=2")
		}
		if s == current {
			attrs = append(attrs, "style=filled", "fillcolor=lightgreen")
		} else if def.ReadyForTrialState > 0 && s == def.ReadyForTrialState {
			attrs = append(attrs, "style=filled", "fillcolor=lightblue")
		}
		fmt.Fprintf(&buf, "  \"s%d\" [%s];\n", s, strings.Join(attrs, " "))
	}

	for _, e := range CollectEdges(def) {
		style := ""
		if e.Timeout {
			style = " style=dashed"
		}
		fmt.Fprintf(&buf, "  \"s%d\" -> \"s%d\" [label=%q%s];\n", e.From, e.To, e.Label, style)
	}
	buf.WriteString("}\n")
	return buf.String()
}

// ExportJSON serializes def to indented JSON.
func (v *DefaultVisualizer) ExportJSON(def *primitives.Definition) ([]byte, error) {
	return json.MarshalIndent(def, "", "  ")
}

// ExportYAML serializes def to YAML.
func (v *DefaultVisualizer) ExportYAML(def *primitives.Definition) ([]byte, error) {
	return yaml.Marshal(def)
}

// CollectEdges returns every non-self transition of def, input edges first
// in target order, then the timeout edge, per state.
func CollectEdges(def *primitives.Definition) []Edge {
	var edges []Edge
	for s, row := range def.Rows {
		byTarget := map[int][]string{}
		for col, next := range row.Input {
			if next != s {
				byTarget[next] = append(byTarget[next], fmt.Sprintf("e%d", col))
			}
		}
		targets := make([]int, 0, len(byTarget))
		for t := range byTarget {
			targets = append(targets, t)
		}
		sort.Ints(targets)
		for _, t := range targets {
			edges = append(edges, Edge{From: s, To: t, Label: strings.Join(byTarget[t], ",")})
		}
		if row.HasTimeout() && row.TimeoutState != s {
			d := time.Duration(row.TimeoutUS) * time.Microsecond
			edges = append(edges, Edge{From: s, To: row.TimeoutState, Label: "tup " + d.String(), Timeout: true})
		}
	}
	return edges
}

func stateLabel(s int, row primitives.Row) string {
	var outs []string
	for col, val := range row.Outputs {
		if val != 0 {
			outs = append(outs, fmt.Sprintf("o%d=%d", col, val))
		}
	}
	if len(outs) == 0 {
		return fmt.Sprintf("s%d", s)
	}
	return fmt.Sprintf("s%d\n%s", s, strings.Join(outs, " "))
}
