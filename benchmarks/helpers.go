// Package benchmarks measures the per-cycle cost of the scan loop and the
// cost of preparing definitions.
package benchmarks

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/comalice/rtfsm/internal/primitives"
)

// GenChainDefinition creates n rows that each time out after timeoutUS to
// the next, wrapping to row 0, with one dout column over lines 8-15 set to
// the row index.
func GenChainDefinition(n int, timeoutUS int64) *primitives.Definition {
	if n < 1 {
		n = 1
	}
	def := &primitives.Definition{
		Name: fmt.Sprintf("chain_%d", n),
		Rows: make([]primitives.Row, n),
		Routing: primitives.Routing{
			InputType:    primitives.InputDigital,
			NumInChans:   1,
			InputEvents:  []int{0, 1},
			NumEventCols: 2,
			Outputs:      []primitives.OutputSpec{primitives.DigitalOut(8, 15)},
		},
	}
	for i := range def.Rows {
		def.Rows[i] = primitives.NewRow(i, 2, 1).After(timeoutUS, (i+1)%n).On(0, 0).Output(0, i&0xff)
	}
	return def
}

// GenWideDefinition creates a single row routed from every one of inputs
// digital channels, each edge its own event column.
func GenWideDefinition(inputs int) *primitives.Definition {
	cols := 2 * inputs
	if cols > primitives.MaxEventCols {
		inputs, cols = primitives.MaxEventCols/2, primitives.MaxEventCols/2*2
	}
	def := &primitives.Definition{
		Name: fmt.Sprintf("wide_%d", inputs),
		Rows: []primitives.Row{primitives.NewRow(0, cols, 0)},
		Routing: primitives.Routing{
			InputType:    primitives.InputDigital,
			NumInChans:   inputs,
			InputEvents:  make([]int, cols),
			NumEventCols: cols,
		},
	}
	for i := range def.Routing.InputEvents {
		def.Routing.InputEvents[i] = i
	}
	return def
}

// GenDefinitionYAML encodes a chain definition of n rows.
func GenDefinitionYAML(n int) []byte {
	data, err := yaml.Marshal(GenChainDefinition(n, 1000))
	if err != nil {
		panic(err)
	}
	return data
}
