package production

import "github.com/comalice/rtfsm/internal/primitives"

// sample has three rows: 0 waits for event 0, 1 times out to 2, 2 returns
// to 0 on either event.
func sample() *primitives.Definition {
	return &primitives.Definition{
		Name: "sample",
		Rows: []primitives.Row{
			primitives.NewRow(0, 2, 1).On(0, 1),
			primitives.NewRow(1, 2, 1).After(250_000, 2).Output(0, 3),
			primitives.NewRow(2, 2, 1).On(0, 0).On(1, 0),
		},
		Routing: primitives.Routing{
			InputType:    primitives.InputDigital,
			NumInChans:   1,
			InputEvents:  []int{0, 1},
			NumEventCols: 2,
			Outputs:      []primitives.OutputSpec{primitives.DigitalOut(4, 5)},
		},
		ReadyForTrialState: 2,
	}
}
