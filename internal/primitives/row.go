package primitives

import "fmt"

// Row maps each input-event column to a next state, carries an optional
// timeout, and holds one signed value per output column.
type Row struct {
	Input        []int `json:"input" yaml:"input"`
	TimeoutUS    int64 `json:"timeout_us,omitempty" yaml:"timeout_us,omitempty"` // 0 = no timeout
	TimeoutState int   `json:"timeout_state" yaml:"timeout_state"`
	Outputs      []int `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// NewRow creates a row whose every input column and timeout loop back to self.
func NewRow(self, numEventCols, numOutputs int) Row {
	r := Row{
		Input:        make([]int, numEventCols),
		TimeoutState: self,
		Outputs:      make([]int, numOutputs),
	}
	for i := range r.Input {
		r.Input[i] = self
	}
	return r
}

// On sets the next state for an input-event column.
func (r Row) On(col, next int) Row {
	if col >= 0 && col < len(r.Input) {
		r.Input = append([]int(nil), r.Input...)
		r.Input[col] = next
	}
	return r
}

// After sets the timeout in microseconds and the timeout state.
func (r Row) After(us int64, next int) Row {
	r.TimeoutUS = us
	r.TimeoutState = next
	return r
}

// Output sets the value of an output column.
func (r Row) Output(col, value int) Row {
	if col >= 0 && col < len(r.Outputs) {
		r.Outputs = append([]int(nil), r.Outputs...)
		r.Outputs[col] = value
	}
	return r
}

// HasTimeout reports whether the row declares a timeout.
func (r *Row) HasTimeout() bool { return r.TimeoutUS != 0 }

// Validate checks the row's shape and that every target is < nRows.
func (r *Row) Validate(nRows, numEventCols, numOutputs int) error {
	if len(r.Input) != numEventCols {
		return fmt.Errorf("%w: %d input columns, want %d", ErrInvalidDefinition, len(r.Input), numEventCols)
	}
	if len(r.Outputs) != numOutputs {
		return fmt.Errorf("%w: %d output columns, want %d", ErrInvalidDefinition, len(r.Outputs), numOutputs)
	}
	for col, next := range r.Input {
		if next < 0 || next >= nRows {
			return fmt.Errorf("%w: input column %d jumps to %d (rows=%d)", ErrStateRange, col, next, nRows)
		}
	}
	if r.TimeoutUS < 0 {
		return fmt.Errorf("%w: negative timeout %d", ErrInvalidDefinition, r.TimeoutUS)
	}
	if r.TimeoutState < 0 || r.TimeoutState >= nRows {
		return fmt.Errorf("%w: timeout jumps to %d (rows=%d)", ErrStateRange, r.TimeoutState, nRows)
	}
	return nil
}

func (r Row) clone() Row {
	r.Input = append([]int(nil), r.Input...)
	r.Outputs = append([]int(nil), r.Outputs...)
	return r
}
