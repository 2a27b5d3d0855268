package extensibility

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// InputStep drives one simulated digital input line to a level at a point in
// loop time.
type InputStep struct {
	At   time.Duration
	Line int
	High bool
}

// InputScript is a time-ordered list of input steps.
type InputScript []InputStep

// ParseScript parses a comma-separated list of at:line:level steps, for
// example "50ms:0:1,80ms:0:0". The result is sorted by time; steps at the
// same time keep their order.
func ParseScript(s string) (InputScript, error) {
	var script InputScript
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := strings.Split(part, ":")
		if len(f) != 3 {
			return nil, fmt.Errorf("input step %q: want at:line:level", part)
		}
		at, err := time.ParseDuration(f[0])
		if err != nil {
			return nil, fmt.Errorf("input step %q: %w", part, err)
		}
		line, err := strconv.Atoi(f[1])
		if err != nil || line < 0 || line >= 32 {
			return nil, fmt.Errorf("input step %q: bad line %q", part, f[1])
		}
		var high bool
		switch f[2] {
		case "1", "h", "high":
			high = true
		case "0", "l", "low":
		default:
			return nil, fmt.Errorf("input step %q: bad level %q", part, f[2])
		}
		script = append(script, InputStep{At: at, Line: line, High: high})
	}
	sort.SliceStable(script, func(i, j int) bool { return script[i].At < script[j].At })
	return script, nil
}

// Pulse returns the two steps raising line at at and lowering it width later.
func Pulse(line int, at, width time.Duration) InputScript {
	return InputScript{{At: at, Line: line, High: true}, {At: at + width, Line: line}}
}

// End returns the time of the last step.
func (s InputScript) End() time.Duration {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].At
}
