// SPDX-License-Identifier: MIT
package scheduler

// State is the phase the scheduler is in.
type State uint32

const (
	Idle State = iota
	Capturing
	Transforming
	Binning
	Publishing
	Stopped
)

var stateNames = [...]string{
	Idle:         "Idle",
	Capturing:    "Capturing",
	Transforming: "Transforming",
	Binning:      "Binning",
	Publishing:   "Publishing",
	Stopped:      "Stopped",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}
