package pipeline

import "fmt"

// State is the lifecycle position of a single pipeline run.
type State string

const (
	StateIdle     State = "Idle"
	StateCleaning State = "Cleaning"
	StateBuilding State = "Building"
	StateDone     State = "Done"
	StateFailed   State = "Failed"
)

// transitions lists the legal successors of each state. Done and Failed are
// terminal; a failed run is retried by starting a new run from Idle.
var transitions = map[State][]State{
	StateIdle:     {StateCleaning},
	StateCleaning: {StateBuilding, StateDone, StateFailed},
	StateBuilding: {StateDone, StateFailed},
}

type stateMachine struct {
	current State
	visited []State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateIdle, visited: []State{StateIdle}}
}

func (m *stateMachine) State() State { return m.current }

func (m *stateMachine) transition(to State) error {
	for _, next := range transitions[m.current] {
		if next == to {
			m.current = to
			m.visited = append(m.visited, to)
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", m.current, to)
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}
