package pipeline

import (
	"fmt"
	"strings"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
)

// Task names accepted by Run.
const (
	TaskClean   = "clean"
	TaskBuild   = "build"
	TaskDefault = "default"
)

// Task is a node of the static task graph. Only tasks with a State perform
// work; the rest only aggregate their dependencies.
type Task struct {
	Name        string
	Description string
	Deps        []string
	State       State
}

var taskGraph = []Task{
	{Name: TaskClean, Description: "Remove the output directory", State: StateCleaning},
	{Name: TaskBuild, Description: "Concatenate inputs into the artifact and copy it to the external sink", Deps: []string{TaskClean}, State: StateBuilding},
	{Name: TaskDefault, Description: "Alias for build", Deps: []string{TaskBuild}},
}

// Tasks returns the task graph in declaration order.
func Tasks() []Task {
	out := make([]Task, len(taskGraph))
	copy(out, taskGraph)
	return out
}

func lookupTask(name string) (Task, bool) {
	for _, t := range taskGraph {
		if t.Name == name {
			return t, true
		}
	}
	return Task{}, false
}

// Plan resolves name to the ordered list of working tasks to execute,
// dependencies first, each at most once.
func Plan(name string) ([]Task, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = TaskDefault
	}
	if _, ok := lookupTask(name); !ok {
		return nil, derrors.ValidationFailed("task", fmt.Sprintf("unknown task %q", name))
	}

	var plan []Task
	seen := map[string]bool{}
	var visit func(string) error
	visit = func(n string) error {
		if seen[n] {
			return nil
		}
		seen[n] = true
		t, ok := lookupTask(n)
		if !ok {
			return derrors.InternalError(fmt.Sprintf("task graph references unknown task %q", n), nil)
		}
		for _, dep := range t.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		if t.State != "" {
			plan = append(plan, t)
		}
		return nil
	}
	if err := visit(name); err != nil {
		return nil, err
	}
	return plan, nil
}
