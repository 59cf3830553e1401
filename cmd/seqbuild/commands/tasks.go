package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"git.home.luguber.info/inful/seqbuild/internal/pipeline"
)

// TasksCmd implements the 'tasks' command.
type TasksCmd struct{}

func (t *TasksCmd) Run(g *Global, _ *CLI) error {
	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TASK\tDEPENDS ON\tDESCRIPTION")
	for _, task := range pipeline.Tasks() {
		deps := "-"
		if len(task.Deps) > 0 {
			deps = strings.Join(task.Deps, ",")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", task.Name, deps, task.Description)
	}
	return tw.Flush()
}
