package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ignatij/shopfloor/pkg/jobcard"
	"github.com/ignatij/shopfloor/pkg/models"
)

func formatDuration(seconds int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

// RenderJobCards prints stored job cards as a table.
func RenderJobCards(w io.Writer, cards []models.JobCard) {
	if len(cards) == 0 {
		fmt.Fprintf(w, "No job cards found.\n")
		return
	}
	fmt.Fprintf(w, "%-12s %-10s %-12s %3s %-12s %-11s %8s %8s %9s\n",
		"ID", "ORDER", "OPERATION", "SEQ", "OPERATOR", "STATUS", "QTY", "DONE", "TIME")
	for _, c := range cards {
		fmt.Fprintf(w, "%-12s %-10s %-12s %3d %-12s %-11s %8s %8s %9s\n",
			c.ID, c.ProductionOrder, c.Operation, c.Sequence, c.Operator, c.Status,
			c.QuantityToManufacture, c.CompletedQuantity, formatDuration(c.AccumulatedSeconds))
	}
}

// RenderStages prints the coordinator's view with gating and live timers.
func RenderStages(w io.Writer, stages []jobcard.StageView) {
	if len(stages) == 0 {
		fmt.Fprintf(w, "No job cards loaded.\n")
		return
	}
	fmt.Fprintf(w, "%-12s %-12s %-11s %8s %8s %9s  %s\n",
		"ID", "OPERATION", "STATUS", "DONE", "ALLOWED", "TIME", "STATE")
	for _, s := range stages {
		fmt.Fprintf(w, "%-12s %-12s %-11s %8s %8s %9s  %s\n",
			s.Card.ID, s.Card.Operation, s.Card.Status, s.Card.CompletedQuantity,
			s.AllowedQuantity, formatDuration(s.ElapsedSeconds), stageState(s))
	}
}

func stageState(s jobcard.StageView) string {
	state := "gated"
	switch {
	case s.Card.IsTerminal():
		state = "done"
	case s.Actionable:
		state = "ready"
	}
	if s.Running {
		state += ",running"
	}
	if s.Unsynced {
		state += ",unsynced"
	}
	return state
}

// RenderOrders prints per-order progress.
func RenderOrders(w io.Writer, orders []models.ProductionOrder) {
	if len(orders) == 0 {
		fmt.Fprintf(w, "No production orders found.\n")
		return
	}
	fmt.Fprintf(w, "%-10s %7s %8s %8s %9s\n", "ORDER", "STAGES", "QTY", "PRODUCED", "TIME")
	for _, o := range orders {
		fmt.Fprintf(w, "%-10s %7s %8s %8s %9s\n", o.ID,
			fmt.Sprintf("%d/%d", o.CompletedStages, o.Stages),
			o.QuantityToManufacture, o.ProducedQuantity, formatDuration(o.TotalSeconds))
	}
}

// RenderLogs prints the update history of a job card.
func RenderLogs(w io.Writer, logs []models.JobCardLog) {
	if len(logs) == 0 {
		fmt.Fprintf(w, "No log entries found.\n")
		return
	}
	fmt.Fprintf(w, "%-19s %-8s %-11s %8s %9s\n", "LOGGED", "ACTION", "STATUS", "DONE", "TIME")
	for _, l := range logs {
		fmt.Fprintf(w, "%-19s %-8s %-11s %8s %9s\n", l.LoggedAt.UTC().Format("2006-01-02 15:04:05"),
			l.Action, l.Status, l.CompletedQuantity, formatDuration(l.AccumulatedSeconds))
	}
}

// RenderResult prints the outcome of one transition.
func RenderResult(w io.Writer, action jobcard.Action, res jobcard.Result) {
	fmt.Fprintf(w, "%s %s: status %s, completed %s, time %s\n", action, res.Card.ID,
		res.Card.Status, res.Card.CompletedQuantity, formatDuration(res.Card.AccumulatedSeconds))
	if res.Warning != "" {
		fmt.Fprintf(w, "warning: %s\n", res.Warning)
	}
	if len(res.Unlocked) > 0 {
		fmt.Fprintf(w, "unlocked: %s\n", strings.Join(res.Unlocked, ", "))
	}
}
