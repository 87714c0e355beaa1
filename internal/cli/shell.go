package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ignatij/shopfloor/pkg/jobcard"
)

const shellHelp = `commands:
  list                 show loaded job cards
  orders               show production order progress
  start ID             start or resume a job card
  pause ID             pause a running job card
  save ID QTY          record the completed quantity
  complete ID [QTY]    complete a job card
  retry ID             resend an unconfirmed start or pause
  reload               reload job cards from the backend
  help                 show this help
  quit                 leave
`

// Shell reads operator commands line by line and runs them on a coordinator.
type Shell struct {
	coord  *jobcard.Coordinator
	reload func(ctx context.Context) error
	out    io.Writer

	// OnChange, when set, receives the stage views after every command.
	OnChange func(stages []jobcard.StageView)
}

func NewShell(coord *jobcard.Coordinator, reload func(ctx context.Context) error, out io.Writer) *Shell {
	return &Shell{coord: coord, reload: reload, out: out}
}

// Run processes commands from in until quit, EOF or ctx ends.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if s.OnChange != nil {
			s.OnChange(s.coord.Stages())
		}
	}
}

func (s *Shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprint(s.out, shellHelp)
		return nil
	case "list":
		RenderStages(s.out, s.coord.Stages())
		return nil
	case "orders":
		RenderOrders(s.out, s.coord.Orders())
		return nil
	case "reload":
		if err := s.reload(ctx); err != nil {
			return err
		}
		RenderStages(s.out, s.coord.Stages())
		return nil
	}

	action := jobcard.Action(cmd)
	switch action {
	case jobcard.ActionStart, jobcard.ActionPause, jobcard.ActionRetry:
		if len(args) != 1 {
			return fmt.Errorf("usage: %s ID", cmd)
		}
	case jobcard.ActionSave:
		if len(args) != 2 {
			return fmt.Errorf("usage: save ID QTY")
		}
	case jobcard.ActionComplete:
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: complete ID [QTY]")
		}
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return runTransition(ctx, s.coord, action, args, s.out)
}
