package jobcard

import (
	"fmt"
	"time"

	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/shopspring/decimal"
)

// Action is an operator request on a job card.
type Action string

const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionSave     Action = "save"
	ActionComplete Action = "complete"
	ActionRetry    Action = "retry"
)

// Transition is a validated state change: the record before and after, the
// fields to persist and the clock side effect.
type Transition struct {
	Action     Action
	Before     models.JobCard
	After      models.JobCard
	Patch      models.JobCardPatch
	StartClock bool
	StopClock  bool
	Warning    string
}

// Plan validates action against the card's status and gate and returns the
// resulting transition. elapsed is the card's accumulated seconds as of now.
// A nil qty on save or complete keeps the recorded completed quantity.
func Plan(card models.JobCard, gate Gate, action Action, qty *decimal.Decimal, now time.Time, elapsed int64) (Transition, error) {
	if card.IsTerminal() {
		return Transition{}, rejectf(card.ID, action, ErrStageCompleted,
			"job card is completed; no further changes are allowed")
	}

	tr := Transition{Action: action, Before: card}
	seconds := elapsed
	tr.Patch.AccumulatedSeconds = &seconds

	switch action {
	case ActionStart:
		if card.Status != models.PlannedJobCardStatus && card.Status != models.OnHoldJobCardStatus {
			return Transition{}, rejectf(card.ID, action, ErrInvalidTransition,
				"status is %s; only planned or on_hold job cards can be started", card.Status)
		}
		if err := checkActionable(card, gate, action); err != nil {
			return Transition{}, err
		}
		status := models.InProgressJobCardStatus
		start := now
		if card.ActualStartTime != nil {
			start = *card.ActualStartTime
		}
		tr.Patch.Status = &status
		tr.Patch.ActualStartTime = &start
		tr.StartClock = true

	case ActionPause:
		if card.Status != models.InProgressJobCardStatus {
			return Transition{}, rejectf(card.ID, action, ErrInvalidTransition,
				"status is %s; only in_progress job cards can be paused", card.Status)
		}
		status := models.OnHoldJobCardStatus
		end := now
		tr.Patch.Status = &status
		tr.Patch.ActualEndTime = &end
		tr.StopClock = true

	case ActionSave:
		if err := checkActionable(card, gate, action); err != nil {
			return Transition{}, err
		}
		q, err := checkQuantity(card, gate, action, qty)
		if err != nil {
			return Transition{}, err
		}
		tr.Patch.CompletedQuantity = &q

	case ActionComplete:
		if card.Status != models.InProgressJobCardStatus && card.Status != models.OnHoldJobCardStatus {
			return Transition{}, rejectf(card.ID, action, ErrInvalidTransition,
				"status is %s; only in_progress or on_hold job cards can be completed", card.Status)
		}
		if err := checkActionable(card, gate, action); err != nil {
			return Transition{}, err
		}
		q, err := checkQuantity(card, gate, action, qty)
		if err != nil {
			return Transition{}, err
		}
		status := models.CompletedJobCardStatus
		end := now
		tr.Patch.Status = &status
		tr.Patch.CompletedQuantity = &q
		tr.Patch.ActualEndTime = &end
		tr.StopClock = true
		if q.LessThan(gate.AllowedQuantity) {
			tr.Warning = fmt.Sprintf("completed %s of %s allowed; the remaining %s will not be produced by this stage",
				q, gate.AllowedQuantity, gate.AllowedQuantity.Sub(q))
		}

	default:
		return Transition{}, rejectf(card.ID, action, ErrInvalidTransition, "unknown action %q", action)
	}

	tr.After = tr.Patch.Apply(card)
	return tr, nil
}

func checkActionable(card models.JobCard, gate Gate, action Action) error {
	if gate.Actionable {
		return nil
	}
	if gate.Predecessor != "" {
		return rejectf(card.ID, action, ErrNotActionable,
			"predecessor job card %s has released quantity %s; at least 1 unit must be completed upstream first",
			gate.Predecessor, gate.AllowedQuantity)
	}
	return rejectf(card.ID, action, ErrNotActionable, "job card is not actionable (status %s)", card.Status)
}

func checkQuantity(card models.JobCard, gate Gate, action Action, qty *decimal.Decimal) (decimal.Decimal, error) {
	q := card.CompletedQuantity
	if qty != nil {
		q = *qty
	}
	if q.IsNegative() {
		return decimal.Zero, rejectf(card.ID, action, ErrNegativeQuantity,
			"completed quantity %s is negative; minimum is 0", q)
	}
	if q.GreaterThan(gate.AllowedQuantity) {
		return decimal.Zero, rejectf(card.ID, action, ErrQuantityExceeded,
			"completed quantity %s exceeds allowed quantity %s", q, gate.AllowedQuantity)
	}
	if q.LessThan(card.CompletedQuantity) {
		return decimal.Zero, rejectf(card.ID, action, ErrQuantityDecreased,
			"completed quantity %s is below the already recorded %s", q, card.CompletedQuantity)
	}
	return q, nil
}
