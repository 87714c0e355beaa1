package jobcard

import (
	"fmt"
	"sort"

	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/shopspring/decimal"
)

// Gate is the derived, never persisted, gating state of one job card.
type Gate struct {
	JobCardID       string
	Predecessor     string // empty for the first stage of an order
	AllowedQuantity decimal.Decimal
	Actionable      bool
}

// Resolution is the gating state of a collection of job cards.
type Resolution struct {
	Gates           map[string]Gate
	Inconsistencies []*InconsistencyError
}

// Gate returns the gate of a job card.
func (r Resolution) Gate(id string) (Gate, bool) {
	g, ok := r.Gates[id]
	return g, ok
}

// Resolve computes the allowed quantity and actionability of every card. The
// predecessor of a card is the card with the next lower Sequence in the same
// production order; slice order is irrelevant. Cards must include all siblings
// of every order they touch.
func Resolve(cards []models.JobCard) (Resolution, error) {
	res := Resolution{Gates: make(map[string]Gate, len(cards))}
	for order, siblings := range groupByOrder(cards) {
		for i, c := range siblings {
			if i > 0 && siblings[i-1].Sequence == c.Sequence {
				return Resolution{}, fmt.Errorf("production order %s has job cards %s and %s at sequence %d",
					order, siblings[i-1].ID, c.ID, c.Sequence)
			}
			var g Gate
			if i == 0 {
				g = Gate{
					JobCardID:       c.ID,
					AllowedQuantity: c.QuantityToManufacture,
					Actionable:      !c.IsTerminal(),
				}
			} else {
				prev := siblings[i-1]
				g = Gate{
					JobCardID:       c.ID,
					Predecessor:     prev.ID,
					AllowedQuantity: prev.CompletedQuantity,
					Actionable:      prev.CompletedQuantity.IsPositive() && !c.IsTerminal(),
				}
			}
			if c.CompletedQuantity.GreaterThan(g.AllowedQuantity) {
				res.Inconsistencies = append(res.Inconsistencies, &InconsistencyError{
					JobCardID:   c.ID,
					Predecessor: g.Predecessor,
					Completed:   c.CompletedQuantity,
					Allowed:     g.AllowedQuantity,
				})
			}
			res.Gates[c.ID] = g
		}
	}
	sort.Slice(res.Inconsistencies, func(i, j int) bool {
		return res.Inconsistencies[i].JobCardID < res.Inconsistencies[j].JobCardID
	})
	return res, nil
}

// Unlocked returns the ids that are actionable in after but were not in before.
func Unlocked(before, after Resolution) []string {
	var ids []string
	for id, g := range after.Gates {
		if g.Actionable && !before.Gates[id].Actionable {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func groupByOrder(cards []models.JobCard) map[string][]models.JobCard {
	orders := make(map[string][]models.JobCard)
	for _, c := range cards {
		orders[c.ProductionOrder] = append(orders[c.ProductionOrder], c)
	}
	for _, siblings := range orders {
		sort.SliceStable(siblings, func(i, j int) bool {
			return siblings[i].Sequence < siblings[j].Sequence
		})
	}
	return orders
}
