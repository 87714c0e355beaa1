package testutil

import (
	"fmt"

	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/shopspring/decimal"
)

// Qty is shorthand for decimal.NewFromInt in table tests.
func Qty(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// QtyPtr returns a pointer to Qty(n).
func QtyPtr(n int64) *decimal.Decimal {
	q := Qty(n)
	return &q
}

// NewOrder builds the planned job cards of a production order, one per
// operation, with ids "<order>-<sequence>" and sequences starting at 1.
func NewOrder(order string, qty int64, operations ...string) []models.JobCard {
	cards := make([]models.JobCard, 0, len(operations))
	for i, op := range operations {
		cards = append(cards, models.JobCard{
			ID:                    fmt.Sprintf("%s-%d", order, i+1),
			ProductionOrder:       order,
			Operation:             op,
			Sequence:              i + 1,
			Operator:              "operator-1",
			Workstation:           "ws-" + op,
			QuantityToManufacture: Qty(qty),
			CompletedQuantity:     decimal.Zero,
			Status:                models.PlannedJobCardStatus,
		})
	}
	return cards
}
