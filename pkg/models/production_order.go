package models

import "github.com/shopspring/decimal"

// ProductionOrder summarizes the progress of one order across its job cards.
type ProductionOrder struct {
	ID                    string          `json:"id"`
	QuantityToManufacture decimal.Decimal `json:"for_quantity"`
	ProducedQuantity      decimal.Decimal `json:"produced_qty"` // Completed quantity of the last stage
	Stages                int             `json:"stages"`
	CompletedStages       int             `json:"completed_stages"`
	TotalSeconds          int64           `json:"total_time_seconds"`
}

// Done reports whether every stage of the order is completed.
func (o ProductionOrder) Done() bool {
	return o.Stages > 0 && o.Stages == o.CompletedStages
}
